package main

import "paygate/cmd/paygate/cmd"

func main() {
	cmd.Execute()
}
