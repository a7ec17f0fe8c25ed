package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"paygate/pkg/config"
	"paygate/pkg/logger"
)

// rootCmd 代表基础命令，所有守护进程和工具都是它的子命令
var rootCmd = &cobra.Command{
	Use:   "paygate",
	Short: "比特币支付网关",
	Long: `托管型比特币支付网关。
为商户订单签发一次性充值地址，监听链上事件记录入账，
资金自动归集到热钱包，并按确认进度回调商户。`,
}

// Execute 将所有子命令添加到根命令并执行
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// setup 加载配置并初始化日志，每个子命令入口调用一次
func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.App.Env)
	return cfg, nil
}
