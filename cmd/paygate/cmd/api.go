package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"paygate/internal/cache"
	"paygate/internal/handler"
	"paygate/internal/server"
	"paygate/internal/service"
	"paygate/internal/store"
	"paygate/pkg/address"
	"paygate/pkg/crypto_util"
	"paygate/pkg/database"
	"paygate/pkg/logger"
	"paygate/pkg/monitor"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "启动商户 API 服务",
	Long:  `地址签发与查询的 HTTP 接口，含 /health 和 /metrics。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAPI()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI() error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := database.ConnectPostgres(cfg.DB.DSN())
	if err != nil {
		return err
	}
	rdb := database.ConnectRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer rdb.Close()

	monitor.Init()

	st := store.New(db)
	ch := cache.New(rdb)
	gen := address.NewBTCGenerator(networkParams(cfg))
	key := crypto_util.DeriveKey(cfg.Gateway.SecretKey)

	issuer := service.NewAddressService(st, ch, gen, key, logger.Log)
	router := server.NewRouter(handler.NewAddressHandler(issuer, st, logger.Log))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = server.Run(ctx, ":"+cfg.App.HttpPort, router, logger.Log)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
