package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"paygate/internal/cache"
	"paygate/internal/service"
	"paygate/pkg/database"
	"paygate/pkg/logger"
	"paygate/pkg/utils/lock"
)

var exchangeCmd = &cobra.Command{
	Use:   "exchange",
	Short: "启动汇率同步守护进程",
	Long:  `定时抓取最新 BTCUSD 价格写入缓存，供地址签发报价使用。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExchange()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(exchangeCmd)
}

func runExchange() error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	rdb := database.ConnectRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer rdb.Close()
	ch := cache.New(rdb)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ex := service.NewExchange(ch, lock.NewRedisLock(rdb), cfg.Gateway.ExchangeUrl, logger.Log)
	logger.Info("汇率同步守护进程已启动", zap.String("source", cfg.Gateway.ExchangeUrl))

	err = ex.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
