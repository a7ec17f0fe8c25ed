package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"paygate/internal/cache"
	"paygate/internal/service"
	"paygate/internal/store"
	"paygate/pkg/database"
	"paygate/pkg/logger"
)

var warmupCmd = &cobra.Command{
	Use:   "warmup",
	Short: "预热路由缓存",
	Long: `把库里全部 address -> order_id 路由灌进缓存后退出。
缓存清空或重建后、启动 network 守护进程前跑一次。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWarmup()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(warmupCmd)
}

func runWarmup() error {
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := service.NewWarmup(store.New(db), cache.New(rdb), logger.Log)
	return w.Run(ctx)
}
