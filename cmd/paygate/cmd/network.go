package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"paygate/internal/cache"
	"paygate/internal/daemon"
	"paygate/internal/mq"
	"paygate/internal/node"
	"paygate/internal/service"
	"paygate/internal/store"
	"paygate/pkg/config"
	"paygate/pkg/crypto_util"
	"paygate/pkg/database"
	"paygate/pkg/logger"
)

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "启动支付处理守护进程",
	Long: `订阅节点的 rawtx / hashblock 事件:
新交易命中托管地址时幂等入库、回调商户并归集资金，
新区块触发一轮确认扫描。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNetwork()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(networkCmd)
}

func runNetwork() error {
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

	st := store.New(db)
	ch := cache.New(rdb)
	rpc := node.NewClient(cfg.Node.RpcUrl, cfg.Node.RpcUser, cfg.Node.RpcPassword, logger.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 就绪门: 三个依赖全部就绪前不碰任何事件
	err = daemon.WaitReady(ctx, logger.Log,
		daemon.Probe{Name: "postgres", Check: st.Ping},
		daemon.Probe{Name: "redis", Check: ch.Ping},
		daemon.Probe{Name: "node", Check: rpc.Ready},
	)
	if err != nil {
		return err
	}

	var producer mq.Producer = mq.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := mq.NewKafkaProducer(cfg.Kafka.Brokers, mq.PaymentTopic)
		defer kp.Close()
		producer = kp
	}

	sup := daemon.NewSupervisor(ctx, logger.Log)
	key := crypto_util.DeriveKey(cfg.Gateway.SecretKey)

	forwarder := service.NewForwarder(rpc, st, key, cfg.Gateway.HouseAddress, logger.Log)
	dispatcher := service.NewDispatcher(cfg.Gateway.CallbackUrl, st, logger.Log)
	sweep := service.NewSweep(st, rpc, dispatcher, logger.Log)
	processor := service.NewProcessor(st, ch, sup, forwarder, dispatcher, producer, logger.Log)
	feed := node.NewFeed(cfg.Node.FeedUrl, logger.Log)
	network := service.NewNetwork(feed, rpc, processor, sweep, sup, logger.Log)

	sup.Spawn("confirmation-sweep", sweep.Run)
	sup.Spawn("event-loop", network.Run)

	logger.Info("支付处理守护进程已启动",
		zap.String("feed", cfg.Node.FeedUrl),
		zap.Bool("testnet", cfg.Node.Testnet))

	select {
	case <-ctx.Done():
		logger.Info("收到关停信号，排空在途任务")
		sup.Shutdown()
		return nil
	case err := <-sup.Fatal():
		sup.Shutdown()
		return err
	}
}

// networkParams 选择链参数，网络守护进程和 API 必须一致
func networkParams(cfg *config.Config) *chaincfg.Params {
	if cfg.Node.Testnet {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}
