package service

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"paygate/internal/model"
)

const (
	warmupBatchSize   = 500
	warmupConcurrency = 50
)

type warmupStore interface {
	IterateAddresses(ctx context.Context, batch int, fn func(addrs []model.DepositAddress) error) error
}

type warmupCache interface {
	SetRoute(ctx context.Context, addr, orderID string) error
}

// Warmup 缓存预热: 把库里全部 address -> order_id 路由灌进缓存。
// 缓存重建或清空后跑一次，之后网络守护进程才能正确路由输出。
type Warmup struct {
	store warmupStore
	cache warmupCache
	log   *zap.Logger
}

func NewWarmup(store warmupStore, cache warmupCache, log *zap.Logger) *Warmup {
	return &Warmup{store: store, cache: cache, log: log}
}

// Run 分批读库、并发写缓存，全部写完才返回
func (w *Warmup) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(warmupConcurrency)

	total := 0
	err := w.store.IterateAddresses(ctx, warmupBatchSize, func(addrs []model.DepositAddress) error {
		for _, a := range addrs {
			a := a
			g.Go(func() error {
				return w.cache.SetRoute(ctx, a.Address, a.OrderID)
			})
		}
		total += len(addrs)
		return nil
	})
	if err != nil {
		g.Wait()
		return err
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w.log.Info("路由缓存预热完成", zap.Int("addresses", total))
	return nil
}
