package daemon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"paygate/pkg/retry"
)

// ReadinessRetry 就绪探针的重试策略 (比 RPC 调用更宽松)
var ReadinessRetry = retry.Policy{Attempts: 5, Backoff: 2 * time.Second}

// Probe 一个依赖的就绪探针: 数据库轻量查询 / 缓存 ping / 节点链状态
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// WaitReady 并发探测所有依赖，每个探针各自走重试策略，
// 全部成功前主循环不得启动；任一探针耗尽重试则整体失败。
func WaitReady(ctx context.Context, log *zap.Logger, probes ...Probe) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, p := range probes {
		p := p
		g.Go(func() error {
			err := ReadinessRetry.Do(ctx, func(ctx context.Context) error {
				if err := p.Check(ctx); err != nil {
					log.Warn("依赖未就绪，等待重试",
						zap.String("probe", p.Name), zap.Error(err))
					return err
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("依赖 %s 未就绪: %w", p.Name, err)
			}
			log.Info("依赖就绪", zap.String("probe", p.Name))
			return nil
		})
	}

	return g.Wait()
}
