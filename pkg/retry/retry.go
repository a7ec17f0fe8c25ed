package retry

import (
	"context"
	"errors"
	"time"
)

// Policy 固定间隔的有界重试策略。
// 调用点各自持有自己的策略值 (RPC 3次/1s，就绪探针 5次/2s)，避免隐式耦合。
type Policy struct {
	Attempts int           // 最大尝试次数 (含第一次)
	Backoff  time.Duration // 相邻两次尝试之间的固定间隔
}

// Do 执行 op，失败则按策略重试，耗尽后原样返回最后一次的错误。
// ctx 取消属于协作式取消，不计为可重试失败，立即向上传播。
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = op(ctx)
		if last == nil {
			return nil
		}
		if errors.Is(last, context.Canceled) {
			return last
		}

		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff):
		}
	}
	return last
}
