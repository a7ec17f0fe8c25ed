package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_ThirdAttemptSucceeds(t *testing.T) {
	p := Policy{Attempts: 3, Backoff: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("暂时性失败")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("第三次成功后不应返回错误: %v", err)
	}
	if calls != 3 {
		t.Errorf("期望调用 3 次, 实际 %d 次", calls)
	}
}

func TestDo_ExhaustedReturnsLastError(t *testing.T) {
	p := Policy{Attempts: 3, Backoff: time.Millisecond}

	lastErr := errors.New("第 3 次失败")
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 3 {
			return lastErr
		}
		return errors.New("前置失败")
	})

	// 耗尽后必须原样传播最后一次的错误
	if !errors.Is(err, lastErr) {
		t.Fatalf("期望最后一次的错误, 得到: %v", err)
	}
	if calls != 3 {
		t.Errorf("期望调用 3 次, 实际 %d 次", calls)
	}
}

func TestDo_CancelNotRetried(t *testing.T) {
	p := Policy{Attempts: 5, Backoff: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := p.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return context.Canceled
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled, 得到: %v", err)
	}
	if calls != 1 {
		t.Errorf("取消不应被重试, 实际调用 %d 次", calls)
	}
}

func TestDo_BackoffBetweenAttempts(t *testing.T) {
	p := Policy{Attempts: 3, Backoff: 20 * time.Millisecond}

	start := time.Now()
	_ = p.Do(context.Background(), func(ctx context.Context) error {
		return errors.New("always")
	})

	// 3 次尝试之间有 2 个间隔
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("重试间隔未生效, 总耗时 %v", elapsed)
	}
}
