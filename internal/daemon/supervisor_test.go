package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSupervisor_FatalOnTaskError(t *testing.T) {
	sup := NewSupervisor(context.Background(), zap.NewNop())

	boom := errors.New("boom")
	sup.Spawn("bad-task", func(ctx context.Context) error {
		return boom
	})

	select {
	case err := <-sup.Fatal():
		if !errors.Is(err, boom) {
			t.Errorf("致命错误应包装原始错误: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("任务失败未触发致命错误")
	}
}

func TestSupervisor_FirstErrorCancelsSiblings(t *testing.T) {
	sup := NewSupervisor(context.Background(), zap.NewNop())

	siblingCancelled := make(chan struct{})
	sup.Spawn("long-task", func(ctx context.Context) error {
		<-ctx.Done()
		close(siblingCancelled)
		return ctx.Err()
	})
	sup.Spawn("bad-task", func(ctx context.Context) error {
		return errors.New("first failure")
	})

	select {
	case <-siblingCancelled:
	case <-time.After(time.Second):
		t.Fatal("第一个错误应取消兄弟任务")
	}

	// 兄弟任务返回的 context.Canceled 不应覆盖第一个错误
	select {
	case err := <-sup.Fatal():
		if err.Error() != "bad-task: first failure" {
			t.Errorf("应保留第一个致命错误, 得到: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("未收到致命错误")
	}
}

func TestSupervisor_CancellationIsNotFatal(t *testing.T) {
	sup := NewSupervisor(context.Background(), zap.NewNop())

	started := make(chan struct{})
	sup.Spawn("well-behaved", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	<-started
	sup.Shutdown()

	select {
	case err := <-sup.Fatal():
		t.Errorf("关停取消不应视为致命错误: %v", err)
	default:
	}
}

func TestSupervisor_ShutdownWaitsForTasks(t *testing.T) {
	sup := NewSupervisor(context.Background(), zap.NewNop())

	cleaned := false
	started := make(chan struct{})
	sup.Spawn("with-cleanup", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		// 持有资源的任务必须在传播取消前释放资源
		time.Sleep(20 * time.Millisecond)
		cleaned = true
		return ctx.Err()
	})

	<-started
	sup.Shutdown()

	if !cleaned {
		t.Error("Shutdown 必须等待任务完成收尾")
	}
}

func TestWaitReady_AllProbesSucceed(t *testing.T) {
	calls := 0
	err := WaitReady(context.Background(), zap.NewNop(),
		Probe{Name: "db", Check: func(ctx context.Context) error { calls++; return nil }},
		Probe{Name: "cache", Check: func(ctx context.Context) error { calls++; return nil }},
	)
	if err != nil {
		t.Fatalf("全部探针成功时不应报错: %v", err)
	}
	if calls != 2 {
		t.Errorf("每个探针各执行一次, 实际 %d", calls)
	}
}

func TestWaitReady_ProbeRecoversWithinBudget(t *testing.T) {
	old := ReadinessRetry
	ReadinessRetry.Backoff = time.Millisecond
	defer func() { ReadinessRetry = old }()

	attempts := 0
	err := WaitReady(context.Background(), zap.NewNop(),
		Probe{Name: "node", Check: func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("initial block download in progress")
			}
			return nil
		}},
	)
	if err != nil {
		t.Fatalf("预算内恢复的探针不应失败: %v", err)
	}
	if attempts != 3 {
		t.Errorf("期望 3 次探测, 实际 %d", attempts)
	}
}

func TestWaitReady_ExhaustedProbeFails(t *testing.T) {
	old := ReadinessRetry
	ReadinessRetry.Backoff = time.Millisecond
	defer func() { ReadinessRetry = old }()

	attempts := 0
	err := WaitReady(context.Background(), zap.NewNop(),
		Probe{Name: "node", Check: func(ctx context.Context) error {
			attempts++
			return errors.New("initial block download in progress")
		}},
	)
	if err == nil {
		t.Fatal("探针始终失败时主循环不得启动")
	}
	if attempts != 5 {
		t.Errorf("就绪探针应尝试 5 次, 实际 %d", attempts)
	}
}
