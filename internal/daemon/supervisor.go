package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Spawner 是各服务挂后台任务用的最小接口
type Spawner interface {
	Spawn(name string, fn func(ctx context.Context) error)
}

// Supervisor 持有一个守护进程的全部后台任务。
// 错误策略: 任何任务以非取消错误退出即视为不可恢复缺陷——取消所有
// 兄弟任务并把第一个错误交给进程入口，由入口决定退出。
// 不在无关任务之间做局部故障隔离，进程实例是可抛弃的，重启交给外部
// 进程管理器，靠存储层的唯一约束保证重启安全。
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *zap.Logger

	fatal chan error // 容量 1，只记第一个致命错误
}

func NewSupervisor(parent context.Context, log *zap.Logger) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		log:    log,
		fatal:  make(chan error, 1),
	}
}

// Context 返回所有任务共享的取消上下文
func (s *Supervisor) Context() context.Context {
	return s.ctx
}

// Spawn 并发启动一个任务并登记。任务必须自己消化可重试/可吸收的
// 失败，返回的任何非取消错误都会触发整个进程的终止流程。
func (s *Supervisor) Spawn(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		err := fn(s.ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}

		s.log.Error("后台任务异常退出", zap.String("task", name), zap.Error(err))
		select {
		case s.fatal <- fmt.Errorf("%s: %w", name, err):
		default: // 已有致命错误在途，只保留第一个
		}
		s.cancel()
	}()
}

// Fatal 返回致命错误通道，进程入口 select 它和关停信号
func (s *Supervisor) Fatal() <-chan error {
	return s.fatal
}

// Shutdown 取消全部在途任务并等它们收尾。取消是协作式的:
// 每个任务在下一个挂起点观察到取消，释放手里的资源后返回。
func (s *Supervisor) Shutdown() {
	s.cancel()
	s.wg.Wait()
}
