package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"paygate/internal/model"
	"paygate/internal/node"
	"paygate/pkg/monitor"
)

// paymentRetention 活跃支付的留存期，超期的静默失活，不再推回调
const paymentRetention = 14 * 24 * time.Hour

type sweepStore interface {
	ListActivePayments(ctx context.Context) ([]model.Payment, error)
	DeactivatePayments(ctx context.Context, paymentIDs []uint64) error
}

type sweepRPC interface {
	GetRawTransaction(ctx context.Context, txid string) (*node.TxDetail, error)
}

type notifier interface {
	Notify(ctx context.Context, p model.Payment, confirmations int64) error
}

// Sweep 确认扫描: 每个新区块后过一遍活跃支付，把最新确认数推给商户，
// 顺手清掉超过留存期的记录。
// 触发用容量 1 的通道合并: 扫描耗时可能长于出块间隔，积压的触发
// 合并成一次即可，反正每轮都是全量扫描。
type Sweep struct {
	store     sweepStore
	rpc       sweepRPC
	notifier  notifier
	trigger   chan struct{}
	retention time.Duration
	log       *zap.Logger
}

func NewSweep(store sweepStore, rpc sweepRPC, notifier notifier, log *zap.Logger) *Sweep {
	return &Sweep{
		store:     store,
		rpc:       rpc,
		notifier:  notifier,
		trigger:   make(chan struct{}, 1),
		retention: paymentRetention,
		log:       log,
	}
}

// Trigger 请求一轮扫描，已有待处理触发时合并
func (s *Sweep) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run 消费触发直到取消。单轮扫描的错误视为致命上抛。
func (s *Sweep) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.trigger:
			if err := s.pass(ctx); err != nil {
				return err
			}
		}
	}
}

// pass 一轮全量扫描。回调并发推送，本轮推完才算结束，
// 保证下一轮扫描不会和上一轮的回调交错。
func (s *Sweep) pass(ctx context.Context) error {
	timer := prometheus.NewTimer(monitor.Business.SweepDuration)
	defer timer.ObserveDuration()

	payments, err := s.store.ListActivePayments(ctx)
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-s.retention)
	var expired []uint64
	var g errgroup.Group

	for _, p := range payments {
		if p.CreatedAt.Before(cutoff) {
			// 留存期已过，无论确认数多少都不再打扰商户
			expired = append(expired, p.ID)
			continue
		}

		detail, err := s.rpc.GetRawTransaction(ctx, p.Txid)
		if err != nil {
			g.Wait()
			return err
		}
		if detail.Confirmations <= 0 {
			continue
		}

		p, confirmations := p, detail.Confirmations
		g.Go(func() error {
			// Notify 自己消化投递失败，返回的错误只剩存储故障，致命
			return s.notifier.Notify(ctx, p, confirmations)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(expired) > 0 {
		if err := s.store.DeactivatePayments(ctx, expired); err != nil {
			return err
		}
		monitor.Business.PaymentsExpiredTotal.Add(float64(len(expired)))
		s.log.Info("清理过期支付", zap.Int("count", len(expired)))
	}
	return nil
}
