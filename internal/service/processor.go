package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paygate/internal/cache"
	"paygate/internal/daemon"
	"paygate/internal/event"
	"paygate/internal/model"
	"paygate/internal/mq"
	"paygate/pkg/monitor"
)

type processorStore interface {
	CreatePayment(ctx context.Context, p *model.Payment) (bool, error)
}

type addressRouter interface {
	LookupRoute(ctx context.Context, address string) (string, error)
}

type txForwarder interface {
	Forward(ctx context.Context, p model.Payment) error
}

// Processor 处理解码后的交易输出: 路由判定、幂等入库、
// 触发首次回调和资金归集。
// 幂等完全靠 (txid, address) 唯一约束，这里不做任何进程内去重，
// 多实例部署时约束同样成立。
type Processor struct {
	store     processorStore
	routes    addressRouter
	tasks     daemon.Spawner
	forwarder txForwarder
	notifier  notifier
	producer  mq.Producer
	log       *zap.Logger
}

func NewProcessor(store processorStore, routes addressRouter, tasks daemon.Spawner,
	forwarder txForwarder, notifier notifier, producer mq.Producer, log *zap.Logger) *Processor {
	return &Processor{
		store:     store,
		routes:    routes,
		tasks:     tasks,
		forwarder: forwarder,
		notifier:  notifier,
		producer:  producer,
		log:       log,
	}
}

// OnOutput 处理一笔交易输出。绝大多数输出和我们无关，路由未命中
// 直接返回；命中则走入库，重复投递吸收为成功空操作。
func (pr *Processor) OnOutput(ctx context.Context, txid string, vout uint32, amount decimal.Decimal, address string) error {
	orderID, err := pr.routes.LookupRoute(ctx, address)
	if errors.Is(err, cache.ErrNotFound) {
		return nil
	}
	if err != nil {
		// 缓存不可用时无法判定路由，宁可停下也不能漏记支付
		return err
	}

	payment := model.Payment{
		Txid:    txid,
		Vout:    vout,
		Amount:  amount,
		Address: address,
		OrderID: orderID,
	}
	created, err := pr.store.CreatePayment(ctx, &payment)
	if err != nil {
		return err
	}
	if !created {
		monitor.Business.PaymentsDuplicateTotal.Inc()
		pr.log.Debug("重复支付事件，忽略",
			zap.String("txid", txid), zap.String("address", address))
		return nil
	}

	monitor.Business.PaymentsReceivedTotal.Inc()
	pr.log.Info("记录新支付",
		zap.Uint64("payment_id", payment.ID),
		zap.String("order_id", orderID),
		zap.String("txid", txid),
		zap.String("amount", amount.String()))

	pr.publishEvent(ctx, payment)

	// 首次回调和归集并行跑，互不等待
	p := payment
	pr.tasks.Spawn("payment-callback", func(ctx context.Context) error {
		return pr.notifier.Notify(ctx, p, 0)
	})
	pr.tasks.Spawn("payment-forward", func(ctx context.Context) error {
		return pr.forwarder.Forward(ctx, p)
	})
	return nil
}

// publishEvent 把入账事件旁路发到消息队列，失败只记日志。
// 下游对账系统兜底靠扫库，不依赖这条消息必达。
func (pr *Processor) publishEvent(ctx context.Context, p model.Payment) {
	payload, err := json.Marshal(event.PaymentRecordedEvent{
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Address:   p.Address,
		Txid:      p.Txid,
		Vout:      p.Vout,
		Amount:    p.Amount.String(),
		CreatedAt: p.CreatedAt,
	})
	if err != nil {
		pr.log.Error("支付事件序列化失败", zap.Error(err))
		return
	}
	if err := pr.producer.Publish(ctx, p.OrderID, payload); err != nil {
		pr.log.Warn("支付事件发布失败",
			zap.String("order_id", p.OrderID), zap.Error(err))
	}
}
