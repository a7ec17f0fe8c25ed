package mq

import "context"

// PaymentTopic 入账事件的默认主题，下游对账/风控系统订阅
const PaymentTopic = "payment_events"

// Producer 生产者接口
type Producer interface {
	// Publish 发送消息
	// key: 分区键 (订单号), 保证同一订单的事件有序
	Publish(ctx context.Context, key string, payload []byte) error

	// Close 关闭连接，排空未发送的批次
	Close() error
}

// Noop 未配置 broker 时的空实现，事件发布是尽力而为的旁路
type Noop struct{}

func (Noop) Publish(context.Context, string, []byte) error { return nil }
func (Noop) Close() error                                  { return nil }
