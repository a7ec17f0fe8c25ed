package event

import "time"

// PaymentRecordedEvent 新支付入库事件
// Topic: payment_events
// 旁路投递给下游对账/风控，丢失可从库里全量补齐
type PaymentRecordedEvent struct {
	PaymentID uint64    `json:"payment_id"`
	OrderID   string    `json:"order_id"`
	Address   string    `json:"address"`
	Txid      string    `json:"txid"`
	Vout      uint32    `json:"vout"`
	Amount    string    `json:"amount"` // Decimal string
	CreatedAt time.Time `json:"created_at"`
}
