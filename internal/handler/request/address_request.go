package request

import "github.com/shopspring/decimal"

// CreateAddressRequest 为订单签发充值地址的请求
type CreateAddressRequest struct {
	OrderID string `json:"order_id" binding:"required,max=50"`
	// UsdAmount 可选，给了就按最新汇率折算 BTC 应付金额
	UsdAmount *decimal.Decimal `json:"usd_amount" binding:"omitempty"`
}
