package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"paygate/internal/handler/request"
	"paygate/internal/handler/response"
	"paygate/internal/model"
	"paygate/pkg/errno"
)

type addressIssuer interface {
	Issue(ctx context.Context, orderID string, usdAmount *decimal.Decimal) (*model.DepositAddress, *decimal.Decimal, error)
}

type addressReader interface {
	GetAddress(ctx context.Context, address string) (*model.DepositAddress, error)
	FindAddressByOrder(ctx context.Context, orderID string) (*model.DepositAddress, error)
	ListAddressPayments(ctx context.Context, address string) ([]model.Payment, error)
}

// AddressHandler 充值地址的 HTTP 接口
type AddressHandler struct {
	issuer addressIssuer
	store  addressReader
	log    *zap.Logger
}

func NewAddressHandler(issuer addressIssuer, store addressReader, log *zap.Logger) *AddressHandler {
	return &AddressHandler{issuer: issuer, store: store, log: log}
}

// Create 为订单签发一个新的充值地址
// POST /v1/addresses
func (h *AddressHandler) Create(c *gin.Context) {
	var req request.CreateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	record, quote, err := h.issuer.Issue(c.Request.Context(), req.OrderID, req.UsdAmount)
	if err != nil {
		h.log.Warn("地址签发失败", zap.String("order_id", req.OrderID), zap.Error(err))
		response.Error(c, err)
		return
	}

	data := gin.H{
		"address":    record.Address,
		"order_id":   record.OrderID,
		"created_at": record.CreatedAt,
	}
	if quote != nil {
		data["btc_amount"] = quote.StringFixed(8)
	}
	response.Success(c, data)
}

// Get 按地址查询
// GET /v1/addresses/:address
func (h *AddressHandler) Get(c *gin.Context) {
	record, err := h.store.GetAddress(c.Request.Context(), c.Param("address"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Error(c, errno.ErrAddressNotFound)
			return
		}
		response.Error(c, errno.ErrDatabase)
		return
	}
	response.Success(c, record)
}

// GetByOrder 按订单号查询已签发的地址
// GET /v1/orders/:order_id/address
func (h *AddressHandler) GetByOrder(c *gin.Context) {
	record, err := h.store.FindAddressByOrder(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Error(c, errno.ErrAddressNotFound)
			return
		}
		response.Error(c, errno.ErrDatabase)
		return
	}
	response.Success(c, record)
}

// ListPayments 列出地址收到的全部支付
// GET /v1/addresses/:address/payments
func (h *AddressHandler) ListPayments(c *gin.Context) {
	address := c.Param("address")
	if _, err := h.store.GetAddress(c.Request.Context(), address); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Error(c, errno.ErrAddressNotFound)
			return
		}
		response.Error(c, errno.ErrDatabase)
		return
	}

	payments, err := h.store.ListAddressPayments(c.Request.Context(), address)
	if err != nil {
		response.Error(c, errno.ErrDatabase)
		return
	}
	response.Success(c, gin.H{"payments": payments, "count": len(payments)})
}
