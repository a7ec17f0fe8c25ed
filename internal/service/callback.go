package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paygate/internal/model"
	"paygate/pkg/monitor"
)

const (
	callbackTimeout     = 15 * time.Second
	callbackConcurrency = 10 // 同时在途的商户回调上限
)

type callbackStore interface {
	DeactivatePayment(ctx context.Context, paymentID uint64) error
}

// CallbackRequest 推给商户的回调体
type CallbackRequest struct {
	OrderID       string          `json:"order_id"`
	Address       string          `json:"address"`
	Txid          string          `json:"txid"`
	Amount        decimal.Decimal `json:"amount"`
	Confirmations int64           `json:"confirmations"`
}

// CallbackResponse 商户的应答，stop=true 表示订单已处理完毕
type CallbackResponse struct {
	Stop bool `json:"stop"`
}

// Dispatcher 向商户推送支付状态回调。
// 回调是尽力而为的单次投递: 网络失败、非 2xx、响应不可解析都只记日志，
// 不重试不上抛。商户端丢了这次，下一轮确认扫描还会再推。
// 唯一会上抛的是 stop 信号的落库失败，那是我们自己的存储出了问题。
type Dispatcher struct {
	url   string
	http  *http.Client
	sem   chan struct{}
	store callbackStore
	log   *zap.Logger
}

func NewDispatcher(url string, store callbackStore, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		url:   url,
		http:  &http.Client{Timeout: callbackTimeout},
		sem:   make(chan struct{}, callbackConcurrency),
		store: store,
		log:   log,
	}
}

// Notify 推送一次回调。confirmations 为推送时刻观察到的确认数，
// 新入账即推时为 0。
func (d *Dispatcher) Notify(ctx context.Context, p model.Payment, confirmations int64) error {
	select {
	case d.sem <- struct{}{}:
		defer func() { <-d.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	stop, delivered := d.deliver(ctx, p, confirmations)
	if !delivered {
		monitor.Business.CallbacksTotal.WithLabelValues("error").Inc()
		return nil
	}
	monitor.Business.CallbacksTotal.WithLabelValues("ok").Inc()

	if !stop {
		return nil
	}

	// 商户确认收够了，这条支付退出后续扫描
	if err := d.store.DeactivatePayment(ctx, p.ID); err != nil {
		return err
	}
	d.log.Info("商户已确认支付，停止跟踪",
		zap.Uint64("payment_id", p.ID), zap.String("order_id", p.OrderID))
	return nil
}

// deliver 执行一次 HTTP 投递。第二个返回值表示是否拿到了可解析的应答。
func (d *Dispatcher) deliver(ctx context.Context, p model.Payment, confirmations int64) (stop, delivered bool) {
	body, err := json.Marshal(CallbackRequest{
		OrderID:       p.OrderID,
		Address:       p.Address,
		Txid:          p.Txid,
		Amount:        p.Amount,
		Confirmations: confirmations,
	})
	if err != nil {
		d.log.Error("回调体序列化失败", zap.Error(err))
		return false, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		d.log.Error("构造回调请求失败", zap.Error(err))
		return false, false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		d.log.Warn("商户回调投递失败",
			zap.String("order_id", p.OrderID), zap.Error(err))
		return false, false
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		d.log.Warn("读取回调应答失败",
			zap.String("order_id", p.OrderID), zap.Error(err))
		return false, false
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.log.Warn("商户回调返回非 2xx",
			zap.String("order_id", p.OrderID), zap.Int("status", resp.StatusCode))
		return false, false
	}

	var parsed CallbackResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		// 应答格式不对视作 stop=false，下一轮扫描继续推
		d.log.Warn("回调应答不可解析",
			zap.String("order_id", p.OrderID), zap.Error(err))
		return false, false
	}
	return parsed.Stop, true
}
