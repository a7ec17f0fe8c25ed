package service

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paygate/internal/model"
	"paygate/internal/node"
	"paygate/pkg/crypto_util"
	"paygate/pkg/monitor"
)

const (
	// feeConfTarget 转发交易的目标确认窗口
	feeConfTarget = 5
	// refTxVsize 单进单出 P2WPKH 交易的参考体积 (vbytes)，费率按它折算
	refTxVsize = 200
)

// fallbackFeerate 节点没有费率样本时的兜底费率 (BTC/kvB)
var fallbackFeerate = decimal.RequireFromString("0.0001")

type forwardRPC interface {
	EstimateSmartFee(ctx context.Context, confTarget int) (decimal.Decimal, bool, error)
	CreateRawTransaction(ctx context.Context, inputs []node.TxInput, outputs map[string]string) (string, error)
	SignRawTransactionWithKey(ctx context.Context, txHex string, keys []string) (*node.SignResult, error)
	SendRawTransaction(ctx context.Context, signedHex string) (string, error)
}

type forwardStore interface {
	EncryptedKey(ctx context.Context, address string) (string, error)
	SetForwardTxid(ctx context.Context, paymentID uint64, txid string) error
}

// Forwarder 把落到充值地址的资金整笔归集到资金归集地址。
// 每笔支付转发一次，不聚合多个 UTXO。任何一步失败都是致命错误:
// 带着密钥材料的半成品交易没有安全的降级路径，宁可停下来等人工介入。
type Forwarder struct {
	rpc          forwardRPC
	store        forwardStore
	key          []byte // AES-256 密钥，由网关密钥派生
	houseAddress string
	log          *zap.Logger
}

func NewForwarder(rpc forwardRPC, store forwardStore, key []byte, houseAddress string, log *zap.Logger) *Forwarder {
	return &Forwarder{
		rpc:          rpc,
		store:        store,
		key:          key,
		houseAddress: houseAddress,
		log:          log,
	}
}

// Forward 构造、签名并广播一笔归集交易，然后把转发 txid 记回支付记录
func (f *Forwarder) Forward(ctx context.Context, p model.Payment) error {
	timer := prometheus.NewTimer(monitor.Business.ForwardDuration)
	defer timer.ObserveDuration()

	err := f.forward(ctx, p)
	if err != nil {
		monitor.Business.ForwardsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("归集支付 %d 失败: %w", p.ID, err)
	}
	monitor.Business.ForwardsTotal.WithLabelValues("ok").Inc()
	return nil
}

func (f *Forwarder) forward(ctx context.Context, p model.Payment) error {
	feerate, err := f.feerate(ctx)
	if err != nil {
		return err
	}

	// fee = feerate * vsize / 1024，输出金额保留 8 位小数
	fee := feerate.Mul(decimal.NewFromInt(refTxVsize)).Div(decimal.NewFromInt(1024))
	amount := p.Amount.Sub(fee)
	if !amount.IsPositive() {
		// 粉尘入账连矿工费都付不起，留在原地址不动
		f.log.Warn("支付金额不足以覆盖矿工费，跳过归集",
			zap.Uint64("payment_id", p.ID),
			zap.String("amount", p.Amount.String()),
			zap.String("fee", fee.String()))
		return nil
	}

	wif, err := f.privateKey(ctx, p.Address)
	if err != nil {
		return err
	}

	inputs := []node.TxInput{{Txid: p.Txid, Vout: p.Vout}}
	outputs := map[string]string{f.houseAddress: amount.StringFixed(8)}

	txHex, err := f.rpc.CreateRawTransaction(ctx, inputs, outputs)
	if err != nil {
		return err
	}

	signed, err := f.rpc.SignRawTransactionWithKey(ctx, txHex, []string{wif})
	if err != nil {
		return err
	}

	forwardTxid, err := f.rpc.SendRawTransaction(ctx, signed.Hex)
	if err != nil {
		return err
	}

	if err := f.store.SetForwardTxid(ctx, p.ID, forwardTxid); err != nil {
		return err
	}

	f.log.Info("支付已归集",
		zap.Uint64("payment_id", p.ID),
		zap.String("txid", p.Txid),
		zap.String("forward_txid", forwardTxid),
		zap.String("amount", amount.StringFixed(8)))
	return nil
}

// privateKey 取出地址私钥密文并解密为 WIF，明文不落日志不落库
func (f *Forwarder) privateKey(ctx context.Context, address string) (string, error) {
	encHex, err := f.store.EncryptedKey(ctx, address)
	if err != nil {
		return "", err
	}
	ciphertext, err := hex.DecodeString(encHex)
	if err != nil {
		return "", fmt.Errorf("私钥密文不是合法 hex: %w", err)
	}
	wif, err := crypto_util.DecryptAESGCM(f.key, ciphertext)
	if err != nil {
		return "", fmt.Errorf("私钥解密失败: %w", err)
	}
	return string(wif), nil
}

func (f *Forwarder) feerate(ctx context.Context) (decimal.Decimal, error) {
	feerate, ok, err := f.rpc.EstimateSmartFee(ctx, feeConfTarget)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		f.log.Debug("节点无费率估计，使用兜底费率",
			zap.String("fallback", fallbackFeerate.String()))
		return fallbackFeerate, nil
	}
	return feerate, nil
}
