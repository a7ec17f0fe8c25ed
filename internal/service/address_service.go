package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"paygate/internal/cache"
	"paygate/internal/model"
	"paygate/pkg/address"
	"paygate/pkg/crypto_util"
	"paygate/pkg/errno"
	"paygate/pkg/monitor"
)

// btcQuoteScale 比特币报价保留 8 位小数 (1 satoshi)
const btcQuoteScale = 8

type addressStore interface {
	CreateAddress(ctx context.Context, addr *model.DepositAddress) error
}

type routeWriter interface {
	SetRoute(ctx context.Context, addr, orderID string) error
	GetRate(ctx context.Context) (string, error)
}

// AddressService 充值地址签发。
// 一个订单一个地址，重复签发直接报冲突，不返回已有地址——
// 调用方想查已有地址走查询接口。
type AddressService struct {
	store addressStore
	cache routeWriter
	gen   *address.BTCGenerator
	key   []byte
	log   *zap.Logger
}

func NewAddressService(store addressStore, c routeWriter, gen *address.BTCGenerator, key []byte, log *zap.Logger) *AddressService {
	return &AddressService{
		store: store,
		cache: c,
		gen:   gen,
		key:   key,
		log:   log,
	}
}

// Issue 为订单签发一个新的充值地址。
// usdAmount 非空时按最新汇率折算 BTC 应付金额一并返回。
func (s *AddressService) Issue(ctx context.Context, orderID string, usdAmount *decimal.Decimal) (*model.DepositAddress, *decimal.Decimal, error) {
	// 先报价再生成密钥，汇率不可用时不留下孤儿密钥
	quote, err := s.quote(ctx, usdAmount)
	if err != nil {
		return nil, nil, err
	}

	addr, wif, err := s.gen.NewAddress()
	if err != nil {
		return nil, nil, fmt.Errorf("生成地址失败: %w", err)
	}

	ciphertext, err := crypto_util.EncryptAESGCM(s.key, []byte(wif))
	if err != nil {
		return nil, nil, fmt.Errorf("私钥加密失败: %w", err)
	}

	record := &model.DepositAddress{
		Address:             addr,
		OrderID:             orderID,
		EncryptedPrivateKey: hex.EncodeToString(ciphertext),
	}
	if err := s.store.CreateAddress(ctx, record); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, nil, errno.ErrOrderExists
		}
		return nil, nil, err
	}

	// 路由缓存写失败不回滚地址: 预热任务和下次签发都能补上，
	// 而商户拿到的地址必须立即有效
	if err := s.cache.SetRoute(ctx, addr, orderID); err != nil {
		s.log.Error("路由缓存写入失败，等待预热补偿",
			zap.String("address", addr), zap.Error(err))
	}

	monitor.Business.AddressesIssuedTotal.Inc()
	s.log.Info("签发充值地址",
		zap.String("order_id", orderID), zap.String("address", addr))
	return record, quote, nil
}

// quote 按缓存里的最新汇率把美元金额折算成 BTC
func (s *AddressService) quote(ctx context.Context, usdAmount *decimal.Decimal) (*decimal.Decimal, error) {
	if usdAmount == nil {
		return nil, nil
	}

	price, err := s.cache.GetRate(ctx)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, errno.ErrRateUnavailable
	}
	if err != nil {
		return nil, err
	}

	rate, err := decimal.NewFromString(price)
	if err != nil || !rate.IsPositive() {
		return nil, errno.ErrRateUnavailable
	}

	btc := usdAmount.DivRound(rate, btcQuoteScale)
	return &btc, nil
}
