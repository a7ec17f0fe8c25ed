package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"paygate/internal/model"
)

// Store 封装网关的全部持久化操作。
// 每个方法一次短事务，不跨挂起点持有连接。
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateAddress 落库一条新的充值地址。
// 订单已有地址时返回 gorm.ErrDuplicatedKey，由 API 层翻译成冲突响应。
func (s *Store) CreateAddress(ctx context.Context, addr *model.DepositAddress) error {
	if addr.CreatedAt.IsZero() {
		addr.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(addr).Error
}

// GetAddress 按地址查询
func (s *Store) GetAddress(ctx context.Context, address string) (*model.DepositAddress, error) {
	var addr model.DepositAddress
	if err := s.db.WithContext(ctx).First(&addr, "address = ?", address).Error; err != nil {
		return nil, err
	}
	return &addr, nil
}

// FindAddressByOrder 按订单号查询
func (s *Store) FindAddressByOrder(ctx context.Context, orderID string) (*model.DepositAddress, error) {
	var addr model.DepositAddress
	if err := s.db.WithContext(ctx).First(&addr, "order_id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return &addr, nil
}

// EncryptedKey 取地址对应的私钥密文 (hex)，仅转发器调用
func (s *Store) EncryptedKey(ctx context.Context, address string) (string, error) {
	var addr model.DepositAddress
	err := s.db.WithContext(ctx).Select("encrypted_private_key").
		First(&addr, "address = ?", address).Error
	if err != nil {
		return "", fmt.Errorf("查询私钥密文失败: %w", err)
	}
	return addr.EncryptedPrivateKey, nil
}

// ListAddressPayments 按地址列出全部支付记录 (API 只读面)
func (s *Store) ListAddressPayments(ctx context.Context, address string) ([]model.Payment, error) {
	var payments []model.Payment
	err := s.db.WithContext(ctx).
		Where("address = ?", address).
		Order("id").
		Find(&payments).Error
	return payments, err
}

// CreatePayment 幂等入库一条支付记录。
// 返回值 created=false 表示 (txid, address) 已存在——同一事件的重复投递，
// 按成功的空操作处理。其他错误原样返回。
func (s *Store) CreatePayment(ctx context.Context, p *model.Payment) (bool, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.IsActive = true

	err := s.db.WithContext(ctx).Create(p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("支付入库失败: %w", err)
	}
	return true, nil
}

// SetForwardTxid 记录转发交易 id，成功广播后调用一次
func (s *Store) SetForwardTxid(ctx context.Context, paymentID uint64, txid string) error {
	return s.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ?", paymentID).
		Update("forward_txid", txid).Error
}

// DeactivatePayment 将单条支付标记为不活跃 (商户回调返回 stop)
func (s *Store) DeactivatePayment(ctx context.Context, paymentID uint64) error {
	return s.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ?", paymentID).
		Update("is_active", false).Error
}

// DeactivatePayments 批量失活 (留存期过期的静默清理)
func (s *Store) DeactivatePayments(ctx context.Context, paymentIDs []uint64) error {
	if len(paymentIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id IN ?", paymentIDs).
		Update("is_active", false).Error
}

// ListActivePayments 确认扫描用: 当前所有活跃支付
func (s *Store) ListActivePayments(ctx context.Context) ([]model.Payment, error) {
	var payments []model.Payment
	err := s.db.WithContext(ctx).Where("is_active").Find(&payments).Error
	return payments, err
}

// IterateAddresses 分批遍历全部充值地址 (缓存预热用)，batch 条一批回调
func (s *Store) IterateAddresses(ctx context.Context, batch int, fn func(addrs []model.DepositAddress) error) error {
	var addrs []model.DepositAddress
	result := s.db.WithContext(ctx).FindInBatches(&addrs, batch, func(tx *gorm.DB, _ int) error {
		return fn(addrs)
	})
	return result.Error
}

// Ping 就绪探针: 对地址表做一次最小查询
func (s *Store) Ping(ctx context.Context) error {
	var addr model.DepositAddress
	err := s.db.WithContext(ctx).Limit(1).Find(&addr).Error
	return err
}
