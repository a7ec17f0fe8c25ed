package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositAddress 充值地址表。
// 一个订单一条记录，由地址签发路径创建，之后不可变。
// 私钥只以 AES-GCM 密文 (hex) 落库，明文仅在转发签名时短暂存在于内存。
type DepositAddress struct {
	Address             string    `gorm:"type:varchar(70);primaryKey" json:"address"`
	OrderID             string    `gorm:"type:varchar(50);not null;unique" json:"order_id"`
	CreatedAt           time.Time `gorm:"not null" json:"created_at"`
	EncryptedPrivateKey string    `gorm:"type:varchar(328);not null" json:"-"` // 不返回密文
}

// Payment 支付记录表。
// 核心不变量: (txid, address) 唯一——同一链上输出最多入库一次，
// 重复事件投递靠这条唯一约束吸收，进程内不做任何互斥。
// 只追加/更新，永不删除 (审计需要)。
type Payment struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
	Txid        string          `gorm:"type:varchar(80);not null;uniqueIndex:idx_txid_address" json:"txid"`
	Vout        uint32          `gorm:"not null" json:"vout"`
	Amount      decimal.Decimal `gorm:"type:decimal(16,8);not null" json:"amount"`
	IsActive    bool            `gorm:"not null;default:true;index" json:"is_active"`
	Address     string          `gorm:"type:varchar(70);not null;uniqueIndex:idx_txid_address;index" json:"address"`
	OrderID     string          `gorm:"type:varchar(50);not null" json:"order_id"`
	ForwardTxid *string         `gorm:"type:varchar(80)" json:"forward_txid"`

	DepositAddress DepositAddress `gorm:"foreignKey:Address;references:Address" json:"-"`
}

func (DepositAddress) TableName() string {
	return "deposit_addresses"
}

func (Payment) TableName() string {
	return "payments"
}
