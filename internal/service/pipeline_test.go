package service

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"paygate/internal/model"
	"paygate/internal/mq"
	"paygate/internal/store"
	"paygate/pkg/crypto_util"
)

// 端到端: 事件输出 -> 路由命中 -> 入库 -> 归集写回 forward_txid，
// 全部走真实 Store (内存 sqlite，带唯一约束翻译)。
func TestPipeline_OutputToForwardedPayment(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.DepositAddress{}, &model.Payment{}))
	st := store.New(db)

	ctx := context.Background()
	key := crypto_util.DeriveKey(testSecret)

	// 已签发的充值地址，私钥密文入库
	require.NoError(t, st.CreateAddress(ctx, &model.DepositAddress{
		Address:             "bc1qxyz",
		OrderID:             "order-42",
		EncryptedPrivateKey: encryptedWIF(t, key),
	}))

	rpc := &fakeForwardRPC{
		feerate:   decimal.RequireFromString("0.00001"),
		feerateOK: true,
	}
	forwarder := NewForwarder(rpc, st, key, houseAddr, zap.NewNop())
	router := &fakeRouter{routes: map[string]string{"bc1qxyz": "order-42"}}
	sp := &syncSpawner{}
	processor := NewProcessor(st, router, sp, forwarder, &fakeNotifier{}, mq.Noop{}, zap.NewNop())

	amount := decimal.RequireFromString("0.0005")
	require.NoError(t, processor.OnOutput(ctx, "txid-e2e", 1, amount, "bc1qxyz"))
	for _, err := range sp.errs {
		require.NoError(t, err)
	}

	payments, err := st.ListAddressPayments(ctx, "bc1qxyz")
	require.NoError(t, err)
	require.Len(t, payments, 1)

	p := payments[0]
	assert.Equal(t, "order-42", p.OrderID)
	assert.Equal(t, uint32(1), p.Vout)
	assert.True(t, p.Amount.Equal(amount))
	assert.True(t, p.IsActive)
	require.NotNil(t, p.ForwardTxid, "归集成功后必须写回 forward_txid")
	assert.Equal(t, "forward-txid-1", *p.ForwardTxid)

	// 同一事件重复投递: 行数不变，不再触发归集
	before := len(sp.names)
	require.NoError(t, processor.OnOutput(ctx, "txid-e2e", 1, amount, "bc1qxyz"))
	payments, err = st.ListAddressPayments(ctx, "bc1qxyz")
	require.NoError(t, err)
	assert.Len(t, payments, 1, "重复投递不得产生第二行")
	assert.Len(t, sp.names, before, "重复投递不得再派生任务")
}
