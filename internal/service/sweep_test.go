package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paygate/internal/model"
	"paygate/internal/node"
)

type fakeSweepStore struct {
	payments    []model.Payment
	deactivated [][]uint64
}

func (f *fakeSweepStore) ListActivePayments(ctx context.Context) ([]model.Payment, error) {
	return f.payments, nil
}

func (f *fakeSweepStore) DeactivatePayments(ctx context.Context, ids []uint64) error {
	f.deactivated = append(f.deactivated, ids)
	return nil
}

type fakeSweepRPC struct {
	confirmations map[string]int64
	calls         []string
}

func (f *fakeSweepRPC) GetRawTransaction(ctx context.Context, txid string) (*node.TxDetail, error) {
	f.calls = append(f.calls, txid)
	return &node.TxDetail{Txid: txid, Confirmations: f.confirmations[txid]}, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls map[string]int64
	err   error
}

func (f *fakeNotifier) Notify(ctx context.Context, p model.Payment, confirmations int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int64{}
	}
	f.calls[p.Txid] = confirmations
	return f.err
}

func activePayment(id uint64, txid string, age time.Duration) model.Payment {
	return model.Payment{
		ID:        id,
		Txid:      txid,
		OrderID:   "order",
		IsActive:  true,
		CreatedAt: time.Now().UTC().Add(-age),
	}
}

func TestSweep_NotifiesConfirmedPayments(t *testing.T) {
	st := &fakeSweepStore{payments: []model.Payment{
		activePayment(1, "tx-confirmed", time.Hour),
		activePayment(2, "tx-pending", time.Hour),
	}}
	rpc := &fakeSweepRPC{confirmations: map[string]int64{"tx-confirmed": 6}}
	nt := &fakeNotifier{}

	sw := NewSweep(st, rpc, nt, zap.NewNop())
	require.NoError(t, sw.pass(context.Background()))

	assert.Equal(t, map[string]int64{"tx-confirmed": 6}, nt.calls,
		"只有确认数大于 0 的支付才推回调")
	assert.Empty(t, st.deactivated)
}

func TestSweep_ExpiredPaymentSilentlyDeactivated(t *testing.T) {
	st := &fakeSweepStore{payments: []model.Payment{
		activePayment(1, "tx-old", 15*24*time.Hour),
		activePayment(2, "tx-fresh", time.Hour),
	}}
	rpc := &fakeSweepRPC{confirmations: map[string]int64{"tx-old": 100, "tx-fresh": 1}}
	nt := &fakeNotifier{}

	sw := NewSweep(st, rpc, nt, zap.NewNop())
	require.NoError(t, sw.pass(context.Background()))

	assert.Equal(t, [][]uint64{{1}}, st.deactivated, "留存期过了就失活")
	assert.NotContains(t, nt.calls, "tx-old", "过期清理不推回调，确认数再高也不推")
	assert.NotContains(t, rpc.calls, "tx-old", "过期支付不需要再查链")
	assert.Contains(t, nt.calls, "tx-fresh")
}

func TestSweep_NotifierStorageFailureFatal(t *testing.T) {
	st := &fakeSweepStore{payments: []model.Payment{activePayment(1, "tx", time.Hour)}}
	rpc := &fakeSweepRPC{confirmations: map[string]int64{"tx": 1}}
	boom := errors.New("db down")

	sw := NewSweep(st, rpc, &fakeNotifier{err: boom}, zap.NewNop())
	require.ErrorIs(t, sw.pass(context.Background()), boom)
}

func TestSweep_TriggerCoalesces(t *testing.T) {
	sw := NewSweep(&fakeSweepStore{}, &fakeSweepRPC{}, &fakeNotifier{}, zap.NewNop())

	// 扫描进行中积压的触发合并为一次
	sw.Trigger()
	sw.Trigger()
	sw.Trigger()

	assert.Len(t, sw.trigger, 1, "触发通道容量为 1，多余的触发应被合并")
}

func TestSweep_RunStopsOnCancel(t *testing.T) {
	sw := NewSweep(&fakeSweepStore{}, &fakeSweepRPC{}, &fakeNotifier{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	sw.Trigger() // 空扫描一轮
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("取消后 Run 未退出")
	}
}
