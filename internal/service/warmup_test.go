package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paygate/internal/model"
)

type fakeWarmupStore struct {
	addrs []model.DepositAddress
}

func (f *fakeWarmupStore) IterateAddresses(ctx context.Context, batch int, fn func(addrs []model.DepositAddress) error) error {
	for start := 0; start < len(f.addrs); start += batch {
		end := start + batch
		if end > len(f.addrs) {
			end = len(f.addrs)
		}
		if err := fn(f.addrs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

type fakeWarmupCache struct {
	mu     sync.Mutex
	routes map[string]string
	err    error
}

func (f *fakeWarmupCache) SetRoute(ctx context.Context, addr, orderID string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.routes == nil {
		f.routes = map[string]string{}
	}
	f.routes[addr] = orderID
	return nil
}

func TestWarmup_LoadsAllRoutes(t *testing.T) {
	st := &fakeWarmupStore{}
	for i := 0; i < 1200; i++ {
		st.addrs = append(st.addrs, model.DepositAddress{
			Address: fmt.Sprintf("bc1qaddr%04d", i),
			OrderID: fmt.Sprintf("order-%04d", i),
		})
	}
	c := &fakeWarmupCache{}

	w := NewWarmup(st, c, zap.NewNop())
	require.NoError(t, w.Run(context.Background()))

	assert.Len(t, c.routes, 1200, "全部地址的路由都要进缓存")
	assert.Equal(t, "order-0777", c.routes["bc1qaddr0777"])
}

func TestWarmup_CacheFailurePropagates(t *testing.T) {
	st := &fakeWarmupStore{addrs: []model.DepositAddress{{Address: "bc1qa", OrderID: "o"}}}
	boom := errors.New("redis down")

	w := NewWarmup(st, &fakeWarmupCache{err: boom}, zap.NewNop())
	require.ErrorIs(t, w.Run(context.Background()), boom, "预热写不进缓存必须失败，半热的缓存会漏支付")
}
