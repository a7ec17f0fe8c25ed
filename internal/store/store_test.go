package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"paygate/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("打开内存库失败: %v", err)
	}
	if err := db.AutoMigrate(&model.DepositAddress{}, &model.Payment{}); err != nil {
		t.Fatalf("建表失败: %v", err)
	}
	return New(db)
}

func seedAddress(t *testing.T, s *Store, address, orderID string) {
	t.Helper()
	err := s.CreateAddress(context.Background(), &model.DepositAddress{
		Address:             address,
		OrderID:             orderID,
		EncryptedPrivateKey: "deadbeef",
	})
	if err != nil {
		t.Fatalf("预置地址失败: %v", err)
	}
}

func TestCreateAddress_DuplicateOrder(t *testing.T) {
	s := newTestStore(t)
	seedAddress(t, s, "bc1qfirst", "order-1")

	err := s.CreateAddress(context.Background(), &model.DepositAddress{
		Address:             "bc1qsecond",
		OrderID:             "order-1",
		EncryptedPrivateKey: "deadbeef",
	})
	if err == nil {
		t.Fatal("同一订单重复签发地址应报唯一约束冲突")
	}
}

func TestCreatePayment_DuplicateIsNoop(t *testing.T) {
	s := newTestStore(t)
	seedAddress(t, s, "bc1qdup", "order-dup")
	ctx := context.Background()

	p1 := &model.Payment{
		Txid:    "aa11",
		Vout:    1,
		Amount:  decimal.RequireFromString("0.00050000"),
		Address: "bc1qdup",
		OrderID: "order-dup",
	}
	created, err := s.CreatePayment(ctx, p1)
	if err != nil {
		t.Fatalf("首次入库失败: %v", err)
	}
	if !created {
		t.Fatal("首次入库应返回 created=true")
	}

	// 同一 (txid, address) 的重复投递: 吸收为成功空操作
	p2 := &model.Payment{
		Txid:    "aa11",
		Vout:    1,
		Amount:  decimal.RequireFromString("0.00050000"),
		Address: "bc1qdup",
		OrderID: "order-dup",
	}
	created, err = s.CreatePayment(ctx, p2)
	if err != nil {
		t.Fatalf("重复入库不应报错: %v", err)
	}
	if created {
		t.Fatal("重复入库应返回 created=false")
	}

	payments, err := s.ListAddressPayments(ctx, "bc1qdup")
	if err != nil {
		t.Fatal(err)
	}
	if len(payments) != 1 {
		t.Fatalf("(txid, address) 只能有一条记录, 实际 %d 条", len(payments))
	}
	if !payments[0].IsActive {
		t.Error("新支付必须是活跃状态")
	}
	if payments[0].ForwardTxid != nil {
		t.Error("新支付的 forward_txid 必须为空")
	}
}

func TestCreatePayment_ConcurrentDuplicates(t *testing.T) {
	s := newTestStore(t)
	seedAddress(t, s, "bc1qrace", "order-race")
	ctx := context.Background()

	// 并发投递同一事件，最终必须恰好一条记录
	var wg sync.WaitGroup
	createdCount := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := s.CreatePayment(ctx, &model.Payment{
				Txid:    "bb22",
				Vout:    0,
				Amount:  decimal.RequireFromString("0.01000000"),
				Address: "bc1qrace",
				OrderID: "order-race",
			})
			if err != nil {
				t.Errorf("并发入库报错: %v", err)
				return
			}
			createdCount <- created
		}()
	}
	wg.Wait()
	close(createdCount)

	wins := 0
	for c := range createdCount {
		if c {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("恰好一个并发插入应成功, 实际 %d 个", wins)
	}

	payments, _ := s.ListAddressPayments(ctx, "bc1qrace")
	if len(payments) != 1 {
		t.Errorf("并发投递后应只有 1 条记录, 实际 %d 条", len(payments))
	}
}

func TestCreatePayment_SameTxidDifferentAddress(t *testing.T) {
	s := newTestStore(t)
	seedAddress(t, s, "bc1qone", "order-one")
	seedAddress(t, s, "bc1qtwo", "order-two")
	ctx := context.Background()

	// 同一笔交易可以同时打到两个我们的地址，各记一条
	for _, addr := range []string{"bc1qone", "bc1qtwo"} {
		created, err := s.CreatePayment(ctx, &model.Payment{
			Txid:    "cc33",
			Vout:    0,
			Amount:  decimal.RequireFromString("0.002"),
			Address: addr,
			OrderID: "order-" + addr[4:],
		})
		if err != nil || !created {
			t.Fatalf("地址 %s 入库失败: created=%v err=%v", addr, created, err)
		}
	}
}

func TestSetForwardTxid(t *testing.T) {
	s := newTestStore(t)
	seedAddress(t, s, "bc1qfwd", "order-fwd")
	ctx := context.Background()

	p := &model.Payment{
		Txid: "dd44", Vout: 1,
		Amount:  decimal.RequireFromString("0.005"),
		Address: "bc1qfwd", OrderID: "order-fwd",
	}
	if _, err := s.CreatePayment(ctx, p); err != nil {
		t.Fatal(err)
	}

	if err := s.SetForwardTxid(ctx, p.ID, "ff55"); err != nil {
		t.Fatal(err)
	}

	payments, _ := s.ListAddressPayments(ctx, "bc1qfwd")
	if payments[0].ForwardTxid == nil || *payments[0].ForwardTxid != "ff55" {
		t.Error("forward_txid 未被记录")
	}
}

func TestDeactivatePayments(t *testing.T) {
	s := newTestStore(t)
	seedAddress(t, s, "bc1qexp", "order-exp")
	ctx := context.Background()

	var ids []uint64
	for i, txid := range []string{"e1", "e2", "e3"} {
		p := &model.Payment{
			Txid: txid, Vout: uint32(i),
			Amount:  decimal.RequireFromString("0.001"),
			Address: "bc1qexp", OrderID: "order-exp",
		}
		if _, err := s.CreatePayment(ctx, p); err != nil {
			t.Fatal(err)
		}
		if txid != "e3" {
			ids = append(ids, p.ID)
		}
	}

	if err := s.DeactivatePayments(ctx, ids); err != nil {
		t.Fatal(err)
	}

	active, err := s.ListActivePayments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].Txid != "e3" {
		t.Errorf("批量失活后应只剩 e3 活跃, 实际: %+v", active)
	}

	// 空列表是无操作
	if err := s.DeactivatePayments(ctx, nil); err != nil {
		t.Errorf("空列表失活不应报错: %v", err)
	}
}

func TestIterateAddresses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, o := range []string{"w1", "w2", "w3", "w4", "w5"} {
		seedAddress(t, s, "bc1q"+o, "order-"+o)
	}

	total := 0
	batches := 0
	err := s.IterateAddresses(ctx, 2, func(addrs []model.DepositAddress) error {
		total += len(addrs)
		batches++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 {
		t.Errorf("遍历应覆盖全部 5 条, 实际 %d", total)
	}
	if batches != 3 {
		t.Errorf("批大小 2 应产生 3 批, 实际 %d", batches)
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("空表 Ping 也应成功: %v", err)
	}
}

func TestPaymentTimestamps(t *testing.T) {
	s := newTestStore(t)
	seedAddress(t, s, "bc1qts", "order-ts")

	before := time.Now().UTC().Add(-time.Second)
	p := &model.Payment{
		Txid: "ts1", Vout: 0,
		Amount:  decimal.RequireFromString("0.001"),
		Address: "bc1qts", OrderID: "order-ts",
	}
	if _, err := s.CreatePayment(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if p.CreatedAt.Before(before) {
		t.Error("created_at 应在入库时自动填充")
	}
}
