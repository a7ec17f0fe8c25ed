package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paygate/pkg/monitor"
	"paygate/pkg/retry"
	"paygate/pkg/utils/lock"
)

const (
	rateSyncSchedule = "@every 10s"
	rateSyncLockKey  = "cron:lock:sync_rate"
	rateSyncLockTTL  = 10 * time.Second
)

type rateCache interface {
	SetRate(ctx context.Context, price string) error
}

// tickerResponse 行情接口的应答 ({"symbol":"BTCUSD","price":"..."})
type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Exchange 汇率守护进程: 定时抓最新 BTCUSD 价格写进缓存，
// 地址签发用它做美元报价换算。
// 多实例部署用 Redis 锁保证每个周期只有一个实例真正去抓。
// 行情源抖动在重试预算内消化，预算耗尽视为致命，报价不能无限陈旧。
type Exchange struct {
	cache  rateCache
	locker lock.DistributedLock
	http   *http.Client
	url    string
	policy retry.Policy
	log    *zap.Logger
}

func NewExchange(c rateCache, locker lock.DistributedLock, url string, log *zap.Logger) *Exchange {
	return &Exchange{
		cache:  c,
		locker: locker,
		http:   &http.Client{Timeout: 15 * time.Second},
		url:    url,
		policy: retry.Policy{Attempts: 5, Backoff: 2 * time.Second},
		log:    log,
	}
}

// Run 启动定时同步，阻塞到取消或同步致命失败
func (e *Exchange) Run(ctx context.Context) error {
	c := cron.New()
	fatal := make(chan error, 1)

	_, err := c.AddFunc(rateSyncSchedule, func() {
		if err := e.SyncRate(ctx); err != nil {
			select {
			case fatal <- err:
			default:
			}
		}
	})
	if err != nil {
		return err
	}

	c.Start()
	defer func() { <-c.Stop().Done() }()

	// 启动即同步一次，不等第一个调度周期
	if err := e.SyncRate(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-fatal:
		return err
	}
}

// SyncRate 抓一次最新价格写入缓存。拿不到锁说明别的实例在干，直接跳过。
func (e *Exchange) SyncRate(ctx context.Context) error {
	locked, err := e.locker.Acquire(ctx, rateSyncLockKey, rateSyncLockTTL)
	if err != nil || !locked {
		e.log.Debug("汇率同步: 锁被占用，跳过本轮")
		return nil
	}
	defer e.locker.Release(ctx, rateSyncLockKey)

	var price decimal.Decimal
	err = e.policy.Do(ctx, func(ctx context.Context) error {
		var fetchErr error
		price, fetchErr = e.fetchRate(ctx)
		if fetchErr != nil {
			e.log.Warn("抓取汇率失败", zap.Error(fetchErr))
		}
		return fetchErr
	})
	if err != nil {
		return fmt.Errorf("汇率同步重试耗尽: %w", err)
	}

	if err := e.cache.SetRate(ctx, price.String()); err != nil {
		return err
	}
	rate, _ := price.Float64()
	monitor.Business.ExchangeRate.Set(rate)
	e.log.Debug("汇率已更新", zap.String("price", price.String()))
	return nil
}

func (e *Exchange) fetchRate(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("行情接口返回 http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, err
	}

	var ticker tickerResponse
	if err := json.Unmarshal(body, &ticker); err != nil {
		return decimal.Zero, fmt.Errorf("行情应答不可解析: %w", err)
	}

	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("行情价格不是十进制数 %q: %w", ticker.Price, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("行情价格非正: %s", price)
	}
	return price, nil
}
