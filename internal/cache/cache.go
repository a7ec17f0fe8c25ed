package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RateKey 汇率缓存键，由 exchange 守护进程刷新，地址签发只读
const RateKey = "BTCUSD"

// ErrNotFound 键不存在
var ErrNotFound = errors.New("cache: key not found")

// Cache 地址路由缓存 + 汇率缓存。
// 路由映射 address -> order_id 仅用于热路径上 O(1) 判断
// "这个输出是不是打到我们的地址"。权威数据在库里，缓存可随时整体重建。
type Cache struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// SetRoute 写入 address -> order_id 映射 (签发和预热时调用，不过期)
func (c *Cache) SetRoute(ctx context.Context, address, orderID string) error {
	if err := c.rdb.Set(ctx, address, orderID, 0).Err(); err != nil {
		return fmt.Errorf("写入路由缓存失败: %w", err)
	}
	return nil
}

// LookupRoute 查询地址归属。未命中返回 ErrNotFound——表示该输出与我们无关。
func (c *Cache) LookupRoute(ctx context.Context, address string) (string, error) {
	orderID, err := c.rdb.Get(ctx, address).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("查询路由缓存失败: %w", err)
	}
	return orderID, nil
}

// SetRate 写入最新 BTCUSD 价格 (十进制字符串)
func (c *Cache) SetRate(ctx context.Context, price string) error {
	return c.rdb.Set(ctx, RateKey, price, 0).Err()
}

// GetRate 读取最新 BTCUSD 价格。一致性要求弱，陈旧度以轮询间隔为界。
func (c *Cache) GetRate(ctx context.Context) (string, error) {
	price, err := c.rdb.Get(ctx, RateKey).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return price, err
}

// Ping 就绪探针
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
