package database

import (
	"github.com/redis/go-redis/v9"
)

// ConnectRedis 创建 Redis 客户端 (连接状态由就绪探针校验)
func ConnectRedis(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}
