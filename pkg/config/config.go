package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	DB      DBConfig      `mapstructure:"db"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Node    NodeConfig    `mapstructure:"node"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

// DSN 拼接 gorm/postgres 连接串
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.Host, c.User, c.Password, c.Name, c.Port)
}

// MigrateURL 拼接 golang-migrate 使用的 URL 形式
func (c DBConfig) MigrateURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NodeConfig 比特币节点的 RPC 与事件订阅配置
type NodeConfig struct {
	RpcUrl      string `mapstructure:"rpc_url"`
	RpcUser     string `mapstructure:"rpc_user"`
	RpcPassword string `mapstructure:"rpc_password"`
	FeedUrl     string `mapstructure:"feed_url"` // 节点事件推送端点 (rawtx / hashblock)
	Testnet     bool   `mapstructure:"testnet"`
}

// GatewayConfig 支付网关业务配置
type GatewayConfig struct {
	// 商户回调端点，确认数变化时 POST 通知
	CallbackUrl string `mapstructure:"callback_url"`
	// 归集目标地址 (热钱包)
	HouseAddress string `mapstructure:"house_address"`
	// 用于派生私钥对称加密密钥的秘密值
	SecretKey string `mapstructure:"secret_key"`
	// 汇率源 (默认 Binance ticker)
	ExchangeUrl string `mapstructure:"exchange_url"`
}

type KafkaConfig struct {
	// 留空则不启用事件发布
	Brokers []string `mapstructure:"brokers"`
}

// Load 读取配置并校验。进程启动时调用一次，之后以显式引用传入各组件，
// 不再保留包级全局。
// 读取顺序: config.yaml (./ 或 ./config) -> 环境变量 (PAYGATE_ 前缀, . 换 _)
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("paygate")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 没有配置文件时仅依赖默认值与环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 启动期校验，缺关键配置直接拒绝启动
func (c *Config) Validate() error {
	if len(c.Gateway.SecretKey) < 16 {
		return fmt.Errorf("gateway.secret_key 长度必须 >= 16")
	}
	if c.Node.RpcUrl == "" {
		return fmt.Errorf("node.rpc_url 不能为空")
	}
	if c.Node.FeedUrl == "" {
		return fmt.Errorf("node.feed_url 不能为空")
	}
	if c.Gateway.CallbackUrl == "" {
		return fmt.Errorf("gateway.callback_url 不能为空")
	}
	if c.Gateway.HouseAddress == "" {
		return fmt.Errorf("gateway.house_address 不能为空")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.http_port", "8080")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "paygate_user")
	v.SetDefault("db.password", "paygate_password")
	v.SetDefault("db.name", "paygate_db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("node.testnet", false)

	v.SetDefault("gateway.exchange_url", "https://api.binance.us/api/v3/ticker/price")
}
