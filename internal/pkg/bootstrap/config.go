// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是所有服务共享的配置结构。
// 通过 CONFIG_PATH 指定的 YAML 文件加载，个别字段允许环境变量覆盖，
// 便于容器环境下不改文件只改变量。
type Config struct {
	App struct {
		DefaultCurrency     string        `yaml:"default_currency"`
		MatcherWorkers      int           `yaml:"matcher_workers"`
		ExecutorWorkers     int           `yaml:"executor_workers"`
		MaxPurchaseAttempts int           `yaml:"max_purchase_attempts"`
		PurchaseTimeout     time.Duration `yaml:"purchase_timeout"`
		MatchDedupTTL       time.Duration `yaml:"match_dedup_ttl"`
		Backoff             struct {
			Base   time.Duration `yaml:"base"`
			Cap    time.Duration `yaml:"cap"`
			Jitter float64       `yaml:"jitter"`
		} `yaml:"backoff"`
	} `yaml:"app"`

	Infra struct {
		Mysql struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
			Database string `yaml:"database"`
		} `yaml:"mysql"`
		Redis struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers []string `yaml:"brokers"`
		} `yaml:"kafka"`
		Zookeeper struct {
			Servers []string `yaml:"servers"`
		} `yaml:"zookeeper"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Nacos struct {
			ServerAddrs string `yaml:"server_addrs"`
			Namespace   string `yaml:"namespace"`
			Group       string `yaml:"group"`
		} `yaml:"nacos"`
		ListingFeed struct {
			BaseURL string `yaml:"base_url"`
		} `yaml:"listing_feed"`
		Platform struct {
			BaseURL string `yaml:"base_url"`
		} `yaml:"platform"`
	} `yaml:"infra"`
}

var currentConfig atomic.Pointer[Config]

// Init 加载配置，必须在 StartService 之前调用。加载失败直接退出，
// 带着错误的配置启动比不启动更危险。
func Init() {
	cfg := defaultConfig()

	path := getEnv("CONFIG_PATH", "config/config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			log.Fatalf("FATAL: invalid config file %s: %v", path, err)
		}
	} else {
		log.Printf("WARN: config file %s not found, using defaults and env overrides", path)
	}

	applyEnvOverrides(cfg)
	currentConfig.Store(cfg)
}

// GetCurrentConfig 返回当前生效的配置。
func GetCurrentConfig() *Config {
	cfg := currentConfig.Load()
	if cfg == nil {
		log.Fatal("FATAL: bootstrap.Init must be called before GetCurrentConfig")
	}
	return cfg
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.App.DefaultCurrency = "USD"
	cfg.App.MatcherWorkers = 4
	cfg.App.ExecutorWorkers = 4
	cfg.App.MaxPurchaseAttempts = 3
	cfg.App.PurchaseTimeout = 15 * time.Second
	cfg.App.MatchDedupTTL = 24 * time.Hour
	cfg.App.Backoff.Base = 2 * time.Second
	cfg.App.Backoff.Cap = 60 * time.Second
	cfg.App.Backoff.Jitter = 0.1

	cfg.Infra.Mysql.Host = "localhost"
	cfg.Infra.Mysql.Port = 3306
	cfg.Infra.Mysql.User = "root"
	cfg.Infra.Mysql.Database = "ticketradar"
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Zookeeper.Servers = []string{"localhost:2181"}
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Nacos.ServerAddrs = "localhost:8848"
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("MYSQL_HOST"); ok {
		cfg.Infra.Mysql.Host = v
	}
	if v, ok := os.LookupEnv("MYSQL_PASSWORD"); ok {
		cfg.Infra.Mysql.Password = v
	}
	if v, ok := os.LookupEnv("REDIS_ADDR"); ok {
		cfg.Infra.Redis.Addr = v
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("ZOOKEEPER_SERVERS"); ok {
		cfg.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v, ok := os.LookupEnv("NACOS_SERVER_ADDRS"); ok {
		cfg.Infra.Nacos.ServerAddrs = v
	}
	if v, ok := os.LookupEnv("NACOS_NAMESPACE"); ok {
		cfg.Infra.Nacos.Namespace = v
	}
	if v, ok := os.LookupEnv("NACOS_GROUP"); ok {
		cfg.Infra.Nacos.Group = v
	}
	if v, ok := os.LookupEnv("LISTING_FEED_URL"); ok {
		cfg.Infra.ListingFeed.BaseURL = v
	}
	if v, ok := os.LookupEnv("PLATFORM_URL"); ok {
		cfg.Infra.Platform.BaseURL = v
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
