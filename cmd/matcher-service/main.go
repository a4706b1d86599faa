// cmd/matcher-service/main.go
package main

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"

	"ticketradar/internal/pkg/bootstrap"
	"ticketradar/internal/pkg/database"
	"ticketradar/internal/pkg/httpclient"
	"ticketradar/internal/pkg/logger"
	pkgredis "ticketradar/internal/pkg/redis"
	"ticketradar/internal/pkg/zookeeper"
	"ticketradar/internal/service/alert/application"
	"ticketradar/internal/service/alert/domain"
	"ticketradar/internal/service/alert/infrastructure"
	"ticketradar/internal/service/alert/infrastructure/adapter"
	"ticketradar/internal/service/alert/infrastructure/rule"
	"ticketradar/internal/service/alert/interfaces"
)

const (
	serviceName  = "matcher-service"
	servicePort  = 8091
	pollInterval = 30 * time.Second
	// 轮询锁：多实例部署时只有持锁者拉取票源流，避免重复撮合
	feedLockResource = "listing-feed-poll"
)

// main 是组装根：创建并连接所有依赖，然后启动服务。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()
	tracer := otel.Tracer(serviceName)

	db, err := database.Open(database.Options{
		Host:     cfg.Infra.Mysql.Host,
		Port:     cfg.Infra.Mysql.Port,
		User:     cfg.Infra.Mysql.User,
		Password: cfg.Infra.Mysql.Password,
		Database: cfg.Infra.Mysql.Database,
	})
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}

	alertRepo, err := infrastructure.NewMysqlAlertRepository(db)
	if err != nil {
		log.Fatalf("failed to initialize alert repository: %v", err)
	}

	redisClient := pkgredis.NewClient(cfg.Infra.Redis.Addr)
	defer redisClient.Close()

	ruleEngine, err := rule.NewCelRuleEngine()
	if err != nil {
		log.Fatalf("failed to initialize rule engine: %v", err)
	}

	httpClient := httpclient.NewClient(tracer)
	feed := adapter.NewFeedHttpAdapter(httpClient, cfg.Infra.ListingFeed.BaseURL)
	dedup := adapter.NewDedupRedisAdapter(redisClient, cfg.App.MatchDedupTTL)

	matchProducer := adapter.NewMatchKafkaAdapter(cfg.Infra.Kafka.Brokers)
	defer matchProducer.Close()
	purchaseRequester := adapter.NewPurchaseRequestKafkaAdapter(cfg.Infra.Kafka.Brokers)
	defer purchaseRequester.Close()

	matcher := domain.NewMatcher(ruleEngine)
	matchService := application.NewMatchService(alertRepo, feed, dedup,
		matchProducer, purchaseRequester, matcher, tracer, cfg.App.MatcherWorkers)
	alertService := application.NewAlertApplicationService(alertRepo, tracer, cfg.App.DefaultCurrency)
	handler := interfaces.NewAlertHandler(alertService)

	pollCtx, stopPolling := context.WithCancel(context.Background())
	go runFeedPoller(pollCtx, cfg.Infra.Zookeeper.Servers, matchService)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(ctx context.Context) {
			stopPolling()
		},
	})
}

// runFeedPoller 持有 Zookeeper 分布式锁后按固定周期拉取并撮合新票源。
// 拿不到锁就阻塞等待，持锁实例退出后由下一实例接管。
func runFeedPoller(ctx context.Context, zkServers []string, matchService *application.MatchService) {
	conn, err := zookeeper.Connect(zkServers)
	if err != nil {
		log.Fatalf("failed to connect zookeeper: %v", err)
	}
	defer conn.Close()

	lock, err := zookeeper.NewDistributedLock(conn, feedLockResource)
	if err != nil {
		log.Fatalf("failed to create feed poll lock: %v", err)
	}

	for {
		if ctx.Err() != nil {
			return
		}
		if err := lock.Lock(time.Minute); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("feed poll lock not acquired, retrying")
			continue
		}
		break
	}
	defer lock.Unlock()
	logger.Ctx(ctx).Info().Msg("feed poll leadership acquired")

	// 首轮回溯一个周期，避免启动瞬间的票源漏撮合
	lastPoll := time.Now().Add(-pollInterval)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pollStart := time.Now()
			n, err := matchService.PollAndMatch(ctx, lastPoll)
			if err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("feed poll failed")
				continue
			}
			lastPoll = pollStart
			if n > 0 {
				logger.Ctx(ctx).Info().Int("listings", n).Msg("feed poll completed")
			}
		case <-ctx.Done():
			return
		}
	}
}
