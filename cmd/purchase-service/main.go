// cmd/purchase-service/main.go
package main

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"

	"ticketradar/internal/pkg/backoff"
	"ticketradar/internal/pkg/bootstrap"
	"ticketradar/internal/pkg/database"
	"ticketradar/internal/pkg/httpclient"
	"ticketradar/internal/pkg/logger"
	"ticketradar/internal/pkg/metrics"
	"ticketradar/internal/pkg/mq"
	pkgredis "ticketradar/internal/pkg/redis"
	"ticketradar/internal/service/purchase/application"
	"ticketradar/internal/service/purchase/domain"
	"ticketradar/internal/service/purchase/infrastructure"
	"ticketradar/internal/service/purchase/infrastructure/adapter"
	"ticketradar/internal/service/purchase/interfaces"
)

const (
	serviceName = "purchase-service"
	servicePort = 8092

	requestTopic         = "purchase-requests"
	requestConsumerGroup = "purchase-request-consumer-group"
	retryTopic           = "purchase-retry-topic"
	retryConsumerGroup   = "purchase-retry-consumer-group"

	// 空队列时执行器的轮询间隔，延迟重投由 delay-scheduler 精确驱动，
	// 这里只是兜底
	idlePollInterval = 2 * time.Second
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

	intentRepo, err := infrastructure.NewMysqlIntentRepository(db)
	if err != nil {
		log.Fatalf("failed to initialize intent repository: %v", err)
	}
	attemptRepo, err := infrastructure.NewMysqlAttemptRepository(db)
	if err != nil {
		log.Fatalf("failed to initialize attempt repository: %v", err)
	}

	redisClient := pkgredis.NewClient(cfg.Infra.Redis.Addr)
	defer redisClient.Close()
	reserver, err := adapter.NewReservationRedisAdapter(redisClient)
	if err != nil {
		log.Fatalf("failed to initialize reservation adapter: %v", err)
	}

	httpClient := httpclient.NewClient(tracer)
	platform := adapter.NewPlatformHttpAdapter(httpClient, cfg.Infra.Platform.BaseURL)

	scheduler := adapter.NewSchedulerKafkaAdapter(cfg.Infra.Kafka.Brokers)
	defer scheduler.Close()
	outcomes := adapter.NewOutcomeKafkaAdapter(cfg.Infra.Kafka.Brokers)
	defer outcomes.Close()

	policy := backoff.Policy{
		Base:   cfg.App.Backoff.Base,
		Cap:    cfg.App.Backoff.Cap,
		Jitter: cfg.App.Backoff.Jitter,
	}
	executor := application.NewExecutor(intentRepo, attemptRepo, platform, reserver,
		scheduler, outcomes, policy, cfg.App.PurchaseTimeout, tracer)
	queueService := application.NewQueueService(intentRepo, attemptRepo, reserver, outcomes, tracer, cfg.App.MaxPurchaseAttempts)
	handler := interfaces.NewQueueHandler(queueService)

	// 消费失败的消息先回原主题重投，超过次数进死信主题
	requestFailures := mq.NewFailureHandler(cfg.Infra.Kafka.Brokers, requestTopic, requestTopic+"-dlt", 3)
	defer requestFailures.Close()
	retryFailures := mq.NewFailureHandler(cfg.Infra.Kafka.Brokers, retryTopic, retryTopic+"-dlt", 3)
	defer retryFailures.Close()

	requestConsumer := interfaces.NewRequestConsumerAdapter(
		mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, requestTopic, requestConsumerGroup),
		queueService, requestFailures)
	retryConsumer := interfaces.NewRetryConsumerAdapter(
		mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, retryTopic, retryConsumerGroup),
		executor, retryFailures)

	workCtx, stopWork := context.WithCancel(context.Background())
	requestConsumer.Start(workCtx)
	retryConsumer.Start(workCtx)
	for i := 0; i < cfg.App.ExecutorWorkers; i++ {
		go runExecutorWorker(workCtx, executor)
	}
	go reportQueueDepth(workCtx, intentRepo)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(ctx context.Context) {
			stopWork()
			requestConsumer.Stop()
			retryConsumer.Stop()
		},
	})
}

// runExecutorWorker 持续领取并执行购买意向，队列为空时退避轮询。
func runExecutorWorker(ctx context.Context, executor *application.Executor) {
	for {
		if ctx.Err() != nil {
			return
		}
		claimed, err := executor.ProcessNext(ctx)
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("claim next intent failed")
		}
		if claimed {
			continue
		}
		select {
		case <-time.After(idlePollInterval):
		case <-ctx.Done():
			return
		}
	}
}

// reportQueueDepth 周期性上报待执行的队列深度。
func reportQueueDepth(ctx context.Context, intents domain.IntentRepository) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			depth, err := intents.CountByState(ctx, domain.StatePending)
			if err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("count pending intents failed")
				continue
			}
			metrics.QueueDepth.Set(float64(depth))
		case <-ctx.Done():
			return
		}
	}
}
