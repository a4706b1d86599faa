// cmd/notification-service/main.go
package main

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"

	"ticketradar/internal/pkg/backoff"
	"ticketradar/internal/pkg/bootstrap"
	"ticketradar/internal/pkg/database"
	"ticketradar/internal/pkg/httpclient"
	"ticketradar/internal/pkg/mq"
	"ticketradar/internal/service/notification/application"
	"ticketradar/internal/service/notification/infrastructure"
	"ticketradar/internal/service/notification/infrastructure/adapter"
	"ticketradar/internal/service/notification/interfaces"
	"ticketradar/internal/service/notification/port"
)

const (
	serviceName = "notification-service"
	servicePort = 8094

	matchTopic           = "alert-matches"
	matchConsumerGroup   = "notification-match-consumer-group"
	outcomeTopic         = "purchase-events"
	outcomeConsumerGroup = "notification-outcome-consumer-group"
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

	channelRepo, err := infrastructure.NewMysqlChannelRepository(db)
	if err != nil {
		log.Fatalf("failed to initialize channel repository: %v", err)
	}

	httpClient := httpclient.NewClient(tracer)
	pushAdapter := adapter.NewPushKafkaAdapter(cfg.Infra.Kafka.Brokers)
	defer pushAdapter.Close()

	senders := []port.ChannelSender{
		adapter.NewWebhookAdapter(httpClient),
		adapter.NewDiscordAdapter(httpClient),
		adapter.NewSlackAdapter(httpClient),
		pushAdapter,
	}

	policy := backoff.Policy{
		Base:   cfg.App.Backoff.Base,
		Cap:    cfg.App.Backoff.Cap,
		Jitter: cfg.App.Backoff.Jitter,
	}
	dispatcher := application.NewDispatcher(channelRepo, senders, policy, tracer)
	channelService := application.NewChannelService(channelRepo, tracer)
	handler := interfaces.NewChannelHandler(channelService)

	matchFailures := mq.NewFailureHandler(cfg.Infra.Kafka.Brokers, matchTopic, matchTopic+"-dlt", 3)
	defer matchFailures.Close()
	outcomeFailures := mq.NewFailureHandler(cfg.Infra.Kafka.Brokers, outcomeTopic, outcomeTopic+"-dlt", 3)
	defer outcomeFailures.Close()

	matchConsumer := interfaces.NewMatchEventConsumer(
		mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, matchTopic, matchConsumerGroup),
		dispatcher, matchFailures)
	outcomeConsumer := interfaces.NewOutcomeEventConsumer(
		mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, outcomeTopic, outcomeConsumerGroup),
		dispatcher, outcomeFailures)

	workCtx, stopWork := context.WithCancel(context.Background())
	matchConsumer.Start(workCtx)
	outcomeConsumer.Start(workCtx)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(ctx context.Context) {
			stopWork()
			matchConsumer.Stop()
			outcomeConsumer.Stop()
		},
	})
}
