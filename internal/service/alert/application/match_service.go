// internal/service/alert/application/match_service.go
package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"ticketradar/internal/pkg/logger"
	"ticketradar/internal/pkg/metrics"
	"ticketradar/internal/service/alert/domain"
	"ticketradar/internal/service/alert/port"
)

// MatchService 把一批票源快照与全量候选告警做撮合。
//
// 隔离语义：单条告警出错（定义损坏、规则求值失败、下游发布失败）只记录
// 日志与指标，绝不中断同批次其他告警的撮合。
type MatchService struct {
	repo      domain.AlertRepository
	feed      port.ListingFeed
	dedup     port.MatchDeduplicator
	producer  port.MatchEventProducer
	purchaser port.AutoPurchaseRequester
	matcher   *domain.Matcher
	tracer    trace.Tracer
	workers   int
}

func NewMatchService(repo domain.AlertRepository, feed port.ListingFeed, dedup port.MatchDeduplicator,
	producer port.MatchEventProducer, purchaser port.AutoPurchaseRequester,
	matcher *domain.Matcher, tracer trace.Tracer, workers int) *MatchService {
	if workers <= 0 {
		workers = 4
	}
	return &MatchService{
		repo: repo, feed: feed, dedup: dedup,
		producer: producer, purchaser: purchaser,
		matcher: matcher, tracer: tracer, workers: workers,
	}
}

// PollAndMatch 拉取 since 之后的新票源并逐条撮合，返回处理的票源数。
// 票源之间用 errgroup 并发，单条票源的撮合失败不会让整轮轮询失败。
func (s *MatchService) PollAndMatch(ctx context.Context, since time.Time) (int, error) {
	ctx, span := s.tracer.Start(ctx, "app.PollAndMatch")
	defer span.End()

	listings, err := s.feed.FetchSince(ctx, since)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing feed fetch failed")
		return 0, err
	}
	span.SetAttributes(attribute.Int("feed.listings", len(listings)))
	if len(listings) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, listing := range listings {
		listing := listing
		g.Go(func() error {
			s.MatchListing(gctx, listing)
			return nil
		})
	}
	_ = g.Wait()
	return len(listings), nil
}

// MatchListing 将一条票源与全部候选告警撮合。
func (s *MatchService) MatchListing(ctx context.Context, listing *domain.Listing) {
	ctx, span := s.tracer.Start(ctx, "app.MatchListing")
	defer span.End()
	span.SetAttributes(
		attribute.String("listing.id", listing.ID),
		attribute.String("listing.platform", listing.Platform),
	)

	alerts, err := s.repo.ActiveCandidates(ctx, listing.Platform)
	if err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Str("listing_id", listing.ID).Msg("load candidate alerts failed")
		return
	}

	matched := 0
	for _, alert := range alerts {
		ok, err := s.matcher.Matches(alert, listing)
		if err != nil {
			// 告警定义损坏，跳过这一条，其余继续
			metrics.AlertsSkippedTotal.Inc()
			logger.Ctx(ctx).Warn().Err(err).Str("alert_id", alert.ID).Msg("alert skipped: definition error")
			continue
		}
		if !ok {
			continue
		}
		if s.handleMatch(ctx, alert, listing) {
			matched++
		}
	}
	span.SetAttributes(attribute.Int("match.count", matched))
}

// handleMatch 处理一次命中：去重、计数、发事件、按需触发自动购买。
// 返回 true 表示这是窗口内的首次命中。
func (s *MatchService) handleMatch(ctx context.Context, alert *domain.Alert, listing *domain.Listing) bool {
	log := logger.Ctx(ctx)

	// 同一 (告警, 票源) 在去重窗口内只算一次命中；
	// 去重层故障时放行而非丢弃，宁可重复通知也不漏报。
	if s.dedup != nil {
		first, err := s.dedup.FirstMatch(ctx, alert.ID, listing.ID)
		if err != nil {
			log.Warn().Err(err).Str("alert_id", alert.ID).Msg("match dedup check failed, proceeding")
		} else if !first {
			return false
		}
	}

	now := time.Now()
	if err := s.repo.RecordMatch(ctx, alert.ID, now); err != nil {
		log.Error().Err(err).Str("alert_id", alert.ID).Msg("record match failed")
	}
	metrics.MatchesTotal.WithLabelValues(listing.Platform).Inc()

	ev := domain.NewMatchEvent(alert, listing, now)
	if err := s.producer.PublishMatch(ctx, ev); err != nil {
		log.Error().Err(err).Str("alert_id", alert.ID).Str("listing_id", listing.ID).Msg("publish match event failed")
	}

	if alert.AutoPurchase && s.purchaser != nil {
		req := &port.AutoPurchaseRequest{
			AlertID:   alert.ID,
			UserID:    alert.UserID,
			ListingID: listing.ID,
			Platform:  listing.Platform,
			Quantity:  alert.AutoQuantity,
			Priority:  alert.AutoPriority,
			MaxPrice:  alert.MaxPrice,
		}
		if err := s.purchaser.RequestPurchase(ctx, req); err != nil {
			log.Error().Err(err).Str("alert_id", alert.ID).Msg("auto purchase request failed")
		}
	}

	log.Info().
		Str("alert_id", alert.ID).
		Str("listing_id", listing.ID).
		Str("platform", listing.Platform).
		Bool("auto_purchase", alert.AutoPurchase).
		Msg("alert matched listing")
	return true
}
