package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/billbook/internal/auditcontext"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/observability/logger"
	"github.com/smallbiznis/billbook/internal/observability/metrics"
	"github.com/smallbiznis/billbook/internal/report/bucket"
	"github.com/smallbiznis/billbook/internal/report/cache"
	reportdomain "github.com/smallbiznis/billbook/internal/report/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	Clock          clock.Clock
	Repo           reportdomain.Repository
	Cache          *cache.Cache            `optional:"true"`
	Metrics        *metrics.Metrics        `optional:"true"`
	BillingMetrics *metrics.BillingMetrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	clock          clock.Clock
	repo           reportdomain.Repository
	cache          *cache.Cache
	metrics        *metrics.Metrics
	billingMetrics *metrics.BillingMetrics
}

func NewService(p Params) reportdomain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("report.service"),
		clock:          p.Clock,
		repo:           p.Repo,
		cache:          p.Cache,
		metrics:        p.Metrics,
		billingMetrics: p.BillingMetrics,
	}
}

func (s *Service) Stats(ctx context.Context, req reportdomain.StatsRequest) (reportdomain.StatsResponse, error) {
	userID, ok := auditcontext.ActorUserIDFromContext(ctx)
	if !ok {
		return reportdomain.StatsResponse{}, reportdomain.ErrInvalidUser
	}

	invoiceType := strings.ToLower(strings.TrimSpace(req.Type))
	switch invoiceType {
	case "", "all":
		invoiceType = ""
	case "sales", "purchase":
	default:
		return reportdomain.StatsResponse{}, reportdomain.ErrInvalidType
	}
	period := bucket.ParsePeriod(req.Period)
	now := s.clock.Now().UTC()

	load := func(ctx context.Context) (any, error) {
		counts, err := s.repo.Counts(ctx, s.db, userID, invoiceType)
		if err != nil {
			return nil, err
		}
		rows, err := s.repo.GroupedCounts(ctx, s.db, userID, period, invoiceType, now)
		if err != nil {
			return nil, err
		}
		return reportdomain.StatsResponse{
			Counts: counts,
			Chart:  bucket.BuildChart(period, now, rows),
		}, nil
	}

	typeToken := invoiceType
	if typeToken == "" {
		typeToken = "all"
	}

	var (
		resp    reportdomain.StatsResponse
		loadErr error
	)
	loadOnce := func(ctx context.Context) (any, error) {
		value, err := load(ctx)
		loadErr = err
		return value, err
	}

	key, err := s.cache.Key(ctx, userID, "stats", string(period), typeToken, now.Format(bucket.DayKeyLayout))
	if err == nil {
		var hit bool
		hit, err = s.cache.FetchJSON(ctx, key, &resp, loadOnce)
		if loadErr != nil {
			return reportdomain.StatsResponse{}, loadErr
		}
		if err == nil {
			s.metrics.RecordReportRequest(ctx, string(period), hit)
			return resp, nil
		}
	}

	// Redis trouble must not take the dashboard down; fall back to the database.
	s.billingMetrics.IncReportCacheError()
	logger.WithContext(ctx, s.log).Warn("report cache unavailable", zap.Error(err))

	value, err := load(ctx)
	if err != nil {
		return reportdomain.StatsResponse{}, err
	}
	s.metrics.RecordReportRequest(ctx, string(period), false)
	return value.(reportdomain.StatsResponse), nil
}
