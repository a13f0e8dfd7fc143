package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	"github.com/smallbiznis/billbook/internal/clock"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/billbook/internal/observability/metrics"
	"github.com/smallbiznis/billbook/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobMarkOverdue = "mark_overdue"

	leasePrefix = "billbook:scheduler:"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	InvoiceRepo invoicedomain.Repository
	AuditSvc    auditdomain.Service

	Invalidator invoicedomain.StatsInvalidator `optional:"true"`
	Locker      *ratelimit.Locker              `optional:"true"`
	Metrics     *obsmetrics.BillingMetrics     `optional:"true"`
	Config      Config                         `optional:"true"`
}

// Scheduler runs periodic housekeeping over invoices.
type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	genID       *snowflake.Node
	clock       clock.Clock
	invoiceRepo invoicedomain.Repository
	auditSvc    auditdomain.Service
	invalidator invoicedomain.StatsInvalidator
	locker      *ratelimit.Locker
	metrics     *obsmetrics.BillingMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.InvoiceRepo == nil || p.AuditSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		genID:       p.GenID,
		clock:       p.Clock,
		invoiceRepo: p.InvoiceRepo,
		auditSvc:    p.AuditSvc,
		invalidator: p.Invalidator,
		locker:      p.Locker,
		metrics:     p.Metrics,
	}, nil
}

// RunOnce runs every enabled job a single time.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var err error
	if s.isJobEnabled(JobMarkOverdue) {
		err = errors.Join(err, s.runJob(ctx, JobMarkOverdue, s.cfg.BatchSize, s.cfg.JobTimeout, s.MarkOverdueJob))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	release, ok := s.acquireLease(ctx, name, timeout)
	if !ok {
		s.metrics.ObserveJob(name, obsmetrics.JobResultSkipped, 0)
		return nil
	}
	defer release()

	ctx, run := s.startRun(ctx, name, batchSize)
	result := obsmetrics.JobResultSuccess
	err := fn(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		// Unfinished rows are picked up on the next tick.
		result = obsmetrics.JobResultTimeout
	default:
		result = obsmetrics.JobResultFailed
	}
	run.finish(result, err)
	s.metrics.ObserveJob(name, result, time.Since(start))

	if result == obsmetrics.JobResultFailed {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// acquireLease keeps replicas from running the same job concurrently. Without Redis
// every replica runs; the jobs only touch rows still in their starting state.
func (s *Scheduler) acquireLease(ctx context.Context, job string, ttl time.Duration) (func(), bool) {
	if s.locker == nil {
		return func() {}, true
	}
	key := leasePrefix + job
	lease, err := s.locker.Acquire(ctx, key, ttl)
	if err != nil {
		s.log.Warn("scheduler lease unavailable, running unlocked", zap.String("job", job), zap.Error(err))
		return func() {}, true
	}
	if lease == nil {
		s.log.Debug("scheduler lease held elsewhere", zap.String("job", job))
		return nil, false
	}
	return func() {
		if err := lease.Release(context.Background()); err != nil {
			s.log.Warn("scheduler lease release failed", zap.String("job", job), zap.Error(err))
		}
	}, true
}

func (s *Scheduler) invalidate(ctx context.Context, userID snowflake.ID) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(context.WithoutCancel(ctx), userID); err != nil {
		s.metrics.IncReportCacheError()
		log := s.log
		if run := jobRunFromContext(ctx); run != nil {
			log = run.log
		}
		log.Warn("report cache invalidation failed",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
}
