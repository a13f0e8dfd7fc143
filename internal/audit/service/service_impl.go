package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	"github.com/smallbiznis/billbook/internal/audit/masking"
	"github.com/smallbiznis/billbook/internal/auditcontext"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/config"
	"github.com/smallbiznis/billbook/internal/observability/logger"
	"github.com/smallbiznis/billbook/internal/observability/metrics"
	userdomain "github.com/smallbiznis/billbook/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle `optional:"true"`
	Config    config.Config
	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      auditdomain.Repository
	Users     userdomain.Repository
	Metrics   *metrics.BillingMetrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       auditdomain.Repository
	users      userdomain.Repository
	metrics    *metrics.BillingMetrics
	dispatcher *dispatcher
}

// NewService starts the audit workers with the app and drains them on shutdown.
// Without a lifecycle (tests) the workers start immediately.
func NewService(p Params) auditdomain.Service {
	log := p.Log.Named("audit.service")
	s := &Service{
		db:         p.DB,
		log:        log,
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		users:      p.Users,
		metrics:    p.Metrics,
		dispatcher: newDispatcher(p.Config.Audit.QueueSize, p.Config.Audit.Workers, log, p.Metrics),
	}

	if p.Lifecycle == nil {
		s.dispatcher.start()
		return s
	}
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.dispatcher.start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("draining audit queue")
			return s.dispatcher.stop(ctx)
		},
	})
	return s
}

// entryInput is everything captured from the request before it returns.
type entryInput struct {
	id          snowflake.ID
	ownerID     snowflake.ID
	invoiceID   snowflake.ID
	action      string
	details     string
	changes     any
	actorUserID *snowflake.ID
	ipAddress   *string
	userAgent   *string
	requestID   string
	createdAt   time.Time
}

func (s *Service) Record(ctx context.Context, ownerID, invoiceID snowflake.ID, action, details string, changes any) {
	if ctx == nil {
		ctx = context.Background()
	}
	in := entryInput{
		id:        s.genID.Generate(),
		ownerID:   ownerID,
		invoiceID: invoiceID,
		action:    strings.TrimSpace(action),
		details:   details,
		changes:   changes,
		requestID: auditcontext.RequestIDFromContext(ctx),
		createdAt: s.now(),
	}
	if actorID, ok := auditcontext.ActorUserIDFromContext(ctx); ok {
		in.actorUserID = &actorID
	}
	if ip := auditcontext.IPAddressFromContext(ctx); ip != "" {
		in.ipAddress = &ip
	}
	if ua := auditcontext.UserAgentFromContext(ctx); ua != "" {
		in.userAgent = &ua
	}

	detached := context.WithoutCancel(ctx)
	queued := s.dispatcher.submit(func() error {
		return s.write(detached, in)
	})
	if !queued {
		s.metrics.IncAuditEntry(metrics.AuditResultDropped)
		logger.WithContext(ctx, s.log).Warn("audit entry dropped, queue full or stopped",
			zap.String("invoice_id", invoiceID.String()),
			zap.String("action", in.action),
		)
	}
}

func (s *Service) write(ctx context.Context, in entryInput) error {
	start := time.Now()
	defer func() { s.metrics.ObserveAuditWrite(time.Since(start)) }()

	changes, err := encodeChanges(in.changes)
	if err != nil {
		return fmt.Errorf("encode audit changes for invoice %s: %w", in.invoiceID, err)
	}

	entry := auditdomain.AuditLog{
		ID:          in.id,
		UserID:      in.ownerID,
		InvoiceID:   in.invoiceID,
		Action:      in.action,
		ActorUserID: in.actorUserID,
		ActorName:   s.resolveActorName(ctx, in.actorUserID),
		Changes:     changes,
		Details:     in.details,
		IPAddress:   in.ipAddress,
		UserAgent:   in.userAgent,
		CreatedAt:   in.createdAt,
	}
	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		return fmt.Errorf("insert audit entry for invoice %s: %w", in.invoiceID, err)
	}

	s.metrics.IncAuditEntry(metrics.AuditResultWritten)
	s.log.Debug("audit entry written",
		zap.String("invoice_id", in.invoiceID.String()),
		zap.String("action", in.action),
		zap.String("request_id", in.requestID),
	)
	return nil
}

// resolveActorName never fails; lookup problems degrade to a fixed label.
func (s *Service) resolveActorName(ctx context.Context, actorUserID *snowflake.ID) string {
	if actorUserID == nil {
		return auditdomain.ActorNameSystem
	}
	user, err := s.users.FindByID(ctx, s.db, *actorUserID)
	if err != nil {
		s.log.Warn("audit actor lookup failed",
			zap.String("user_id", actorUserID.String()),
			zap.Error(err),
		)
		return auditdomain.ActorNameLookupFailed
	}
	if user == nil {
		return auditdomain.ActorNameUnknownUser
	}
	return user.Name
}

func (s *Service) List(ctx context.Context, ownerID snowflake.ID, invoiceID string) ([]auditdomain.AuditLog, error) {
	if ownerID == 0 {
		return nil, auditdomain.ErrInvalidUser
	}
	id, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil || id == 0 {
		return nil, auditdomain.ErrInvalidInvoiceID
	}

	items, err := s.repo.ListByInvoice(ctx, s.db, ownerID, id)
	if err != nil {
		return nil, err
	}

	logs := make([]auditdomain.AuditLog, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}
	return logs, nil
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}

// encodeChanges serializes the diff and masks contact details inside it.
func encodeChanges(changes any) (datatypes.JSON, error) {
	if changes == nil {
		return nil, nil
	}
	raw, err := json.Marshal(changes)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	masked, err := json.Marshal(masking.MaskValue(decoded))
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(masked), nil
}
