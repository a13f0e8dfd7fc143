package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	AuditResultWritten = "written"
	AuditResultFailed  = "failed"
	AuditResultDropped = "dropped"
)

const (
	InvoiceActionCreated = "created"
	InvoiceActionUpdated = "updated"
	InvoiceActionDeleted = "deleted"
	InvoiceActionOverdue = "overdue"
)

const (
	JobResultSuccess = "success"
	JobResultFailed  = "failed"
	JobResultTimeout = "timeout"
	JobResultSkipped = "skipped"
)

const (
	ErrorReasonDeadlineExceeded     = "deadline_exceeded"
	ErrorReasonDBLockTimeout        = "db_lock_timeout"
	ErrorReasonSerializationFailure = "serialization_failure"
	ErrorReasonUniqueViolation      = "unique_violation"
	ErrorReasonForeignKeyViolation  = "foreign_key_violation"
	ErrorReasonPanic                = "panic"
	ErrorReasonUnknown              = "unknown"
)

// BillingMetrics tracks invoice mutations and the background audit trail.
type BillingMetrics struct {
	auditEntries      *prometheus.CounterVec
	auditErrors       *prometheus.CounterVec
	auditWrite        prometheus.Histogram
	auditQueueDepth   prometheus.Gauge
	invoiceMutations  *prometheus.CounterVec
	reportCacheErrors prometheus.Counter
	jobRuns           *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	rateLimited       prometheus.Counter
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

// Billing returns the process-wide billing metrics.
func Billing() *BillingMetrics {
	return BillingWithConfig(Config{})
}

// BillingWithConfig returns the process-wide billing metrics using config labels.
func BillingWithConfig(cfg Config) *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = newBillingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return billingMetrics
}

// ResetBillingMetricsForTest resets the singleton for tests.
func ResetBillingMetricsForTest() {
	billingMetricsOnce = sync.Once{}
	billingMetrics = nil
}

func newBillingMetrics(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	constLabels := constLabelsFor(cfg)

	auditEntries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "billbook_audit_entries_total",
		Help:        "Audit entries by outcome.",
		ConstLabels: constLabels,
	}, []string{"result"})
	auditErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "billbook_audit_errors_total",
		Help:        "Audit write failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	auditWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "billbook_audit_write_duration_seconds",
		Help:        "Time spent resolving the actor and persisting one audit entry.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	})
	auditQueueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "billbook_audit_queue_depth",
		Help:        "Audit entries waiting for a worker.",
		ConstLabels: constLabels,
	})
	invoiceMutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "billbook_invoice_mutations_total",
		Help:        "Committed invoice mutations by action.",
		ConstLabels: constLabels,
	}, []string{"action"})
	reportCacheErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "billbook_report_cache_errors_total",
		Help:        "Report cache reads or writes that failed and fell back to the database.",
		ConstLabels: constLabels,
	})

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "billbook_scheduler_job_runs_total",
		Help:        "Background job runs by outcome.",
		ConstLabels: constLabels,
	}, []string{"job", "result"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "billbook_scheduler_job_duration_seconds",
		Help:        "Background job duration.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
		ConstLabels: constLabels,
	}, []string{"job"})
	rateLimited := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "billbook_http_rate_limited_total",
		Help:        "Write requests rejected by the per-user rate limiter.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(auditEntries, auditErrors, auditWrite, auditQueueDepth, invoiceMutations, reportCacheErrors, jobRuns, jobDuration, rateLimited)

	return &BillingMetrics{
		auditEntries:      auditEntries,
		auditErrors:       auditErrors,
		auditWrite:        auditWrite,
		auditQueueDepth:   auditQueueDepth,
		invoiceMutations:  invoiceMutations,
		reportCacheErrors: reportCacheErrors,
		jobRuns:           jobRuns,
		jobDuration:       jobDuration,
		rateLimited:       rateLimited,
	}
}

func constLabelsFor(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "billbook"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}

// IncAuditEntry counts an audit entry outcome.
func (m *BillingMetrics) IncAuditEntry(result string) {
	if m == nil {
		return
	}
	m.auditEntries.WithLabelValues(result).Inc()
}

// IncAuditError counts a failed audit write with its classified reason.
func (m *BillingMetrics) IncAuditError(err error) {
	if m == nil || err == nil {
		return
	}
	m.auditEntries.WithLabelValues(AuditResultFailed).Inc()
	m.auditErrors.WithLabelValues(ClassifyErrorReason(err)).Inc()
}

// IncAuditPanic counts a recovered panic inside an audit worker.
func (m *BillingMetrics) IncAuditPanic() {
	if m == nil {
		return
	}
	m.auditEntries.WithLabelValues(AuditResultFailed).Inc()
	m.auditErrors.WithLabelValues(ErrorReasonPanic).Inc()
}

func (m *BillingMetrics) ObserveAuditWrite(duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.auditWrite.Observe(duration.Seconds())
}

func (m *BillingMetrics) SetAuditQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.auditQueueDepth.Set(float64(depth))
}

// IncInvoiceMutation counts a committed create, update or delete.
func (m *BillingMetrics) IncInvoiceMutation(action string) {
	if m == nil {
		return
	}
	m.invoiceMutations.WithLabelValues(action).Inc()
}

func (m *BillingMetrics) IncReportCacheError() {
	if m == nil {
		return
	}
	m.reportCacheErrors.Inc()
}

// ObserveJob records one background job run.
func (m *BillingMetrics) ObserveJob(job, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
	if result == JobResultSkipped {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *BillingMetrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// ClassifyErrorReason maps persistence errors to low-cardinality reasons.
func ClassifyErrorReason(err error) string {
	if err == nil {
		return ErrorReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return ErrorReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return ErrorReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return ErrorReasonUniqueViolation
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) || hasPGCode(err, "23503") {
		return ErrorReasonForeignKeyViolation
	}
	return ErrorReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
