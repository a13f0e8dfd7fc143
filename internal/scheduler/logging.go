package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/billbook/internal/observability/context"
	obslogger "github.com/smallbiznis/billbook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/billbook/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun tracks one execution of a job. Jobs reach it through the context to
// count the invoices they touched and the rows they failed on.
type jobRun struct {
	job       string
	runID     string
	startedAt time.Time
	log       *zap.Logger

	processed int
	errors    int
}

type jobRunKey struct{}

func (s *Scheduler) startRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun) {
	ctx = obscontext.WithActorID(ctx, "scheduler")
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		startedAt: time.Now(),
	}
	run.log = obslogger.WithContext(ctx, s.log).With(
		zap.String("job", job),
		zap.String("run_id", run.runID),
	)
	run.log.Info("scheduler.job.start", zap.Int("batch_size", batchSize))
	return context.WithValue(ctx, jobRunKey{}, run), run
}

func jobRunFromContext(ctx context.Context) *jobRun {
	run, _ := ctx.Value(jobRunKey{}).(*jobRun)
	return run
}

func (r *jobRun) AddProcessed(n int) {
	if r != nil && n > 0 {
		r.processed += n
	}
}

// fail logs a per-row failure. The job keeps going.
func (r *jobRun) fail(msg string, err error, fields ...zap.Field) {
	if r == nil {
		return
	}
	r.errors++
	r.log.Error(msg, append(fields, zap.Error(err))...)
}

func (r *jobRun) finish(result string, err error) {
	fields := []zap.Field{
		zap.String("result", result),
		zap.Int64("duration_ms", time.Since(r.startedAt).Milliseconds()),
		zap.Int("processed_count", r.processed),
		zap.Int("error_count", r.errors),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if result == obsmetrics.JobResultSuccess && r.errors == 0 {
		r.log.Info("scheduler.job.finish", fields...)
		return
	}
	r.log.Warn("scheduler.job.finish", fields...)
}
