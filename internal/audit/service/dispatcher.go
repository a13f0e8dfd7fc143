package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/smallbiznis/billbook/internal/observability/metrics"
	"go.uber.org/zap"
)

type job func() error

// dispatcher runs audit jobs on a fixed set of workers fed by a bounded queue.
// Submitting never blocks: when the queue is full or the dispatcher is
// stopping the job is dropped.
type dispatcher struct {
	jobs    chan job
	quit    chan struct{}
	mu      sync.RWMutex
	closed  bool
	workers int
	log     *zap.Logger
	metrics *metrics.BillingMetrics

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func newDispatcher(queueSize, workers int, log *zap.Logger, m *metrics.BillingMetrics) *dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	return &dispatcher{
		jobs:    make(chan job, queueSize),
		quit:    make(chan struct{}),
		workers: workers,
		log:     log,
		metrics: m,
	}
}

func (d *dispatcher) start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.loop()
		}
	})
}

// submit reports whether the job was queued. A queued job is always run:
// stop cannot close quit while a submit holds the read lock.
func (d *dispatcher) submit(j job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.jobs <- j:
		d.metrics.SetAuditQueueDepth(len(d.jobs))
		return true
	default:
		return false
	}
}

// stop lets workers drain what is queued and waits for them, bounded by ctx.
func (d *dispatcher) stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.quit)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit dispatcher drain: %w", ctx.Err())
	}
}

func (d *dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case j := <-d.jobs:
			d.run(j)
		case <-d.quit:
			for {
				select {
				case j := <-d.jobs:
					d.run(j)
				default:
					return
				}
			}
		}
	}
}

func (d *dispatcher) run(j job) {
	d.metrics.SetAuditQueueDepth(len(d.jobs))
	defer func() {
		if r := recover(); r != nil {
			d.metrics.IncAuditPanic()
			d.log.Error("audit job panicked", zap.Any("panic", r))
		}
	}()
	if err := j(); err != nil {
		d.metrics.IncAuditError(err)
		d.log.Warn("audit job failed", zap.Error(err))
	}
}
