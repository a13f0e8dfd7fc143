package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/billbook/internal/observability/metrics"
	"go.uber.org/zap"
)

const overdueDetails = "Marked overdue"

// MarkOverdueJob moves pending invoices whose due date has passed to overdue.
// The transition is recorded in the audit trail with no acting user.
func (s *Scheduler) MarkOverdueJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	now := s.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	touched := map[snowflake.ID]struct{}{}

	defer func() {
		for userID := range touched {
			s.invalidate(ctx, userID)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := s.invoiceRepo.ListPastDue(ctx, s.db, today, s.cfg.BatchSize)
		if err != nil {
			return err
		}

		failed := 0
		for _, inv := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			changed, err := s.invoiceRepo.MarkOverdue(ctx, s.db, inv.ID, now)
			if err != nil {
				failed++
				run.fail("mark overdue failed", err, zap.String("invoice_id", inv.ID.String()))
				continue
			}
			if !changed {
				continue
			}
			run.AddProcessed(1)
			touched[inv.UserID] = struct{}{}
			s.metrics.IncInvoiceMutation(obsmetrics.InvoiceActionOverdue)
			s.auditSvc.Record(ctx, inv.UserID, inv.ID, auditdomain.ActionUpdated, overdueDetails, map[string]any{
				"status": map[string]any{
					"from": string(invoicedomain.InvoiceStatusPending),
					"to":   string(invoicedomain.InvoiceStatusOverdue),
				},
			})
		}

		// A short batch is the last one. Rows that keep failing would be listed
		// again forever, so a batch with failures also ends the run.
		if len(batch) < s.cfg.BatchSize || failed > 0 {
			return nil
		}
	}
}
