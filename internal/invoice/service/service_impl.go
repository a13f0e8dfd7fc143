package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	"github.com/smallbiznis/billbook/internal/auditcontext"
	"github.com/smallbiznis/billbook/internal/clock"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/smallbiznis/billbook/internal/observability/logger"
	"github.com/smallbiznis/billbook/internal/observability/metrics"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	"github.com/smallbiznis/billbook/pkg/db"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Repo           invoicedomain.Repository
	Parties        partydomain.Repository
	Calculator     taxdomain.Calculator
	AuditSvc       auditdomain.Service
	Invalidator    invoicedomain.StatsInvalidator `optional:"true"`
	Metrics        *metrics.Metrics               `optional:"true"`
	BillingMetrics *metrics.BillingMetrics        `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	repo           invoicedomain.Repository
	parties        partydomain.Repository
	calc           taxdomain.Calculator
	auditSvc       auditdomain.Service
	invalidator    invoicedomain.StatsInvalidator
	metrics        *metrics.Metrics
	billingMetrics *metrics.BillingMetrics
}

func NewService(p Params) invoicedomain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("invoice.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		repo:           p.Repo,
		parties:        p.Parties,
		calc:           p.Calculator,
		auditSvc:       p.AuditSvc,
		invalidator:    p.Invalidator,
		metrics:        p.Metrics,
		billingMetrics: p.BillingMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	userID, ok := auditcontext.ActorUserIDFromContext(ctx)
	if !ok {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidUser
	}

	now := s.now()
	invoice := invoicedomain.Invoice{
		ID:        s.genID.Generate(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.applyRequest(ctx, &invoice, req.InvoiceRequest); err != nil {
		return invoicedomain.Invoice{}, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &invoice); err != nil {
			return err
		}
		return s.repo.InsertItems(ctx, tx, invoice.Items)
	})
	if err != nil {
		return invoicedomain.Invoice{}, s.translateWriteErr(err)
	}

	s.afterMutation(ctx, invoice, metrics.InvoiceActionCreated)
	s.auditSvc.Record(ctx, invoice.UserID, invoice.ID, auditdomain.ActionCreated,
		fmt.Sprintf("Invoice %s created", invoice.Number),
		map[string]any{
			"number":     invoice.Number,
			"type":       invoice.Type,
			"status":     invoice.Status,
			"party_name": invoice.PartyName,
			"total":      invoice.Total,
			"tax":        invoice.Tax,
			"items":      len(invoice.Items),
		},
	)
	return invoice, nil
}

func (s *Service) Update(ctx context.Context, req invoicedomain.UpdateInvoiceRequest) (invoicedomain.Invoice, error) {
	userID, ok := auditcontext.ActorUserIDFromContext(ctx)
	if !ok {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidUser
	}
	id, err := parseID(req.ID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	var before, after invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByID(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return invoicedomain.ErrNotFound
		}
		before = *existing

		after = *existing
		after.UpdatedAt = s.now()
		if err := s.applyRequest(ctx, &after, req.InvoiceRequest); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, tx, &after); err != nil {
			return err
		}
		if err := s.repo.DeleteItems(ctx, tx, id); err != nil {
			return err
		}
		return s.repo.InsertItems(ctx, tx, after.Items)
	})
	if err != nil {
		return invoicedomain.Invoice{}, s.translateWriteErr(err)
	}

	s.afterMutation(ctx, after, metrics.InvoiceActionUpdated)
	s.auditSvc.Record(ctx, after.UserID, after.ID, auditdomain.ActionUpdated,
		fmt.Sprintf("Invoice %s updated", after.Number),
		diffInvoices(before, after),
	)
	return after, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	userID, ok := auditcontext.ActorUserIDFromContext(ctx)
	if !ok {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidUser
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	invoice, err := s.repo.FindByID(ctx, s.db, userID, invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrNotFound
	}

	items, err := s.repo.ListItems(ctx, s.db, invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	for i := range items {
		items[i].Hydrate(invoice.TaxType, invoice.GSTApplicable, s.calc)
	}
	invoice.Items = items
	return *invoice, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	userID, ok := auditcontext.ActorUserIDFromContext(ctx)
	if !ok {
		return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidUser
	}

	filter := invoicedomain.ListFilter{
		Customer: strings.TrimSpace(req.Customer),
		Search:   strings.TrimSpace(req.Search),
		SortBy:   strings.TrimSpace(req.SortBy),
		OrderBy:  strings.TrimSpace(req.OrderBy),
	}
	if value := strings.ToLower(strings.TrimSpace(req.Type)); value != "" && value != "all" {
		filter.Type = invoicedomain.InvoiceType(value)
		if !filter.Type.Valid() {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidType
		}
	}
	if value := strings.ToLower(strings.TrimSpace(req.Status)); value != "" && value != "all" {
		filter.Status = invoicedomain.InvoiceStatus(value)
		if !filter.Status.Valid() {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidStatus
		}
	}

	var err error
	if filter.StartDate, err = parseOptionalDate(req.StartDate); err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}
	if filter.EndDate, err = parseOptionalDate(req.EndDate); err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.StartDate.After(*filter.EndDate) {
		return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidDateRange
	}

	page := req.Pagination.Normalize()
	items, total, err := s.repo.List(ctx, s.db, userID, filter, page)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	summaries := make([]invoicedomain.InvoiceSummary, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		summaries = append(summaries, item.Summary())
	}

	return invoicedomain.ListInvoiceResponse{
		PageInfo: pagination.BuildPageInfo(page, total),
		Invoices: summaries,
		Count:    total,
	}, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	userID, ok := auditcontext.ActorUserIDFromContext(ctx)
	if !ok {
		return invoicedomain.ErrInvalidUser
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return err
	}

	var deleted invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByID(ctx, tx, userID, invoiceID)
		if err != nil {
			return err
		}
		if existing == nil {
			return invoicedomain.ErrNotFound
		}
		deleted = *existing

		if err := s.repo.DeleteItems(ctx, tx, invoiceID); err != nil {
			return err
		}
		affected, err := s.repo.Delete(ctx, tx, userID, invoiceID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return invoicedomain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.afterMutation(ctx, deleted, metrics.InvoiceActionDeleted)
	s.auditSvc.Record(ctx, deleted.UserID, deleted.ID, auditdomain.ActionDeleted,
		fmt.Sprintf("Invoice %s deleted", deleted.Number),
		map[string]any{
			"number": deleted.Number,
			"total":  deleted.Total,
		},
	)
	return nil
}

// applyRequest validates req and writes it, with freshly computed items and
// totals, onto invoice.
func (s *Service) applyRequest(ctx context.Context, invoice *invoicedomain.Invoice, req invoicedomain.InvoiceRequest) error {
	invoiceType := invoicedomain.InvoiceType(strings.ToLower(strings.TrimSpace(req.Type)))
	if !invoiceType.Valid() {
		return invoicedomain.ErrInvalidType
	}

	status := invoicedomain.InvoiceStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if status == "" {
		status = invoicedomain.InvoiceStatusDraft
	}
	if !status.Valid() {
		return invoicedomain.ErrInvalidStatus
	}

	taxType := taxdomain.TaxTypeSGSTCGST
	if raw := strings.TrimSpace(req.TaxType); raw != "" {
		taxType = taxdomain.TaxType(strings.ToLower(raw))
		if !taxType.Valid() {
			return invoicedomain.ErrInvalidTaxType
		}
	}
	gstApplicable := true
	if req.GSTApplicable != nil {
		gstApplicable = *req.GSTApplicable
	}

	date := s.now().Truncate(24 * time.Hour)
	if parsed, err := parseOptionalDate(req.Date); err != nil {
		return err
	} else if parsed != nil {
		date = *parsed
	}
	dueDate, err := parseOptionalDate(req.DueDate)
	if err != nil {
		return err
	}
	if dueDate != nil && dueDate.Before(date) {
		return invoicedomain.ErrInvalidDateRange
	}

	partyID, partyName, err := s.resolveParty(ctx, invoice.UserID, req.PartyID, req.PartyName)
	if err != nil {
		return err
	}

	lineItems := make([]taxdomain.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		line := taxdomain.LineItem{
			Quantity:        item.Quantity,
			Rate:            item.Rate,
			Discount:        item.Discount,
			IsPercentageQty: item.IsPercentageQty,
			PercentageValue: item.PercentageValue,
			SGST:            item.SGST,
			CGST:            item.CGST,
			IGST:            item.IGST,
			TaxType:         taxType,
			GSTApplicable:   gstApplicable,
		}
		if item.Quantity < 0 || item.Rate < 0 || (item.PercentageValue != nil && *item.PercentageValue < 0) {
			return invoicedomain.ErrInvalidItems
		}
		if err := taxdomain.ValidateLineItem(line); err != nil {
			return fmt.Errorf("%w: %v", invoicedomain.ErrInvalidItems, err)
		}
		lineItems = append(lineItems, line)
	}

	totals, computed := Aggregate(s.calc, lineItems, taxType, gstApplicable)
	s.metrics.RecordTaxComputation(ctx, string(taxType), len(lineItems))

	number := strings.TrimSpace(req.Number)
	if number == "" {
		number = invoice.Number
	}
	if number == "" {
		number = "INV-" + ulid.Make().String()
	}

	invoice.Number = number
	invoice.Type = invoiceType
	invoice.Status = status
	invoice.PartyID = partyID
	invoice.PartyName = partyName
	invoice.Date = date
	invoice.DueDate = dueDate
	invoice.TaxType = taxType
	invoice.GSTApplicable = gstApplicable
	invoice.Notes = strings.TrimSpace(req.Notes)
	invoice.ApplyTotals(totals)
	invoice.Items = s.buildItems(invoice, req.Items, lineItems, computed)
	return nil
}

func (s *Service) buildItems(invoice *invoicedomain.Invoice, reqs []invoicedomain.ItemRequest, lines []taxdomain.LineItem, computed []taxdomain.LineItemComputation) []invoicedomain.InvoiceItem {
	items := make([]invoicedomain.InvoiceItem, 0, len(lines))
	for i, line := range lines {
		c := computed[i]
		items = append(items, invoicedomain.InvoiceItem{
			ID:              s.genID.Generate(),
			InvoiceID:       invoice.ID,
			Position:        i + 1,
			Description:     strings.TrimSpace(reqs[i].Description),
			Quantity:        line.Quantity,
			Rate:            line.Rate,
			Discount:        line.Discount,
			IsPercentageQty: line.IsPercentageQty,
			PercentageValue: line.PercentageValue,
			BaseAmount:      c.BaseAmount,
			DiscountAmount:  c.DiscountAmount,
			TaxableAmount:   c.TaxableAmount,
			TaxAmount:       c.TaxAmount,
			TotalAmount:     c.TotalAmount,
			Meta:            datatypes.JSON(taxdomain.NewItemMeta(line, c).Marshal()),
			CreatedAt:       invoice.UpdatedAt,
			SGST:            line.SGST,
			CGST:            line.CGST,
			IGST:            line.IGST,
			SGSTAmount:      c.SGSTAmount,
			CGSTAmount:      c.CGSTAmount,
			IGSTAmount:      c.IGSTAmount,
		})
	}
	return items
}

// resolveParty snapshots the party name so later renames do not rewrite history.
func (s *Service) resolveParty(ctx context.Context, userID snowflake.ID, rawID, rawName string) (*snowflake.ID, string, error) {
	name := strings.TrimSpace(rawName)
	rawID = strings.TrimSpace(rawID)
	if rawID == "" {
		if name == "" {
			return nil, "", invoicedomain.ErrInvalidParty
		}
		return nil, name, nil
	}

	partyID, err := snowflake.ParseString(rawID)
	if err != nil || partyID == 0 {
		return nil, "", invoicedomain.ErrInvalidParty
	}
	party, err := s.parties.FindByID(ctx, s.db, userID, partyID)
	if err != nil {
		return nil, "", err
	}
	if party == nil {
		return nil, "", invoicedomain.ErrPartyNotFound
	}
	return &partyID, party.Name, nil
}

// afterMutation runs once the write has committed. Nothing here may fail the request.
func (s *Service) afterMutation(ctx context.Context, invoice invoicedomain.Invoice, action string) {
	s.billingMetrics.IncInvoiceMutation(action)
	if action != metrics.InvoiceActionDeleted {
		s.metrics.RecordInvoiceTotal(ctx, string(invoice.Type), invoice.Total)
	}
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, invoice.UserID); err != nil {
		s.billingMetrics.IncReportCacheError()
		logger.WithContext(ctx, s.log).Warn("invalidate invoice stats failed",
			zap.String("invoice_id", invoice.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) translateWriteErr(err error) error {
	if db.IsDuplicateKeyErr(err) {
		return invoicedomain.ErrDuplicateNumber
	}
	if db.IsForeignKeyErr(err) {
		return invoicedomain.ErrPartyNotFound
	}
	return err
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invoicedomain.ErrInvalidID
	}
	return id, nil
}

func parseOptionalDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		if full, ferr := time.Parse(time.RFC3339, value); ferr == nil {
			day := full.UTC().Truncate(24 * time.Hour)
			return &day, nil
		}
		return nil, errors.Join(invoicedomain.ErrInvalidDate, err)
	}
	return &parsed, nil
}

// diffInvoices lists the fields an update changed as {"field": {"from", "to"}}.
func diffInvoices(before, after invoicedomain.Invoice) map[string]any {
	changes := map[string]any{}
	add := func(field string, from, to any) {
		if from != to {
			changes[field] = map[string]any{"from": from, "to": to}
		}
	}
	add("number", before.Number, after.Number)
	add("type", string(before.Type), string(after.Type))
	add("status", string(before.Status), string(after.Status))
	add("party_name", before.PartyName, after.PartyName)
	add("date", before.Date.Format(dateLayout), after.Date.Format(dateLayout))
	add("tax_type", string(before.TaxType), string(after.TaxType))
	add("gst_applicable", before.GSTApplicable, after.GSTApplicable)
	add("sub_total", before.SubTotal, after.SubTotal)
	add("discount", before.Discount, after.Discount)
	add("tax", before.Tax, after.Tax)
	add("total", before.Total, after.Total)
	add("notes", before.Notes, after.Notes)
	return changes
}
