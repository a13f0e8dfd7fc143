package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	"github.com/smallbiznis/billbook/internal/auditcontext"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/smallbiznis/billbook/internal/invoice/repository"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	partyrepo "github.com/smallbiznis/billbook/internal/party/repository"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	taxservice "github.com/smallbiznis/billbook/internal/tax/service"
	"github.com/smallbiznis/billbook/pkg/db"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type auditMock struct {
	mock.Mock
}

func (m *auditMock) Record(ctx context.Context, ownerID, invoiceID snowflake.ID, action, details string, changes any) {
	m.Called(ctx, ownerID, invoiceID, action, details, changes)
}

func (m *auditMock) List(ctx context.Context, ownerID snowflake.ID, invoiceID string) ([]auditdomain.AuditLog, error) {
	args := m.Called(ctx, ownerID, invoiceID)
	logs, _ := args.Get(0).([]auditdomain.AuditLog)
	return logs, args.Error(1)
}

type invalidatorStub struct {
	calls []snowflake.ID
	err   error
}

func (s *invalidatorStub) Invalidate(_ context.Context, userID snowflake.ID) error {
	s.calls = append(s.calls, userID)
	return s.err
}

type fixture struct {
	svc         domain.Service
	db          *gorm.DB
	audit       *auditMock
	invalidator *invalidatorStub
	node        *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&partydomain.Party{}, &domain.Invoice{}, &domain.InvoiceItem{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	audit := &auditMock{}
	audit.On("Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()
	invalidator := &invalidatorStub{}

	svc := NewService(Params{
		DB:          conn,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clock.NewFakeClock(time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)),
		Repo:        repository.Provide(),
		Parties:     partyrepo.Provide(),
		Calculator:  taxservice.NewCalculator(taxservice.Params{}),
		AuditSvc:    audit,
		Invalidator: invalidator,
	})
	return &fixture{svc: svc, db: conn, audit: audit, invalidator: invalidator, node: node}
}

func ownerCtx(id int64) context.Context {
	return auditcontext.WithActorUserID(context.Background(), snowflake.ID(id))
}

func f64(v float64) *float64 { return &v }

func sampleRequest() domain.InvoiceRequest {
	return domain.InvoiceRequest{
		Type:      "sales",
		PartyName: "Walk-in",
		Date:      "2025-03-14",
		Items: []domain.ItemRequest{
			{Description: "Widget", Quantity: 2, Rate: 100, Discount: f64(10)},
			{Description: "Gadget", Quantity: 1, Rate: 50},
		},
	}
}

func TestCreateComputesTotals(t *testing.T) {
	f := newFixture(t)

	inv, err := f.svc.Create(ownerCtx(1), domain.CreateInvoiceRequest{InvoiceRequest: sampleRequest()})
	require.NoError(t, err)

	assert.Equal(t, domain.InvoiceStatusDraft, inv.Status)
	assert.Equal(t, taxdomain.TaxTypeSGSTCGST, inv.TaxType)
	assert.True(t, inv.GSTApplicable)
	assert.Contains(t, inv.Number, "INV-")
	assert.InDelta(t, 250, inv.SubTotal, 1e-9)
	assert.InDelta(t, 20, inv.Discount, 1e-9)
	assert.InDelta(t, 230, inv.Total, 1e-9)
	assert.InDelta(t, 41.4, inv.Tax, 1e-9)
	assert.InDelta(t, 20.7, inv.SGST, 1e-9)
	assert.InDelta(t, 20.7, inv.CGST, 1e-9)
	require.Len(t, inv.Items, 2)
	assert.Equal(t, 1, inv.Items[0].Position)

	f.audit.AssertCalled(t, "Record", mock.Anything, inv.UserID, inv.ID, auditdomain.ActionCreated, mock.Anything, mock.Anything)
	assert.Equal(t, []snowflake.ID{1}, f.invalidator.calls)

	loaded, err := f.svc.GetByID(ownerCtx(1), inv.ID.String())
	require.NoError(t, err)
	require.Len(t, loaded.Items, 2)
	assert.Equal(t, "Widget", loaded.Items[0].Description)
	require.NotNil(t, loaded.Items[0].SGST)
	assert.InDelta(t, taxdomain.DefaultSGSTRate, *loaded.Items[0].SGST, 1e-9)
	assert.InDelta(t, 16.2, loaded.Items[0].SGSTAmount, 1e-9)
}

func TestGetByIDToleratesDamagedItemMeta(t *testing.T) {
	f := newFixture(t)

	inv, err := f.svc.Create(ownerCtx(1), domain.CreateInvoiceRequest{InvoiceRequest: sampleRequest()})
	require.NoError(t, err)
	require.NoError(t, f.db.Exec("UPDATE invoice_items SET meta = NULL WHERE position = 1").Error)
	require.NoError(t, f.db.Exec(`UPDATE invoice_items SET meta = '{"sgst": 5' WHERE position = 2`).Error)

	loaded, err := f.svc.GetByID(ownerCtx(1), inv.ID.String())
	require.NoError(t, err)
	require.Len(t, loaded.Items, 2)
	for _, item := range loaded.Items {
		require.NotNil(t, item.SGST)
		require.NotNil(t, item.IGST)
		assert.InDelta(t, taxdomain.DefaultSGSTRate, *item.SGST, 1e-9)
		assert.InDelta(t, taxdomain.DefaultIGSTRate, *item.IGST, 1e-9)
	}
	assert.InDelta(t, 16.2, loaded.Items[0].SGSTAmount, 1e-9)
	assert.InDelta(t, 4.5, loaded.Items[1].CGSTAmount, 1e-9)
}

func TestCreateIGSTWithoutGST(t *testing.T) {
	f := newFixture(t)

	req := sampleRequest()
	req.TaxType = "igst"
	req.GSTApplicable = new(bool)

	inv, err := f.svc.Create(ownerCtx(1), domain.CreateInvoiceRequest{InvoiceRequest: req})
	require.NoError(t, err)
	assert.InDelta(t, 0, inv.Tax, 1e-9)
	assert.InDelta(t, 230, inv.Total, 1e-9)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)

	mutate := func(fn func(*domain.InvoiceRequest)) domain.InvoiceRequest {
		req := sampleRequest()
		fn(&req)
		return req
	}

	cases := []struct {
		name string
		ctx  context.Context
		req  domain.InvoiceRequest
		err  error
	}{
		{name: "no owner", ctx: context.Background(), req: sampleRequest(), err: domain.ErrInvalidUser},
		{name: "bad type", ctx: ownerCtx(1), req: mutate(func(r *domain.InvoiceRequest) { r.Type = "refund" }), err: domain.ErrInvalidType},
		{name: "bad status", ctx: ownerCtx(1), req: mutate(func(r *domain.InvoiceRequest) { r.Status = "void" }), err: domain.ErrInvalidStatus},
		{name: "bad tax type", ctx: ownerCtx(1), req: mutate(func(r *domain.InvoiceRequest) { r.TaxType = "vat" }), err: domain.ErrInvalidTaxType},
		{name: "bad date", ctx: ownerCtx(1), req: mutate(func(r *domain.InvoiceRequest) { r.Date = "14/03/2025" }), err: domain.ErrInvalidDate},
		{name: "due before date", ctx: ownerCtx(1), req: mutate(func(r *domain.InvoiceRequest) { r.DueDate = "2025-03-01" }), err: domain.ErrInvalidDateRange},
		{name: "no party", ctx: ownerCtx(1), req: mutate(func(r *domain.InvoiceRequest) { r.PartyName = "" }), err: domain.ErrInvalidParty},
		{name: "unknown party", ctx: ownerCtx(1), req: mutate(func(r *domain.InvoiceRequest) { r.PartyID = "12345" }), err: domain.ErrPartyNotFound},
		{name: "negative quantity", ctx: ownerCtx(1), req: mutate(func(r *domain.InvoiceRequest) { r.Items[0].Quantity = -1 }), err: domain.ErrInvalidItems},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(tc.ctx, domain.CreateInvoiceRequest{InvoiceRequest: tc.req})
			assert.ErrorIs(t, err, tc.err)
		})
	}
	f.audit.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateSnapshotsPartyName(t *testing.T) {
	f := newFixture(t)

	party := &partydomain.Party{
		ID:     f.node.Generate(),
		UserID: 1,
		Name:   "Ravi Traders",
		Kind:   partydomain.PartyKindCustomer,
	}
	require.NoError(t, partyrepo.Provide().Insert(context.Background(), f.db, party))

	req := sampleRequest()
	req.PartyID = party.ID.String()
	req.PartyName = "ignored"

	inv, err := f.svc.Create(ownerCtx(1), domain.CreateInvoiceRequest{InvoiceRequest: req})
	require.NoError(t, err)
	assert.Equal(t, "Ravi Traders", inv.PartyName)
	require.NotNil(t, inv.PartyID)
	assert.Equal(t, party.ID, *inv.PartyID)

	// Another owner cannot reference the party.
	_, err = f.svc.Create(ownerCtx(2), domain.CreateInvoiceRequest{InvoiceRequest: req})
	assert.ErrorIs(t, err, domain.ErrPartyNotFound)
}

func TestCreateDuplicateNumber(t *testing.T) {
	f := newFixture(t)

	req := sampleRequest()
	req.Number = "INV-001"
	_, err := f.svc.Create(ownerCtx(1), domain.CreateInvoiceRequest{InvoiceRequest: req})
	require.NoError(t, err)

	_, err = f.svc.Create(ownerCtx(1), domain.CreateInvoiceRequest{InvoiceRequest: req})
	assert.ErrorIs(t, err, domain.ErrDuplicateNumber)

	_, err = f.svc.Create(ownerCtx(2), domain.CreateInvoiceRequest{InvoiceRequest: req})
	assert.NoError(t, err)
}

func TestUpdateReplacesItemsAndAuditsDiff(t *testing.T) {
	f := newFixture(t)

	inv, err := f.svc.Create(ownerCtx(1), domain.CreateInvoiceRequest{InvoiceRequest: sampleRequest()})
	require.NoError(t, err)

	req := sampleRequest()
	req.Status = "paid"
	req.Items = []domain.ItemRequest{{Description: "Service", Quantity: 1, Rate: 1000}}

	updated, err := f.svc.Update(ownerCtx(1), domain.UpdateInvoiceRequest{ID: inv.ID.String(), InvoiceRequest: req})
	require.NoError(t, err)
	assert.Equal(t, inv.Number, updated.Number)
	assert.Equal(t, domain.InvoiceStatusPaid, updated.Status)
	assert.InDelta(t, 1000, updated.Total, 1e-9)

	loaded, err := f.svc.GetByID(ownerCtx(1), inv.ID.String())
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, "Service", loaded.Items[0].Description)

	f.audit.AssertCalled(t, "Record", mock.Anything, inv.UserID, inv.ID, auditdomain.ActionUpdated, mock.Anything,
		mock.MatchedBy(func(changes map[string]any) bool {
			_, status := changes["status"]
			_, total := changes["total"]
			_, number := changes["number"]
			return status && total && !number
		}),
	)
}

func TestUpdateOtherOwnerNotFound(t *testing.T) {
	f := newFixture(t)

	inv, err := f.svc.Create(ownerCtx(1), domain.CreateInvoiceRequest{InvoiceRequest: sampleRequest()})
	require.NoError(t, err)

	_, err = f.svc.Update(ownerCtx(2), domain.UpdateInvoiceRequest{ID: inv.ID.String(), InvoiceRequest: sampleRequest()})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.GetByID(ownerCtx(2), inv.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)

	inv, err := f.svc.Create(ownerCtx(1), domain.CreateInvoiceRequest{InvoiceRequest: sampleRequest()})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ownerCtx(1), inv.ID.String()))
	f.audit.AssertCalled(t, "Record", mock.Anything, inv.UserID, inv.ID, auditdomain.ActionDeleted, mock.Anything, mock.Anything)

	_, err = f.svc.GetByID(ownerCtx(1), inv.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ownerCtx(1), inv.ID.String()), domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ownerCtx(1), "not-a-number"), domain.ErrInvalidID)

	var items int64
	require.NoError(t, f.db.Model(&domain.InvoiceItem{}).Where("invoice_id = ?", inv.ID).Count(&items).Error)
	assert.Zero(t, items)
}

func TestInvalidatorFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.invalidator.err = errors.New("redis down")

	_, err := f.svc.Create(ownerCtx(1), domain.CreateInvoiceRequest{InvoiceRequest: sampleRequest()})
	assert.NoError(t, err)
}

func TestList(t *testing.T) {
	f := newFixture(t)

	create := func(owner int64, typ, status, party, date string) {
		req := sampleRequest()
		req.Type, req.Status, req.PartyName, req.Date = typ, status, party, date
		_, err := f.svc.Create(ownerCtx(owner), domain.CreateInvoiceRequest{InvoiceRequest: req})
		require.NoError(t, err)
	}
	create(1, "sales", "paid", "Acme Corp", "2025-01-10")
	create(1, "sales", "pending", "Beta LLC", "2025-02-10")
	create(1, "purchase", "paid", "Acme Supplies", "2025-03-10")
	create(2, "sales", "paid", "Acme Corp", "2025-01-10")

	resp, err := f.svc.List(ownerCtx(1), domain.ListInvoiceRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, resp.Count)
	require.Len(t, resp.Invoices, 3)
	assert.Equal(t, "Acme Supplies", resp.Invoices[0].PartyName)

	resp, err = f.svc.List(ownerCtx(1), domain.ListInvoiceRequest{Type: "sales", Status: "all"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, resp.Count)

	resp, err = f.svc.List(ownerCtx(1), domain.ListInvoiceRequest{Customer: "acme"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, resp.Count)

	resp, err = f.svc.List(ownerCtx(1), domain.ListInvoiceRequest{StartDate: "2025-02-01", EndDate: "2025-03-10"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, resp.Count)

	resp, err = f.svc.List(ownerCtx(1), domain.ListInvoiceRequest{Pagination: pagination.Pagination{Page: 2, PageSize: 2}})
	require.NoError(t, err)
	assert.EqualValues(t, 3, resp.Count)
	assert.Len(t, resp.Invoices, 1)
	assert.False(t, resp.HasMore)

	_, err = f.svc.List(ownerCtx(1), domain.ListInvoiceRequest{StartDate: "2025-03-01", EndDate: "2025-02-01"})
	assert.ErrorIs(t, err, domain.ErrInvalidDateRange)

	_, err = f.svc.List(ownerCtx(1), domain.ListInvoiceRequest{Status: "void"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}
