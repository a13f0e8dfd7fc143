package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/auditcontext"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/party/domain"
	"github.com/smallbiznis/billbook/internal/party/repository"
	"github.com/smallbiznis/billbook/pkg/db"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Party{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func ownerCtx(id int64) context.Context {
	return auditcontext.WithActorUserID(context.Background(), snowflake.ID(id))
}

func TestCreateParty(t *testing.T) {
	svc := newTestService(t)

	party, err := svc.Create(ownerCtx(1), domain.CreatePartyRequest{
		Name:  "Ravi Traders",
		Kind:  "Vendor",
		Email: "ravi@example.com",
		GSTIN: "29abcde1234f1z5",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PartyKindVendor, party.Kind)
	assert.Equal(t, "29ABCDE1234F1Z5", party.GSTIN)

	found, err := svc.GetByID(ownerCtx(1), party.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Ravi Traders", found.Name)
}

func TestCreatePartyValidation(t *testing.T) {
	svc := newTestService(t)

	cases := []struct {
		name string
		ctx  context.Context
		req  domain.CreatePartyRequest
		err  error
	}{
		{name: "no owner", ctx: context.Background(), req: domain.CreatePartyRequest{Name: "A"}, err: domain.ErrInvalidUser},
		{name: "blank name", ctx: ownerCtx(1), req: domain.CreatePartyRequest{Name: " "}, err: domain.ErrInvalidName},
		{name: "bad kind", ctx: ownerCtx(1), req: domain.CreatePartyRequest{Name: "A", Kind: "friend"}, err: domain.ErrInvalidKind},
		{name: "bad email", ctx: ownerCtx(1), req: domain.CreatePartyRequest{Name: "A", Email: "nope"}, err: domain.ErrInvalidEmail},
		{name: "bad gstin", ctx: ownerCtx(1), req: domain.CreatePartyRequest{Name: "A", GSTIN: "123"}, err: domain.ErrInvalidGSTIN},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(tc.ctx, tc.req)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestGetPartyScopedToOwner(t *testing.T) {
	svc := newTestService(t)

	party, err := svc.Create(ownerCtx(1), domain.CreatePartyRequest{Name: "Acme"})
	require.NoError(t, err)

	_, err = svc.GetByID(ownerCtx(2), party.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListParties(t *testing.T) {
	svc := newTestService(t)
	ctx := ownerCtx(1)

	for _, req := range []domain.CreatePartyRequest{
		{Name: "Acme Traders"},
		{Name: "acme wholesale", Kind: "vendor"},
		{Name: "Bolt Supplies"},
	} {
		_, err := svc.Create(ctx, req)
		require.NoError(t, err)
	}
	_, err := svc.Create(ownerCtx(2), domain.CreatePartyRequest{Name: "Acme Elsewhere"})
	require.NoError(t, err)

	resp, err := svc.List(ctx, domain.ListPartyRequest{Name: "ACME"})
	require.NoError(t, err)
	assert.Len(t, resp.Parties, 2)
	assert.Equal(t, int64(2), resp.Total)

	resp, err = svc.List(ctx, domain.ListPartyRequest{Kind: "vendor"})
	require.NoError(t, err)
	require.Len(t, resp.Parties, 1)
	assert.Equal(t, "acme wholesale", resp.Parties[0].Name)

	resp, err = svc.List(ctx, domain.ListPartyRequest{Pagination: pagination.Pagination{Page: 1, PageSize: 2}})
	require.NoError(t, err)
	assert.Len(t, resp.Parties, 2)
	assert.True(t, resp.HasMore)
}
