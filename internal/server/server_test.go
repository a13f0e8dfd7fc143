package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	auditrepo "github.com/smallbiznis/billbook/internal/audit/repository"
	auditservice "github.com/smallbiznis/billbook/internal/audit/service"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/config"
	invoicerepo "github.com/smallbiznis/billbook/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/billbook/internal/invoice/service"
	"github.com/smallbiznis/billbook/internal/migration"
	"github.com/smallbiznis/billbook/internal/observability"
	partyrepo "github.com/smallbiznis/billbook/internal/party/repository"
	partyservice "github.com/smallbiznis/billbook/internal/party/service"
	"github.com/smallbiznis/billbook/internal/ratelimit"
	"github.com/smallbiznis/billbook/internal/report/cache"
	reportrepo "github.com/smallbiznis/billbook/internal/report/repository"
	reportservice "github.com/smallbiznis/billbook/internal/report/service"
	taxservice "github.com/smallbiznis/billbook/internal/tax/service"
	userdomain "github.com/smallbiznis/billbook/internal/user/domain"
	userrepo "github.com/smallbiznis/billbook/internal/user/repository"
	userservice "github.com/smallbiznis/billbook/internal/user/service"
	"github.com/smallbiznis/billbook/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2025, 4, 16, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts ...func(*ServerParams)) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.NewTest()
	require.NoError(t, err)
	_, err = migration.Migrate(conn)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	clk := clock.NewFakeClock(testNow)
	users := userrepo.Provide()
	parties := partyrepo.Provide()

	auditSvc := auditservice.NewService(auditservice.Params{
		Config: config.Config{Audit: config.AuditConfig{QueueSize: 16, Workers: 1}},
		DB:     conn,
		Log:    log,
		GenID:  node,
		Clock:  clk,
		Repo:   auditrepo.Provide(),
		Users:  users,
	})
	reportCache := cache.New(nil, 0)

	params := ServerParams{
		Gin: NewEngine(observability.Config{}, nil),
		Cfg: config.Config{Environment: "test"},
		UserSvc: userservice.New(userservice.Params{
			DB: conn, Log: log, GenID: node, Clock: clk, Repo: users,
		}),
		PartySvc: partyservice.New(partyservice.Params{
			DB: conn, Log: log, GenID: node, Clock: clk, Repo: parties,
		}),
		InvoiceSvc: invoiceservice.NewService(invoiceservice.Params{
			DB:          conn,
			Log:         log,
			GenID:       node,
			Clock:       clk,
			Repo:        invoicerepo.Provide(),
			Parties:     parties,
			Calculator:  taxservice.NewCalculator(taxservice.Params{}),
			AuditSvc:    auditSvc,
			Invalidator: reportCache,
		}),
		AuditSvc: auditSvc,
		ReportSvc: reportservice.NewService(reportservice.Params{
			DB: conn, Log: log, Clock: clk, Repo: reportrepo.Provide(), Cache: reportCache,
		}),
	}
	for _, opt := range opts {
		opt(&params)
	}
	return NewServer(params)
}

func do(t *testing.T, s *Server, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

type envelope[T any] struct {
	Data T `json:"data"`
}

type invoiceView struct {
	ID        string  `json:"id"`
	Number    string  `json:"number"`
	PartyName string  `json:"party_name"`
	Total     float64 `json:"total"`
	Tax       float64 `json:"tax"`
}

func createOwner(t *testing.T, s *Server) string {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/users", "", map[string]any{"name": "Asha Stores", "email": "asha@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	user := decode[envelope[userdomain.User]](t, rec).Data
	return user.ID.String()
}

func invoiceBody() map[string]any {
	return map[string]any{
		"type":       "sales",
		"party_name": "Walk-in",
		"date":       "2025-04-16",
		"items": []map[string]any{
			{"description": "Rice 10kg", "quantity": 1, "rate": 1000},
		},
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresActor(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/invoices", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/invoices", "abc", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInvoiceLifecycle(t *testing.T) {
	s := newTestServer(t)
	owner := createOwner(t, s)

	rec := do(t, s, http.MethodPost, "/api/invoices", owner, invoiceBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[envelope[invoiceView]](t, rec).Data
	assert.InDelta(t, 1000, created.Total, 1e-9)
	assert.InDelta(t, 180, created.Tax, 1e-9)

	rec = do(t, s, http.MethodGet, "/api/invoices/"+created.ID, owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/invoices/"+created.ID, "999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	update := invoiceBody()
	update["status"] = "paid"
	rec = do(t, s, http.MethodPut, "/api/invoices/"+created.ID, owner, update)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/invoices?status=paid&customer=walk", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Data  []invoiceView `json:"data"`
		Count int64         `json:"count"`
	}](t, rec)
	assert.EqualValues(t, 1, list.Count)

	type auditView struct {
		Action    string `json:"action"`
		ActorName string `json:"actor_name"`
	}
	require.Eventually(t, func() bool {
		rec := do(t, s, http.MethodGet, "/api/invoices/"+created.ID+"/audit-logs", owner, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		return len(decode[envelope[[]auditView]](t, rec).Data) == 2
	}, 2*time.Second, 10*time.Millisecond)

	rec = do(t, s, http.MethodGet, "/api/invoices/"+created.ID+"/audit-logs", owner, nil)
	logs := decode[envelope[[]auditView]](t, rec).Data
	assert.Equal(t, "created", logs[0].Action)
	assert.Equal(t, "updated", logs[1].Action)
	assert.Equal(t, "Asha Stores", logs[0].ActorName)

	rec = do(t, s, http.MethodDelete, "/api/invoices/"+created.ID, owner, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/invoices/"+created.ID, owner, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuditHistoryOutlivesDeletedInvoice(t *testing.T) {
	s := newTestServer(t)
	owner := createOwner(t, s)

	rec := do(t, s, http.MethodPost, "/api/invoices", owner, invoiceBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[envelope[invoiceView]](t, rec).Data.ID

	rec = do(t, s, http.MethodDelete, "/api/invoices/"+id, owner, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	type auditView struct {
		Action string `json:"action"`
	}
	var history []auditView
	require.Eventually(t, func() bool {
		rec := do(t, s, http.MethodGet, "/api/invoices/"+id+"/audit-logs", owner, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		history = decode[envelope[[]auditView]](t, rec).Data
		return len(history) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "created", history[0].Action)
	assert.Equal(t, "deleted", history[1].Action)

	rec = do(t, s, http.MethodGet, "/api/invoices/"+id+"/audit-logs", "999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "another user cannot read the history")
}

func TestInvoiceValidationEnvelope(t *testing.T) {
	s := newTestServer(t)
	owner := createOwner(t, s)

	body := invoiceBody()
	body["type"] = "refund"
	rec := do(t, s, http.MethodPost, "/api/invoices", owner, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[errorResponse](t, rec)
	assert.Equal(t, "validation_error", resp.Error.Type)
	require.Len(t, resp.Error.Errors, 1)
	assert.Equal(t, "invalid_type", resp.Error.Errors[0].Code)
	assert.Equal(t, "type", resp.Error.Errors[0].Field)

	for _, id := range []string{"not-an-id", "-5", "0"} {
		rec = do(t, s, http.MethodGet, "/api/invoices/"+id, owner, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, id)
		resp = decode[errorResponse](t, rec)
		require.Len(t, resp.Error.Errors, 1, id)
		assert.Equal(t, "id", resp.Error.Errors[0].Field)
		assert.Equal(t, "invalid_id", resp.Error.Errors[0].Code)
	}
}

func TestDuplicateInvoiceNumberConflicts(t *testing.T) {
	s := newTestServer(t)
	owner := createOwner(t, s)

	body := invoiceBody()
	body["number"] = "INV-1"
	rec := do(t, s, http.MethodPost, "/api/invoices", owner, body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/invoices", owner, body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInvoiceStats(t *testing.T) {
	s := newTestServer(t)
	owner := createOwner(t, s)

	rec := do(t, s, http.MethodPost, "/api/invoices", owner, invoiceBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/invoices/stats?period=weekly&type=all", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Counts struct {
			Total int64 `json:"total"`
		} `json:"counts"`
		Chart struct {
			Categories []string `json:"categories"`
			Series     []struct {
				Name string    `json:"name"`
				Data []float64 `json:"data"`
			} `json:"series"`
		} `json:"chart"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp.Counts.Total)
	require.Len(t, resp.Chart.Categories, 7)
	require.Len(t, resp.Chart.Series, 2)
	assert.Equal(t, "Sales", resp.Chart.Series[0].Name)
	assert.Equal(t, float64(1), resp.Chart.Series[0].Data[6])

	rec = do(t, s, http.MethodGet, "/api/invoices/stats?type=refund", owner, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParties(t *testing.T) {
	s := newTestServer(t)
	owner := createOwner(t, s)

	rec := do(t, s, http.MethodPost, "/api/parties", owner, map[string]any{"name": "Ravi Traders", "kind": "vendor"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	party := decode[envelope[struct {
		ID string `json:"id"`
	}]](t, rec).Data

	body := invoiceBody()
	body["type"] = "purchase"
	body["party_id"] = party.ID
	rec = do(t, s, http.MethodPost, "/api/invoices", owner, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Ravi Traders", decode[envelope[invoiceView]](t, rec).Data.PartyName)

	rec = do(t, s, http.MethodGet, "/api/parties?name=ravi", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/parties/"+party.ID, "424242", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWritesAreRateLimitedPerOwner(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := ratelimit.NewWriteLimiter(ratelimit.Params{
		Config: config.Config{RateLimit: config.RateLimitConfig{WriteRate: 0.01, WriteBurst: 1}},
		Bucket: ratelimit.NewTokenBucket(client),
	})
	s := newTestServer(t, func(p *ServerParams) { p.Limiter = limiter })
	owner := createOwner(t, s)

	rec := do(t, s, http.MethodPost, "/api/invoices", owner, invoiceBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := invoiceBody()
	body["number"] = "INV-LIMITED"
	rec = do(t, s, http.MethodPost, "/api/invoices", owner, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decode[errorResponse](t, rec).Error.Type)

	rec = do(t, s, http.MethodGet, "/api/invoices", owner, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	mr.Close()
	body["number"] = "INV-OPEN"
	rec = do(t, s, http.MethodPost, "/api/invoices", owner, body)
	assert.Equal(t, http.StatusCreated, rec.Code, "limiter fails open")
}
