package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayush/receipt-tracker/backend/internal/analysis"
	"github.com/ayush/receipt-tracker/backend/internal/auth"
	"github.com/ayush/receipt-tracker/backend/internal/models"
	"github.com/ayush/receipt-tracker/backend/internal/receipt"
	"github.com/ayush/receipt-tracker/backend/internal/warranty"
)

// users knows a single session token, "tok", owned by user 1.
type users struct{}

func (users) CreateUser(context.Context, string, string, string) (*models.User, error) {
	return nil, nil
}
func (users) GetUserByEmail(context.Context, string) (*models.User, error) { return nil, nil }
func (users) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	return &models.User{ID: id, Name: "Alice", Email: "alice@example.com"}, nil
}
func (users) CreateSession(context.Context, int64, string, time.Time) (*models.Session, error) {
	return nil, nil
}
func (users) GetSessionByToken(_ context.Context, token string) (*models.Session, error) {
	if token != "tok" {
		return nil, nil
	}
	return &models.Session{UserID: 1, Token: token}, nil
}
func (users) DeleteSession(context.Context, string) error          { return nil }
func (users) DeleteExpiredSessions(context.Context) (int64, error) { return 0, nil }

// receipts returns a single receipt for user 1.
type receipts struct {
	receipt.ReceiptStore
}

func (receipts) ListReceipts(_ context.Context, userID int64, _ models.ReceiptFilter) ([]models.Receipt, error) {
	if userID != 1 {
		return nil, nil
	}
	return []models.Receipt{{ID: 10, UserID: 1}}, nil
}

func (receipts) CountReceipts(_ context.Context, userID int64, _ models.ReceiptFilter) (int, error) {
	if userID != 1 {
		return 0, nil
	}
	return 1, nil
}

// counter counts hits per rate limit key.
type counter struct{ hits map[string]int64 }

func (c *counter) IncrWithExpire(_ context.Context, key string, _ time.Duration) (int64, error) {
	if c.hits == nil {
		c.hits = map[string]int64{}
	}
	c.hits[key]++
	return c.hits[key], nil
}

func newTestServer(t *testing.T, limiter *counter, trusted ...netip.Prefix) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := auth.NewService(users{}, logger)
	s := &server{
		logger:         logger,
		allowedOrigins: []string{"http://localhost:3000"},
		trustedProxies: trusted,
		rateLimit:      2,
		authSvc:        svc,
		auth:           auth.NewHandler(svc, false, logger),
		receipts: receipt.NewHandler(receipts{},
			analysis.NewSimulated(rand.NewSource(1), 0), receipt.Options{}, logger),
		warranties: warranty.NewHandler(nil, false, logger),
	}
	if limiter != nil {
		s.limiter = limiter
	}
	return s.routes()
}

func get(h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: token})
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(newTestServer(t, nil), "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, nil)
	get(h, "/health", "")

	rec := get(h, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "receipt_tracker_http_requests_total")
}

func TestReceiptsRequireSession(t *testing.T) {
	h := newTestServer(t, nil)

	rec := get(h, "/api/receipts", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Non authentifié"}`, rec.Body.String())

	rec = get(h, "/api/receipts", "expired")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Session invalide"}`, rec.Body.String())

	rec = get(h, "/api/receipts", "tok")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
}

func TestScanRequiresSessionBeforeValidation(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/receipts/scan", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	newTestServer(t, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCurrentUser(t *testing.T) {
	rec := get(newTestServer(t, nil), "/api/auth/user", "tok")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":{"id":1,"name":"Alice","email":"alice@example.com"}}`, rec.Body.String())
}

func TestWarrantiesDisabled(t *testing.T) {
	h := newTestServer(t, nil)

	rec := get(h, "/api/warranties", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.JSONEq(t, `{"error":"Fonctionnalité garanties non disponible"}`, rec.Body.String())

	rec = get(h, "/api/alerts", "tok")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.JSONEq(t, `{"error":"Fonctionnalité alertes non disponible"}`, rec.Body.String())
}

func TestLoginRateLimited(t *testing.T) {
	h := newTestServer(t, &counter{})

	var codes []int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)
}

func login(h http.Handler, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`))
	req.Header.Set("X-Forwarded-For", forwardedFor)
	req.Header.Set("X-Real-IP", forwardedFor)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestLoginRateLimitIgnoresForwardedHeaders(t *testing.T) {
	limiter := &counter{}
	h := newTestServer(t, limiter)

	var codes []int
	for i := 0; i < 10; i++ {
		codes = append(codes, login(h, fmt.Sprintf("203.0.113.%d", i+1)))
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest}, codes[:2])
	for _, code := range codes[2:] {
		assert.Equal(t, http.StatusTooManyRequests, code)
	}
	assert.Equal(t, map[string]int64{"ratelimit:login:192.0.2.1": 10}, limiter.hits)
}

func TestLoginRateLimitBehindTrustedProxy(t *testing.T) {
	limiter := &counter{}
	// httptest requests come from 192.0.2.1.
	h := newTestServer(t, limiter, netip.MustParsePrefix("192.0.2.0/24"))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusBadRequest, login(h, fmt.Sprintf("203.0.113.%d", i+1)))
	}
	assert.Equal(t, http.StatusBadRequest, login(h, "203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, login(h, "203.0.113.1"))
	assert.Equal(t, int64(3), limiter.hits["ratelimit:login:203.0.113.1"])
}
