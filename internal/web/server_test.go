package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/sniper/internal/domain"
	"github.com/vadiminshakov/sniper/internal/services/breaker"
)

type stubPositions struct {
	positions []domain.Position
}

func (s stubPositions) ActivePositions() []domain.Position { return s.positions }

func testServer(t *testing.T) (*Server, *breaker.Breaker) {
	t.Helper()

	brk := breaker.New(breaker.Limits{
		MaxDailyLoss:           decimal.NewFromInt(100),
		MaxSingleLoss:          decimal.NewFromInt(50),
		MaxConsecutiveFailures: 3,
		Cooldown:               time.Minute,
	}, nil)

	pos, err := domain.NewPosition(
		domain.Asset{Mint: "MintAAA", Venue: domain.VenueSimulate},
		decimal.NewFromInt(1), decimal.NewFromInt(1000), time.Now())
	require.NoError(t, err)

	return NewServer(":0", stubPositions{positions: []domain.Position{pos.Snapshot()}}, brk, nil, nil), brk
}

func TestServer_Positions(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/positions", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var positions []domain.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &positions))
	require.Len(t, positions, 1)
	assert.Equal(t, "simulate:MintAAA", positions[0].Asset.String())
	assert.Equal(t, domain.StateMonitoring, positions[0].State)
}

func TestServer_BreakerStatusAndReset(t *testing.T) {
	srv, brk := testServer(t)

	// open the breaker with a large single loss
	brk.RecordTrade(domain.TradeOutcome{
		Asset:      domain.Asset{Mint: "MintAAA", Venue: domain.VenueSimulate},
		Direction:  domain.DirectionSell,
		ProfitLoss: decimal.NewFromInt(-80),
		Timestamp:  time.Now(),
	})

	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/breaker", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status breaker.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Open)

	rec = httptest.NewRecorder()
	srv.router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/breaker/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Open)
}

func TestServer_BreakerResetRequiresPost(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/breaker/reset", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_HistoryUnavailable(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Health(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
