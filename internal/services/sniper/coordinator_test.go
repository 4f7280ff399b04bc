package sniper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/sniper/internal/domain"
	"github.com/vadiminshakov/sniper/internal/services/breaker"
	"github.com/vadiminshakov/sniper/internal/services/executor"
	"github.com/vadiminshakov/sniper/internal/services/pricer"
	"github.com/vadiminshakov/sniper/internal/services/security"
	"github.com/vadiminshakov/sniper/pkg/retrier"
)

type stubSafety struct {
	mu       sync.Mutex
	allow    bool
	recorded []domain.TradeOutcome
}

func (s *stubSafety) CanTrade() breaker.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return breaker.Decision{Allowed: s.allow, Reason: "test"}
}

func (s *stubSafety) RecordTrade(o domain.TradeOutcome) {
	s.mu.Lock()
	s.recorded = append(s.recorded, o)
	s.mu.Unlock()
}

func (s *stubSafety) outcomes() []domain.TradeOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TradeOutcome(nil), s.recorded...)
}

type memRegistry struct {
	mu        sync.Mutex
	positions map[domain.Asset]*domain.Position
}

func newMemRegistry() *memRegistry {
	return &memRegistry{positions: make(map[domain.Asset]*domain.Position)}
}

func (r *memRegistry) Register(p *domain.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions[p.Asset] = p
	return nil
}

func (r *memRegistry) Has(asset domain.Asset) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.positions[asset]
	return ok
}

type rig struct {
	coord    *Coordinator
	pricer   *pricer.SimulatePricer
	exec     *executor.SimulateExecutor
	safety   *stubSafety
	registry *memRegistry
}

func newRig(t *testing.T, gates security.Gates) *rig {
	t.Helper()

	p := pricer.NewSimulatePricer()
	e := executor.NewSimulateExecutor(p, decimal.NewFromInt(10_000), nil)
	s := &stubSafety{allow: true}
	reg := newMemRegistry()

	cfg := Config{
		BuyAmount:   decimal.NewFromInt(100),
		MaxSlippage: decimal.NewFromFloat(0.05),
		BuyRetry: retrier.Policy{
			Label:       "buy",
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
		},
	}

	c, err := New(cfg, gates, s, e, reg, nil)
	require.NoError(t, err)

	return &rig{coord: c, pricer: p, exec: e, safety: s, registry: reg}
}

func candidate(mint, originator string) domain.NewAssetEvent {
	return domain.NewAssetEvent{
		Asset:        domain.Asset{Mint: mint, Venue: domain.VenueSimulate},
		Originator:   originator,
		DiscoveredAt: time.Now(),
	}
}

func TestCoordinator_SuccessfulSnipe(t *testing.T) {
	r := newRig(t, security.Gates{})
	event := candidate("MintAAA", "dev1")
	r.pricer.SetPrice(event.Asset, decimal.NewFromFloat(0.5))

	r.coord.OnCandidate(context.Background(), event)

	require.True(t, r.registry.Has(event.Asset))
	pos := r.registry.positions[event.Asset]
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromFloat(0.5)))
	assert.True(t, pos.EntryAmount.Equal(decimal.NewFromInt(200))) // 100 quote / 0.5
	assert.Equal(t, domain.StateMonitoring, pos.State)

	outcomes := r.safety.outcomes()
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.Equal(t, domain.DirectionBuy, outcomes[0].Direction)
	assert.True(t, outcomes[0].ProfitLoss.IsZero()) // entries carry no realized result
}

func TestCoordinator_BlacklistedOriginatorDenied(t *testing.T) {
	gates := security.Gates{Blacklist: security.NewStaticBlacklist([]string{"ruggerdev"})}
	r := newRig(t, gates)
	event := candidate("MintBBB", "ruggerdev")
	r.pricer.SetPrice(event.Asset, decimal.NewFromInt(1))

	r.coord.OnCandidate(context.Background(), event)

	// a denial is not a trade: nothing registered, nothing recorded
	assert.False(t, r.registry.Has(event.Asset))
	assert.Empty(t, r.safety.outcomes())
}

func TestCoordinator_BreakerDenied(t *testing.T) {
	r := newRig(t, security.Gates{})
	r.safety.allow = false
	event := candidate("MintCCC", "dev1")
	r.pricer.SetPrice(event.Asset, decimal.NewFromInt(1))

	r.coord.OnCandidate(context.Background(), event)

	assert.False(t, r.registry.Has(event.Asset))
	assert.Empty(t, r.safety.outcomes())
}

func TestCoordinator_BuyFailureRecordsOutcome(t *testing.T) {
	r := newRig(t, security.Gates{})
	event := candidate("MintDDD", "dev1")
	r.pricer.SetPrice(event.Asset, decimal.NewFromInt(1))
	r.exec.FailNext(10) // outlasts the retry budget

	r.coord.OnCandidate(context.Background(), event)

	assert.False(t, r.registry.Has(event.Asset))

	outcomes := r.safety.outcomes()
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Success)
}

func TestCoordinator_TransientFailureRetriesThenSucceeds(t *testing.T) {
	r := newRig(t, security.Gates{})
	event := candidate("MintEEE", "dev1")
	r.pricer.SetPrice(event.Asset, decimal.NewFromInt(2))
	r.exec.FailNext(2) // third attempt lands inside the budget

	r.coord.OnCandidate(context.Background(), event)

	require.True(t, r.registry.Has(event.Asset))
	outcomes := r.safety.outcomes()
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
}

func TestCoordinator_DuplicateAssetSkipped(t *testing.T) {
	r := newRig(t, security.Gates{})
	event := candidate("MintFFF", "dev1")
	r.pricer.SetPrice(event.Asset, decimal.NewFromInt(1))

	r.coord.OnCandidate(context.Background(), event)
	require.True(t, r.registry.Has(event.Asset))
	require.Len(t, r.safety.outcomes(), 1)

	// a second event for the same asset is ignored while the position lives
	r.coord.OnCandidate(context.Background(), event)
	assert.Len(t, r.safety.outcomes(), 1)
}

func TestCoordinator_RunConsumesChannel(t *testing.T) {
	r := newRig(t, security.Gates{})
	eventA := candidate("MintGGG", "dev1")
	eventB := candidate("MintHHH", "dev2")
	r.pricer.SetPrice(eventA.Asset, decimal.NewFromInt(1))
	r.pricer.SetPrice(eventB.Asset, decimal.NewFromInt(1))

	events := make(chan domain.NewAssetEvent, 2)
	events <- eventA
	events <- eventB
	close(events)

	r.coord.Run(context.Background(), events)

	assert.True(t, r.registry.Has(eventA.Asset))
	assert.True(t, r.registry.Has(eventB.Asset))
}
