package positions

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/sniper/internal/domain"
)

func journalPosition(t *testing.T, mint string) *domain.Position {
	t.Helper()
	p, err := domain.NewPosition(
		domain.Asset{Mint: mint, Venue: domain.VenueSimulate},
		decimal.NewFromInt(1),
		decimal.NewFromInt(1000),
		time.Now(),
	)
	require.NoError(t, err)
	return p
}

func TestWALStore_ReplayKeepsLatestOpenSnapshots(t *testing.T) {
	dir := t.TempDir()

	store, err := NewWALStore(dir)
	require.NoError(t, err)

	untouched := journalPosition(t, "MintAAA")
	require.NoError(t, store.Save(untouched))

	// two snapshots for the same asset: only the later one must survive
	partial := journalPosition(t, "MintBBB")
	require.NoError(t, store.Save(partial))
	require.NoError(t, partial.ApplyFill(0, decimal.NewFromInt(350)))
	require.NoError(t, store.Save(partial))

	// journaled as terminal: must not be replayed as open
	finished := journalPosition(t, "MintCCC")
	require.NoError(t, store.Save(finished))
	require.NoError(t, finished.Transition(domain.StateClosed))
	require.NoError(t, store.Save(finished))

	require.NoError(t, store.Close())

	reopened, err := NewWALStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	open, err := reopened.OpenPositions()
	require.NoError(t, err)
	require.Len(t, open, 2)

	byMint := make(map[string]*domain.Position, len(open))
	for _, p := range open {
		byMint[p.Asset.Mint] = p
	}

	require.Contains(t, byMint, "MintAAA")
	assert.True(t, byMint["MintAAA"].Remaining.Equal(decimal.NewFromInt(1000)))

	require.Contains(t, byMint, "MintBBB")
	assert.True(t, byMint["MintBBB"].Remaining.Equal(decimal.NewFromInt(650)),
		"remaining %s", byMint["MintBBB"].Remaining)
	assert.Equal(t, []int{0}, byMint["MintBBB"].TiersCompleted)
	assert.Equal(t, domain.StateMonitoring, byMint["MintBBB"].State)

	assert.NotContains(t, byMint, "MintCCC")
}

func TestWALStore_EmptyJournal(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	open, err := store.OpenPositions()
	require.NoError(t, err)
	assert.Empty(t, open)
}
