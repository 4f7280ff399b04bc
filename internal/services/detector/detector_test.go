package detector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/sniper/internal/domain"
)

func TestWSDetector_NormalizeResolvesOriginator(t *testing.T) {
	d := NewWSDetector("ws://feed", domain.VenueRaydium, nil)

	event, ok := d.normalize([]byte(`{"mint":"MintAAA","creator":"dev1","timestamp":1718000000000}`))
	require.True(t, ok)
	assert.Equal(t, "MintAAA", event.Asset.Mint)
	assert.Equal(t, domain.VenueRaydium, event.Asset.Venue)
	assert.Equal(t, "dev1", event.Originator)
	assert.True(t, event.DiscoveredAt.Equal(time.UnixMilli(1718000000000)))

	// creator missing: developer, then authority, fill in
	event, ok = d.normalize([]byte(`{"mint":"MintBBB","developer":"dev2"}`))
	require.True(t, ok)
	assert.Equal(t, "dev2", event.Originator)

	event, ok = d.normalize([]byte(`{"mint":"MintCCC","authority":"dev3"}`))
	require.True(t, ok)
	assert.Equal(t, "dev3", event.Originator)

	// no feed timestamp: discovery time is stamped locally
	assert.False(t, event.DiscoveredAt.IsZero())
}

func TestWSDetector_NormalizeSkipsMalformed(t *testing.T) {
	d := NewWSDetector("ws://feed", domain.VenueRaydium, nil)

	_, ok := d.normalize([]byte(`{broken`))
	assert.False(t, ok)

	_, ok = d.normalize([]byte(`{"creator":"dev1"}`))
	assert.False(t, ok, "message without a mint must be dropped")
}

func TestWSDetector_SuppressesDuplicateMints(t *testing.T) {
	d := NewWSDetector("ws://feed", domain.VenuePumpFun, nil)

	_, ok := d.normalize([]byte(`{"mint":"MintAAA","creator":"dev1"}`))
	require.True(t, ok)

	_, ok = d.normalize([]byte(`{"mint":"MintAAA","creator":"dev1"}`))
	assert.False(t, ok)
}

func TestWSDetector_EvictsOldMints(t *testing.T) {
	d := NewWSDetector("ws://feed", domain.VenuePumpFun, nil)

	_, ok := d.normalize([]byte(`{"mint":"Mint0"}`))
	require.True(t, ok)

	for i := 1; i <= seenLimit; i++ {
		_, ok = d.normalize([]byte(fmt.Sprintf(`{"mint":"Mint%d"}`, i)))
		require.True(t, ok)
	}

	// the suppression set overflowed, so the oldest mint passes again
	_, ok = d.normalize([]byte(`{"mint":"Mint0"}`))
	assert.True(t, ok)
}

func TestSimulateDetector_ReplaysScript(t *testing.T) {
	events := SyntheticEvents(3)
	require.Len(t, events, 3)

	mints := make(map[string]struct{})
	for _, event := range events {
		assert.Equal(t, domain.VenueSimulate, event.Asset.Venue)
		assert.NotEmpty(t, event.Originator)
		mints[event.Asset.Mint] = struct{}{}
	}
	assert.Len(t, mints, 3, "scripted mints must be distinct")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan domain.NewAssetEvent, len(events))
	errc := make(chan error, 1)
	go func() { errc <- NewSimulateDetector(events, 0).Run(ctx, out) }()

	for i := 0; i < len(events); i++ {
		select {
		case event := <-out:
			assert.Equal(t, events[i].Asset, event.Asset)
		case <-time.After(time.Second):
			t.Fatal("scripted event not emitted")
		}
	}

	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
}
