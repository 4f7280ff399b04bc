package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/vadiminshakov/sniper/internal/domain"
)

// SyntheticEvents builds n distinct simulated-venue listings. Dry runs feed
// them through a SimulateDetector so the whole entry and exit path runs
// without a live feed.
func SyntheticEvents(n int) []domain.NewAssetEvent {
	events := make([]domain.NewAssetEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, domain.NewAssetEvent{
			Asset:        domain.Asset{Mint: fmt.Sprintf("SIM%04d", i+1), Venue: domain.VenueSimulate},
			Originator:   fmt.Sprintf("simdev%04d", i+1),
			DiscoveredAt: time.Now(),
		})
	}
	return events
}

// SimulateDetector replays a scripted event sequence with a fixed delay
// between events. Used in dry-run mode and tests.
type SimulateDetector struct {
	events []domain.NewAssetEvent
	delay  time.Duration
}

// NewSimulateDetector creates a detector replaying events with the given
// inter-event delay.
func NewSimulateDetector(events []domain.NewAssetEvent, delay time.Duration) *SimulateDetector {
	return &SimulateDetector{events: events, delay: delay}
}

// Run emits the scripted events, then blocks until ctx ends.
func (d *SimulateDetector) Run(ctx context.Context, out chan<- domain.NewAssetEvent) error {
	for _, event := range d.events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- event:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.delay):
		}
	}

	<-ctx.Done()
	return ctx.Err()
}
