// Package detector streams newly created tradeable tokens from venue feeds.
// Adapters normalize raw venue payloads into domain.NewAssetEvent at this
// boundary and suppress duplicates, so the engine sees each genuinely new
// asset at most once per venue.
package detector

import (
	"context"

	"github.com/vadiminshakov/sniper/internal/domain"
)

// Detector pushes normalized new-asset events into out until ctx ends.
type Detector interface {
	Run(ctx context.Context, out chan<- domain.NewAssetEvent) error
}
