// Package positions persists position snapshots in a write-ahead log. Every
// confirmed entry, partial sell and terminal transition appends the full
// position state; on restart the latest snapshot per asset seeds the
// reconciliation pass against venue-reported balances.
package positions

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/sniper/internal/domain"
)

const (
	positionKeyPrefix = "position_"
	segmentThreshold  = 1000
	maxSegments       = 100
)

// WALStore is a WAL-backed position journal.
type WALStore struct {
	mu  sync.Mutex
	wal *gowal.Wal
}

// NewWALStore opens (or creates) the journal in dir.
func NewWALStore(dir string) (*WALStore, error) {
	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "log_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init position WAL")
	}

	return &WALStore{wal: wal}, nil
}

func positionKey(asset domain.Asset) string {
	return positionKeyPrefix + asset.String()
}

// Save appends the position's current state to the journal.
func (s *WALStore) Save(p *domain.Position) error {
	if s == nil || s.wal == nil {
		return errors.New("position store is not initialized")
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "marshal position")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, positionKey(p.Asset), payload)
}

// OpenPositions replays the journal and returns the latest snapshot of every
// position that was not journaled as terminal. Later records win.
func (s *WALStore) OpenPositions() ([]*domain.Position, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("position store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	latest := make(map[string]*domain.Position)

	for msg := range s.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, positionKeyPrefix) {
			continue
		}

		var p domain.Position
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			return nil, errors.Wrapf(err, "unmarshal position record %s", msg.Key)
		}
		latest[msg.Key] = &p
	}

	open := make([]*domain.Position, 0, len(latest))
	for _, p := range latest {
		if !p.State.Terminal() {
			open = append(open, p)
		}
	}

	return open, nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return nil
	}
	return s.wal.Close()
}
