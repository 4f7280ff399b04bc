package detector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/sniper/internal/domain"
)

const (
	reconnectInitialDelay = 2 * time.Second
	reconnectMaxDelay     = 30 * time.Second
	readDeadline          = 90 * time.Second
	// seenLimit bounds the duplicate-suppression set; new pools are only
	// interesting within minutes of creation, so evicting old entries is safe.
	seenLimit = 10000
)

// wsPayload is the raw new-pool message shape shared by the venue feeds.
// The adapter normalizes it here; arbitrary extra fields ("developer",
// "creator", "authority" variants) are collapsed into Originator.
type wsPayload struct {
	Mint      string `json:"mint"`
	Creator   string `json:"creator"`
	Developer string `json:"developer"`
	Authority string `json:"authority"`
	Timestamp int64  `json:"timestamp"`
}

// WSDetector subscribes to one venue's new-pool websocket feed and emits
// normalized events. Connection drops trigger reconnection with exponential
// backoff; the detector only stops when ctx ends.
type WSDetector struct {
	url    string
	venue  domain.Venue
	logger *zap.Logger

	seen      map[string]struct{}
	seenOrder []string
}

// NewWSDetector creates a detector for the given feed URL and venue.
func NewWSDetector(url string, venue domain.Venue, logger *zap.Logger) *WSDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSDetector{
		url:    url,
		venue:  venue,
		logger: logger.With(zap.String("venue", string(venue))),
		seen:   make(map[string]struct{}),
	}
}

// Run consumes the feed until ctx ends, reconnecting on errors.
func (d *WSDetector) Run(ctx context.Context, out chan<- domain.NewAssetEvent) error {
	delay := reconnectInitialDelay

	for {
		if err := d.consume(ctx, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Warn("feed connection lost, reconnecting",
				zap.Error(err),
				zap.Duration("delay", delay))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

func (d *WSDetector) consume(ctx context.Context, out chan<- domain.NewAssetEvent) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return errors.Wrapf(err, "dial %s", d.url)
	}
	defer conn.Close()

	d.logger.Info("connected to new-pool feed", zap.String("url", d.url))

	// close the connection when ctx ends so ReadMessage unblocks
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			return errors.Wrap(err, "set read deadline")
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read message")
		}

		event, ok := d.normalize(raw)
		if !ok {
			continue
		}

		select {
		case out <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// normalize resolves a raw payload into a NewAssetEvent and suppresses
// duplicate mints.
func (d *WSDetector) normalize(raw []byte) (domain.NewAssetEvent, bool) {
	var payload wsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		d.logger.Debug("skipping malformed feed message", zap.Error(err))
		return domain.NewAssetEvent{}, false
	}
	if payload.Mint == "" {
		return domain.NewAssetEvent{}, false
	}

	if _, dup := d.seen[payload.Mint]; dup {
		return domain.NewAssetEvent{}, false
	}
	d.remember(payload.Mint)

	originator := payload.Creator
	if originator == "" {
		originator = payload.Developer
	}
	if originator == "" {
		originator = payload.Authority
	}

	discovered := time.Now()
	if payload.Timestamp > 0 {
		discovered = time.UnixMilli(payload.Timestamp)
	}

	return domain.NewAssetEvent{
		Asset:        domain.Asset{Mint: payload.Mint, Venue: d.venue},
		Originator:   originator,
		DiscoveredAt: discovered,
	}, true
}

func (d *WSDetector) remember(mint string) {
	d.seen[mint] = struct{}{}
	d.seenOrder = append(d.seenOrder, mint)
	if len(d.seenOrder) > seenLimit {
		oldest := d.seenOrder[0]
		d.seenOrder = d.seenOrder[1:]
		delete(d.seen, oldest)
	}
}
