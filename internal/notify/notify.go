// Package notify delivers operator alerts: safety-breaker transitions,
// abandoned positions, recovery mismatches. Delivery is best effort and
// never blocks the trade path.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sender delivers a single message to one channel.
type Sender interface {
	Send(ctx context.Context, message string) error
	Name() string
}

// Notifier fans a message out to every configured sender.
type Notifier struct {
	senders []Sender
	logger  *zap.Logger
	timeout time.Duration
}

func New(logger *zap.Logger, senders ...Sender) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		senders: senders,
		logger:  logger,
		timeout: 10 * time.Second,
	}
}

// Notify sends the message to all senders concurrently and logs failures.
func (n *Notifier) Notify(ctx context.Context, message string) {
	if len(n.senders) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, s := range n.senders {
		wg.Add(1)
		go func(s Sender) {
			defer wg.Done()

			sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
			defer cancel()

			if err := s.Send(sendCtx, message); err != nil {
				n.logger.Warn("notification delivery failed",
					zap.String("sender", s.Name()),
					zap.Error(err))
			}
		}(s)
	}
	wg.Wait()
}

// NotifyAsync fires Notify in a goroutine. Used from hot paths.
func (n *Notifier) NotifyAsync(message string) {
	go n.Notify(context.Background(), message)
}
