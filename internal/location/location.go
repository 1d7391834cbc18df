// Package location abstracts the position source feeding the tracker and
// playback engine. Production builds wire a platform GPS watch; tests and
// the simulate command use SimulatedProvider.
package location

import (
	"context"
	"errors"

	"github.com/biomapp/derive/internal/model"
)

// ErrNoFix is returned by Current when no position is available yet.
var ErrNoFix = errors.New("no position fix available")

// Provider delivers device positions. Implementations must support multiple
// concurrent subscribers.
type Provider interface {
	// Current returns the most recent position, blocking until one is
	// available or ctx is done.
	Current(ctx context.Context) (model.Position, error)

	// Subscribe registers a watcher. The returned subscription's channel
	// receives every subsequent position update.
	Subscribe() *Subscription
}

// Subscription is a live position watch. Cancel releases it; the channel is
// closed afterwards.
type Subscription struct {
	C      <-chan model.Position
	cancel func()
}

// Cancel stops the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func newSubscription(ch <-chan model.Position, cancel func()) *Subscription {
	return &Subscription{C: ch, cancel: cancel}
}
