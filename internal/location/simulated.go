package location

import (
	"context"
	"sync"
	"time"

	"github.com/biomapp/derive/internal/model"
)

// SimulatedProvider replays a fixed trail of positions at a configurable
// interval. It also accepts pushed positions, which test code uses to drive
// exact sequences.
type SimulatedProvider struct {
	mu          sync.Mutex
	subscribers map[int]chan model.Position
	nextSubID   int
	last        *model.Position
	firstFix    chan struct{}
	fixOnce     sync.Once

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSimulatedProvider creates a provider with no positions yet.
func NewSimulatedProvider() *SimulatedProvider {
	return &SimulatedProvider{
		subscribers: make(map[int]chan model.Position),
		firstFix:    make(chan struct{}),
		stopChan:    make(chan struct{}),
	}
}

// Push publishes a position to all subscribers and records it as current.
// Sends happen under the lock so a concurrent Cancel cannot close a channel
// mid-send; the buffered non-blocking send keeps the feed from stalling.
func (p *SimulatedProvider) Push(pos model.Position) {
	p.mu.Lock()
	p.last = &pos
	for _, ch := range p.subscribers {
		select {
		case ch <- pos:
		default:
			// Slow subscriber drops updates rather than blocking the feed.
		}
	}
	p.mu.Unlock()

	p.fixOnce.Do(func() { close(p.firstFix) })
}

// Replay walks the trail, pushing one position per interval until the trail
// is exhausted or Stop is called. It returns immediately; playback runs in
// the background.
func (p *SimulatedProvider) Replay(trail []model.Position, interval time.Duration) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for _, pos := range trail {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				p.Push(pos)
			}
		}
	}()
}

// Current returns the most recent pushed position, waiting for the first
// fix if none has arrived yet.
func (p *SimulatedProvider) Current(ctx context.Context) (model.Position, error) {
	p.mu.Lock()
	if p.last != nil {
		pos := *p.last
		p.mu.Unlock()
		return pos, nil
	}
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return model.Position{}, ctx.Err()
	case <-p.stopChan:
		return model.Position{}, ErrNoFix
	case <-p.firstFix:
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return model.Position{}, ErrNoFix
	}
	return *p.last, nil
}

// Subscribe registers a watcher fed by Push and Replay.
func (p *SimulatedProvider) Subscribe() *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSubID
	p.nextSubID++
	ch := make(chan model.Position, 16)
	p.subscribers[id] = ch

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.subscribers[id]; ok {
			delete(p.subscribers, id)
			close(ch)
		}
	}
	return newSubscription(ch, cancel)
}

// Stop halts any replay and unblocks pending Current calls.
func (p *SimulatedProvider) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.wg.Wait()
}

var _ Provider = (*SimulatedProvider)(nil)
