package location

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biomapp/derive/internal/model"
)

func pos(lat, lng float64) model.Position {
	return model.Position{Lat: lat, Lng: lng, CapturedAt: time.Now().UnixMilli()}
}

func TestCurrent_ReturnsLastPush(t *testing.T) {
	p := NewSimulatedProvider()
	defer p.Stop()

	p.Push(pos(6.15, -75.37))
	p.Push(pos(6.16, -75.38))

	got, err := p.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6.16, got.Lat)
	assert.Equal(t, -75.38, got.Lng)
}

func TestCurrent_WaitsForFirstFix(t *testing.T) {
	p := NewSimulatedProvider()
	defer p.Stop()

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Push(pos(1, 2))
	}()

	got, err := p.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Lat)
}

func TestCurrent_ContextCancelled(t *testing.T) {
	p := NewSimulatedProvider()
	defer p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Current(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubscribe_ReceivesUpdates(t *testing.T) {
	p := NewSimulatedProvider()
	defer p.Stop()

	sub := p.Subscribe()
	defer sub.Cancel()

	p.Push(pos(1, 1))
	p.Push(pos(2, 2))

	first := <-sub.C
	second := <-sub.C
	assert.Equal(t, 1.0, first.Lat)
	assert.Equal(t, 2.0, second.Lat)
}

func TestSubscribe_CancelClosesChannel(t *testing.T) {
	p := NewSimulatedProvider()
	defer p.Stop()

	sub := p.Subscribe()
	sub.Cancel()
	sub.Cancel() // idempotent

	_, open := <-sub.C
	assert.False(t, open)
}

func TestSubscribe_SlowSubscriberDoesNotBlock(t *testing.T) {
	p := NewSimulatedProvider()
	defer p.Stop()

	sub := p.Subscribe()
	defer sub.Cancel()

	// Overflow the buffer; Push must not deadlock.
	for i := 0; i < 100; i++ {
		p.Push(pos(float64(i), 0))
	}
}

func TestSubscribe_CancelDuringPushes(t *testing.T) {
	p := NewSimulatedProvider()
	defer p.Stop()

	// Cancelling a subscription while the feed is mid-push must never
	// panic on a closed channel.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			p.Push(pos(float64(i), 0))
		}
	}()

	for i := 0; i < 200; i++ {
		sub := p.Subscribe()
		sub.Cancel()
	}
	<-done
}

func TestReplay_DeliversTrail(t *testing.T) {
	p := NewSimulatedProvider()

	trail := []model.Position{pos(1, 1), pos(2, 2), pos(3, 3)}
	sub := p.Subscribe()
	defer sub.Cancel()

	p.Replay(trail, time.Millisecond)

	var got []model.Position
	timeout := time.After(time.Second)
	for len(got) < len(trail) {
		select {
		case u := <-sub.C:
			got = append(got, u)
		case <-timeout:
			t.Fatal("timed out waiting for replayed positions")
		}
	}
	assert.Equal(t, 1.0, got[0].Lat)
	assert.Equal(t, 3.0, got[2].Lat)

	p.Stop()
}

func TestStop_UnblocksCurrent(t *testing.T) {
	p := NewSimulatedProvider()

	done := make(chan error, 1)
	go func() {
		_, err := p.Current(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	p.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrNoFix)
	case <-time.After(time.Second):
		t.Fatal("Current did not unblock after Stop")
	}
}
