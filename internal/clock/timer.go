package clock

import (
	"context"
	"time"
)

// Timer is a restartable one-shot timer backed by a Clock. It has the
// Start/Stop/C shape retry libraries expect, so a fake clock controls their
// sleeps too.
type Timer struct {
	ctx   context.Context
	clock Clock
	c     chan time.Time
	stop  context.CancelFunc
}

// NewTimer returns a stopped timer. Pending sleeps end when ctx is done.
func NewTimer(ctx context.Context, c Clock) *Timer {
	return &Timer{ctx: ctx, clock: c, c: make(chan time.Time, 1)}
}

// C delivers the clock's time once the started duration has elapsed.
func (t *Timer) C() <-chan time.Time { return t.c }

// Start arms the timer for d, cancelling any earlier Start.
func (t *Timer) Start(d time.Duration) {
	t.Stop()
	ctx, cancel := context.WithCancel(t.ctx)
	t.stop = cancel
	go func() {
		if err := t.clock.Sleep(ctx, d); err != nil {
			return
		}
		select {
		case t.c <- t.clock.Now():
		default:
		}
	}()
}

// Stop releases the pending sleep, if any.
func (t *Timer) Stop() {
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
}
