// Package clock abstracts time so polling loops can be driven deterministically in tests.
package clock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Clock is the time source used by retry, polling and settle delays.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the wall clock.
type Real struct{}

// New returns the wall clock.
func New() Clock { return Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type event struct {
	at time.Time
	fn func()
}

// Fake is a manually driven clock. Sleep advances time instantly and runs any
// events scheduled inside the slept interval, in order.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	events []event
	slept  []time.Duration
}

// NewFake returns a fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.slept = append(f.slept, d)
	f.mu.Unlock()
	f.Advance(d)
	return ctx.Err()
}

// Advance moves time forward by d, firing due events outside the lock.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	if d > 0 {
		f.now = f.now.Add(d)
	}
	var due []event
	kept := f.events[:0]
	for _, e := range f.events {
		if !e.at.After(f.now) {
			due = append(due, e)
		} else {
			kept = append(kept, e)
		}
	}
	f.events = kept
	f.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, e := range due {
		e.fn()
	}
}

// AfterFunc schedules fn to run once the clock has advanced by at least d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) {
	f.mu.Lock()
	f.events = append(f.events, event{at: f.now.Add(d), fn: fn})
	f.mu.Unlock()
}

// Sleeps returns every duration passed to Sleep so far.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.slept...)
}

// Elapsed reports how far the clock has moved since start.
func (f *Fake) Elapsed(start time.Time) time.Duration {
	return f.Now().Sub(start)
}
