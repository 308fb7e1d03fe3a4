package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerFiresOnFakeClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := NewFake(start)
	timer := NewTimer(context.Background(), clk)
	defer timer.Stop()

	timer.Start(2 * time.Second)
	select {
	case at := <-timer.C():
		assert.Equal(t, start.Add(2*time.Second), at)
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	timer.Start(3 * time.Second)
	<-timer.C()
	assert.Equal(t, []time.Duration{2 * time.Second, 3 * time.Second}, clk.Sleeps())
}

func TestTimerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	timer := NewTimer(ctx, New())

	timer.Start(time.Hour)
	cancel()
	timer.Stop()

	select {
	case <-timer.C():
		t.Fatal("a cancelled timer must not fire")
	case <-time.After(20 * time.Millisecond):
	}
	require.NotPanics(t, timer.Stop, "stopping twice is a no-op")
}
