package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingPass struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (c *countingPass) ProcessQueue(ctx context.Context) error {
	c.calls.Add(1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
		}
	}
	return c.err
}

func TestScheduler_TriggerRunsPass(t *testing.T) {
	pass := &countingPass{}
	s := NewScheduler(pass, time.Hour, nil)

	s.Start(context.Background())
	defer s.Stop()

	// Start requests an initial pass
	assert.Eventually(t, func() bool { return pass.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)

	before := pass.calls.Load()
	s.Trigger()
	assert.Eventually(t, func() bool { return pass.calls.Load() > before }, time.Second, 5*time.Millisecond)
}

func TestScheduler_IntervalTick(t *testing.T) {
	pass := &countingPass{err: errors.New("transient")}
	s := NewScheduler(pass, 10*time.Millisecond, nil)

	s.Start(context.Background())
	defer s.Stop()

	// errors are logged, the loop keeps ticking
	assert.Eventually(t, func() bool { return pass.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_TriggerNeverBlocks(t *testing.T) {
	s := NewScheduler(&countingPass{}, time.Hour, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Trigger()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Trigger blocked without a running scheduler")
	}
}

func TestScheduler_StopWaitsForPass(t *testing.T) {
	pass := &countingPass{delay: 50 * time.Millisecond}
	s := NewScheduler(pass, time.Hour, nil)

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return pass.calls.Load() == 1 }, time.Second, time.Millisecond)

	s.Stop()
	calls := pass.calls.Load()

	// no passes after Stop returns
	s.Trigger()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, pass.calls.Load())
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	s := NewScheduler(&countingPass{}, time.Hour, nil)

	s.Stop()
	s.Start(context.Background())
	s.Start(context.Background())
	s.Stop()
	s.Stop()

	// restart after stop
	s.Start(context.Background())
	s.Stop()
}

func TestScheduler_ParentContextCancel(t *testing.T) {
	pass := &countingPass{}
	s := NewScheduler(pass, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after parent cancel")
	}
}
