package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLoop(t *testing.T) *Loop {
	t.Helper()
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return l
}

func TestLoop_RunsInOrder(t *testing.T) {
	l := runLoop(t)

	got := make(chan int, 3)
	for i := 1; i <= 3; i++ {
		i := i
		l.Post(func() { got <- i })
	}

	for want := 1; want <= 3; want++ {
		select {
		case v := <-got:
			assert.Equal(t, want, v)
		case <-time.After(time.Second):
			t.Fatal("posted function did not run")
		}
	}
}

func TestLoop_GoDeliversErrorOnLoop(t *testing.T) {
	l := runLoop(t)

	result := make(chan error, 1)
	l.Go(func() error { return errors.New("boom") }, func(err error) { result <- err })

	select {
	case err := <-result:
		assert.EqualError(t, err, "boom")
	case <-time.After(time.Second):
		t.Fatal("task result was not posted")
	}
	l.Wait()
}

func TestLoop_RecoversFromPanic(t *testing.T) {
	l := runLoop(t)

	l.Post(func() { panic("bad task") })
	ran := make(chan struct{})
	l.Post(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("loop stopped after a panic")
	}
}

func TestLoop_PostAfterStopIsDropped(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Run(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultQueueSize*2; i++ {
			l.Post(func() {})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "Post blocked on a stopped loop")
	}
}
