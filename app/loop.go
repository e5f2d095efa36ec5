// Package app wires the stores, the vault and the launch coordinator into
// one session and runs them around a single-goroutine UI loop.
package app

import (
	"context"
	"sync"

	"github.com/yllada/swiftrdp/common"
)

// defaultQueueSize is the number of posted functions buffered before Post blocks.
const defaultQueueSize = 64

// Loop serializes everything that touches UI state on one goroutine.
// Background work never mutates that state directly; it posts a function.
type Loop struct {
	queue chan func()
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

var _ common.Dispatcher = (*Loop)(nil)

// NewLoop creates a loop that is not yet running.
func NewLoop() *Loop {
	return &Loop{
		queue: make(chan func(), defaultQueueSize),
		done:  make(chan struct{}),
	}
}

// Post queues fn for the loop goroutine. Posting to a stopped loop drops fn.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.done:
		common.LogDebug("Dropping work posted after loop shutdown")
	case l.queue <- fn:
	}
}

// Run drains the queue until ctx is done. It must be called once.
func (l *Loop) Run(ctx context.Context) {
	defer l.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.queue:
			l.invoke(fn)
		}
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			common.LogError("Recovered from panic in loop task: %v", r)
		}
	}()
	fn()
}

func (l *Loop) stop() {
	l.once.Do(func() { close(l.done) })
}

// Go runs task in the background and posts its error to done on the loop.
// done may be nil.
func (l *Loop) Go(task func() error, done func(error)) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		err := task()
		if done != nil {
			l.Post(func() { done(err) })
		}
	}()
}

// Wait blocks until every task started with Go has returned.
func (l *Loop) Wait() {
	l.wg.Wait()
}
