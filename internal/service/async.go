// Package service holds the controllers and application services the edge
// handlers call. Controllers keep an in-memory view of a feed or comment
// thread, apply mutations optimistically and confirm them in the background.
package service

import (
	"context"
	"errors"
	"sync"

	"frzterr/internal/observability"
)

// ErrSuperseded is returned by a load whose result was discarded because a
// newer load started.
var ErrSuperseded = errors.New("load superseded by a newer request")

// observers fans snapshots out to subscribers.
type observers[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]func(T)
}

func (o *observers[T]) subscribe(fn func(T)) (cancel func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.subs == nil {
		o.subs = make(map[int]func(T))
	}
	id := o.next
	o.next++
	o.subs[id] = fn
	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

func (o *observers[T]) publish(v T) {
	o.mu.Lock()
	fns := make([]func(T), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

// detached runs confirming writes off the caller's goroutine. Every write
// runs on base, which close cancels, and is counted so wait can block until
// all of them have finished.
type detached struct {
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newDetached() *detached {
	ctx, cancel := context.WithCancel(context.Background())
	return &detached{base: ctx, cancel: cancel}
}

// run executes write in a new goroutine. onErr runs on the same goroutine
// when write fails; onOK when it succeeds. Either may be nil.
func (d *detached) run(op string, fields map[string]interface{}, write func(context.Context) error, onOK func(), onErr func(error)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx := d.base
		observability.LogAsyncOperationStart(ctx, op, fields)
		if err := write(ctx); err != nil {
			observability.LogAsyncOperationError(ctx, op, err, fields)
			if onErr != nil {
				onErr(err)
			}
			return
		}
		observability.LogAsyncOperationEnd(ctx, op, fields)
		if onOK != nil {
			onOK()
		}
	}()
}

func (d *detached) closed() bool {
	return d.base.Err() != nil
}

func (d *detached) wait() {
	d.wg.Wait()
}

func (d *detached) close() {
	d.cancel()
	d.wg.Wait()
}

// loadGate stamps each load with a generation and cancels the one before it.
type loadGate struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// begin cancels the in-flight load, if any, and returns a context and
// generation for the new one.
func (g *loadGate) begin(ctx context.Context) (context.Context, uint64, context.CancelFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
	g.gen++
	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	return ctx, g.gen, cancel
}

// current reports whether gen is still the latest load.
func (g *loadGate) current(gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return gen == g.gen
}

func floorZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
