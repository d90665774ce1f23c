package coop

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// TaskFunc is the body of one task. A non-nil return aborts the loop.
type TaskFunc func(t *Task) error

// loop hands a single baton between tasks in FIFO order.
type loop struct {
	mu      sync.Mutex
	running bool
	ready   []chan struct{}
}

// enqueue registers a waiter. If nobody holds the baton the waiter gets it
// immediately.
func (l *loop) enqueue() chan struct{} {
	ch := make(chan struct{})
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		l.running = true
		close(ch)
		return ch
	}
	l.ready = append(l.ready, ch)
	return ch
}

// wait blocks until ch is handed the baton or ctx is done.
func (l *loop) wait(ctx context.Context, ch chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	for i, w := range l.ready {
		if w == ch {
			l.ready = append(l.ready[:i], l.ready[i+1:]...)
			l.mu.Unlock()
			return ctx.Err()
		}
	}
	l.mu.Unlock()
	// Handed off concurrently with cancellation; we hold the baton.
	<-ch
	return nil
}

// release passes the baton to the next ready waiter.
func (l *loop) release() {
	l.mu.Lock()
	if len(l.ready) == 0 {
		l.running = false
		l.mu.Unlock()
		return
	}
	next := l.ready[0]
	l.ready = l.ready[1:]
	l.mu.Unlock()
	close(next)
}

// Task is the handle a running task uses to suspend itself.
type Task struct {
	loop    *loop
	ctx     context.Context
	holding bool
}

// Context returns the loop context. It is cancelled when the loop aborts.
func (t *Task) Context() context.Context {
	return t.ctx
}

// Await suspends the task while fn runs, letting other tasks execute.
// The task resumes once fn has returned and the loop is free.
func (t *Task) Await(fn func(ctx context.Context) error) error {
	t.suspend()
	err := fn(t.ctx)
	if rerr := t.resume(); rerr != nil {
		return rerr
	}
	return err
}

// Sleep suspends the task for d.
func (t *Task) Sleep(d time.Duration) error {
	return t.Await(func(ctx context.Context) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// Yield lets every other ready task run once before the task continues.
func (t *Task) Yield() error {
	ch := t.loop.enqueue()
	t.suspend()
	if err := t.loop.wait(t.ctx, ch); err != nil {
		return err
	}
	t.holding = true
	return nil
}

func (t *Task) suspend() {
	if t.holding {
		t.holding = false
		t.loop.release()
	}
}

func (t *Task) resume() error {
	ch := t.loop.enqueue()
	if err := t.loop.wait(t.ctx, ch); err != nil {
		return err
	}
	t.holding = true
	return nil
}

// Run schedules every task on one loop and blocks until all of them have
// completed, a task returns a non-nil error, or ctx is cancelled.
func Run(ctx context.Context, tasks ...TaskFunc) error {
	if len(tasks) == 0 {
		return nil
	}

	l := &loop{}
	g, gctx := errgroup.WithContext(ctx)

	// Queue every task before starting any goroutine so the first
	// scheduling round follows declaration order.
	starts := make([]chan struct{}, len(tasks))
	for i := range tasks {
		starts[i] = l.enqueue()
	}

	aborted := make(chan error, len(tasks))
	for i, fn := range tasks {
		fn := fn
		t := &Task{loop: l, ctx: gctx}
		start := starts[i]
		g.Go(func() error {
			if err := l.wait(gctx, start); err != nil {
				return nil
			}
			t.holding = true
			defer t.suspend()

			if err := fn(t); err != nil {
				aborted <- err
				return err
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err == nil {
			err = ctx.Err()
		}
		return err
	case err := <-aborted:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
