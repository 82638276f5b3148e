package flowdag

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ThreadedNode gives a node its own unit of execution: Start spawns a
// goroutine driving the embedding node's Run with a cancellable context,
// Stop cancels it, Wait blocks until the loop has drained. Concrete nodes
// embed ThreadedNode instead of BaseNode and implement Run; nodes that open
// external resources override Start/Stop and call through.
type ThreadedNode struct {
	BaseNode

	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool

	startOnce sync.Once
	stopOnce  sync.Once

	runErr error
}

// IsRunning reports whether the execution loop is active. Run
// implementations may poll it, but should prefer honoring ctx.
func (t *ThreadedNode) IsRunning() bool {
	return t.running.Load()
}

// Start begins execution. The embedding node must implement Runner; its Run
// is invoked on a fresh goroutine. Run returning ErrEndOfStream counts as
// clean completion.
func (t *ThreadedNode) Start() error {
	runner, ok := t.self.(Runner)
	if !ok {
		return nil
	}
	if err := t.advance(StateStarted); err != nil {
		return err
	}

	t.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		t.cancel = cancel
		t.done = make(chan struct{})
		t.running.Store(true)

		p := t.Pipeline()
		if p != nil {
			p.metrics.nodeRunning(1)
		}

		go func() {
			defer close(t.done)
			defer t.running.Store(false)
			defer func() {
				if p != nil {
					p.metrics.nodeRunning(-1)
				}
			}()

			// Best effort: a node stopped before the goroutine was
			// scheduled is already past Running.
			_ = t.advance(StateRunning)

			err := runner.Run(ctx)
			if errors.Is(err, ErrEndOfStream) || errors.Is(err, context.Canceled) {
				err = nil
			}
			t.runErr = err
		}()
	})
	return nil
}

// Stop requests the execution loop to exit. Blocked queue reads inside Run
// observe the context cancellation and return instead of blocking forever.
// Stop is idempotent and safe to call before Start.
func (t *ThreadedNode) Stop() error {
	t.stopOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
	})
	// Stop before Start leaves the state machine where it is.
	if t.State() < StateStarted {
		return nil
	}
	if t.State() < StateStopped {
		return t.advance(StateStopped)
	}
	return nil
}

// Wait blocks until the execution loop has fully drained and returns its
// error, if any. Wait on a never-started node returns immediately.
func (t *ThreadedNode) Wait() error {
	if t.done != nil {
		<-t.done
	}
	if t.State() < StateWaited {
		_ = t.advance(StateWaited)
	}
	return t.runErr
}
