package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// WorkerGroup runs the daemon's named background goroutines. Once StopAndWait
// is called no new worker starts, so Add never races with Wait.
type WorkerGroup struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
	logger *slog.Logger
}

// Go starts fn as the worker name. It reports false when the group is
// stopping or fn is nil. A panic in fn is logged and swallowed.
func (g *WorkerGroup) Go(name string, fn func()) bool {
	if fn == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.wg.Add(1)

	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				g.log().Error("Worker panicked", slog.String("worker", name), slog.String("panic", fmt.Sprint(r)))
			}
		}()
		fn()
	}()
	return true
}

// StopAndWait closes the group and waits for running workers until ctx ends.
func (g *WorkerGroup) StopAndWait(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *WorkerGroup) log() *slog.Logger {
	if g.logger != nil {
		return g.logger
	}
	return slog.Default()
}
