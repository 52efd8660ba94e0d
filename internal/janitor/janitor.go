// Package janitor runs a periodic cleanup function on a background
// goroutine owned by the caller.
package janitor

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/logging"
)

// Janitor calls a task every interval between Start and Stop.
type Janitor struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context)
	log      logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(name string, interval time.Duration, log logging.Logger, task func(ctx context.Context)) *Janitor {
	return &Janitor{
		name:     name,
		interval: interval,
		task:     task,
		log:      log.With("janitor", name),
	}
}

// Start launches the loop. It is a no-op if the janitor is already running
// or the interval is not positive.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil || j.interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.done = make(chan struct{})
	go j.run(ctx, j.done)
	j.log.Debug(ctx, "janitor started", "interval", j.interval.String())
}

func (j *Janitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.runOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (j *Janitor) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			j.log.Error(ctx, "janitor task panicked", "panic", r)
		}
	}()
	j.task(ctx)
}

// Stop cancels the loop and waits for an in-flight run to return.
// Calling Stop on a stopped janitor does nothing.
func (j *Janitor) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	j.log.Debug(context.Background(), "janitor stopped")
}

// Running reports whether the loop is active.
func (j *Janitor) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancel != nil
}
