// Package async runs fire-and-forget side effects (fulfillment dispatch,
// notifications) off the request path with bounded concurrency.
package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	maxWorkers     = 128
	defaultTimeout = 30 * time.Second
)

// Observer receives task outcomes: ok, error, canceled, dropped or panic.
type Observer interface {
	ObserveTask(name, status string, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveTask(string, string, time.Duration) {}

// Runner executes tasks in background goroutines. At most workers tasks run
// at once; the rest wait for a slot until their timeout expires.
type Runner struct {
	sem     chan struct{}
	running atomic.Int64
	wg      sync.WaitGroup

	timeout time.Duration
	obs     Observer
	log     *slog.Logger
}

// New returns a Runner with workers clamped to [1, 128]. Each task gets
// timeout (default 30s) measured from submission.
func New(workers int, timeout time.Duration, obs Observer, log *slog.Logger) *Runner {
	if workers <= 0 {
		workers = 1
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if obs == nil {
		obs = nopObserver{}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		sem:     make(chan struct{}, workers),
		timeout: timeout,
		obs:     obs,
		log:     log,
	}
}

// acquire reserves a worker slot or returns ctx.Err().
func (r *Runner) acquire(ctx context.Context) error {
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) release() { <-r.sem }

// Go schedules fn and returns immediately. The task context keeps ctx's
// values but not its cancellation, so it outlives the request that
// triggered it.
func (r *Runner) Go(ctx context.Context, name string, fn func(context.Context) error) {
	base := context.WithoutCancel(ctx)
	r.wg.Add(1)
	r.running.Add(1)

	go func() {
		defer r.wg.Done()
		defer r.running.Add(-1)

		tctx, cancel := context.WithTimeout(base, r.timeout)
		defer cancel()

		start := time.Now()
		if err := r.acquire(tctx); err != nil {
			r.log.WarnContext(tctx, "task dropped: no worker available", "task", name, "err", err)
			r.obs.ObserveTask(name, "dropped", time.Since(start))
			return
		}
		defer r.release()

		err := r.run(tctx, fn)
		st := "ok"
		switch {
		case err == nil:
		case errors.Is(err, errPanic):
			st = "panic"
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			st = "canceled"
		default:
			st = "error"
		}
		if err != nil {
			r.log.ErrorContext(tctx, "task failed", "task", name, "status", st, "err", err)
		}
		r.obs.ObserveTask(name, st, time.Since(start))
	}()
}

var errPanic = errors.New("task panicked")

func (r *Runner) run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", errPanic, p)
		}
	}()
	return fn(ctx)
}

// Running reports tasks submitted and not yet finished.
func (r *Runner) Running() int64 { return r.running.Load() }

// Wait blocks until every submitted task finishes or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
