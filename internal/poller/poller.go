// Package poller tracks one backend job at a time by querying its progress
// on a fixed cadence until it reaches a terminal state.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ytpanel/internal/consts"
	"ytpanel/internal/entity"
	"ytpanel/internal/observability"
)

// Fetcher queries the state of a job.
type Fetcher interface {
	Progress(ctx context.Context, downloadID string) (*entity.DownloadJob, error)
}

// Hooks are invoked on the session goroutine. They must not call back into
// the Poller that owns the session. Nil hooks are skipped.
//
// OnProgress runs within the cadence. The terminal hooks run after the
// cadence has ended, on the context given to Start, so replacing or
// stopping the session does not cancel them.
type Hooks struct {
	// OnProgress is called for every downloading response with the rounded percentage.
	OnProgress func(ctx context.Context, downloadID string, percent int)
	// OnCompleted is called once when the job completes.
	OnCompleted func(ctx context.Context, job entity.DownloadJob)
	// OnFailed is called once when the backend reports the job as failed.
	OnFailed func(ctx context.Context, job entity.DownloadJob)
	// OnAbandoned is called once when a progress query fails.
	OnAbandoned func(ctx context.Context, downloadID string, err error)
}

// Poller owns at most one active Session.
type Poller struct {
	log      *slog.Logger
	fetcher  Fetcher
	interval time.Duration
	metrics  *observability.Metrics

	mu      sync.Mutex
	current atomic.Pointer[Session]
	active  atomic.Int32
}

// New creates a Poller. A non-positive interval falls back to the default cadence.
func New(log *slog.Logger, fetcher Fetcher, interval time.Duration, metrics *observability.Metrics) *Poller {
	if interval <= 0 {
		interval = consts.DefaultPollInterval
	}

	return &Poller{
		log:      log.With(slog.String("package", "poller")),
		fetcher:  fetcher,
		interval: interval,
		metrics:  metrics,
	}
}

// Start stops the current session's cadence, waits for it to end and
// starts polling downloadID. The session ends when ctx is done.
func (p *Poller) Start(ctx context.Context, downloadID string, hooks Hooks) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev := p.current.Load(); prev != nil {
		prev.stop()
		p.log.DebugContext(ctx, "previous session stopped",
			slog.String("download_id", prev.id),
			slog.String("state", prev.State().String()))
	}

	sctx, cancel := context.WithCancel(ctx)

	s := &Session{
		id:       downloadID,
		log:      p.log.With(slog.String("download_id", downloadID)),
		fetcher:  p.fetcher,
		hooks:    hooks,
		interval: p.interval,
		metrics:  p.metrics,
		cancel:   cancel,
		cadence:  make(chan struct{}),
		done:     make(chan struct{}),
		started:  time.Now(),
	}

	p.active.Add(1)
	endTimer := p.metrics.SessionTimer()

	go func() {
		defer close(s.done)

		terminal := s.run(sctx)
		s.stopOnce.Do(s.cancel)
		endTimer(s.State().String())
		p.active.Add(-1)
		close(s.cadence)

		if terminal != nil {
			terminal(ctx)
		}
	}()

	p.current.Store(s)
	s.log.InfoContext(ctx, "polling started", slog.Duration("interval", p.interval))

	return s
}

// Stop ends the current session's cadence, if any, and waits for it.
// A terminal hook already running is not interrupted. It is safe to call
// repeatedly.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s := p.current.Load(); s != nil {
		s.stop()
	}
}

// Current returns the most recently started session, nil before the first Start.
func (p *Poller) Current() *Session {
	return p.current.Load()
}

// Active returns the number of sessions whose cadence is still running.
func (p *Poller) Active() int {
	return int(p.active.Load())
}
