package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ytpanel/internal/entity"
	"ytpanel/internal/observability"
	"ytpanel/pkg/calc"
)

// State is the lifecycle state of a Session.
type State int32

const (
	// StatePolling means the cadence is running.
	StatePolling State = iota
	// StateCompleted means the backend reported completion.
	StateCompleted
	// StateFailed means the backend reported a job error.
	StateFailed
	// StateAbandoned means a progress query failed and tracking was given up.
	StateAbandoned
	// StateStopped means the session was torn down from outside.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateAbandoned:
		return "abandoned"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the session has left StatePolling.
func (s State) IsTerminal() bool {
	return s != StatePolling
}

// Session polls a single job.
type Session struct {
	id       string
	log      *slog.Logger
	fetcher  Fetcher
	hooks    Hooks
	interval time.Duration
	metrics  *observability.Metrics
	started  time.Time

	state    atomic.Int32
	progress atomic.Int32
	polls    atomic.Int64

	cancel   context.CancelFunc
	cadence  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// ID returns the tracked download id.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State { return State(s.state.Load()) }

// Progress returns the last reported percentage.
func (s *Session) Progress() int { return int(s.progress.Load()) }

// Polls returns how many progress queries were answered.
func (s *Session) Polls() int64 { return s.polls.Load() }

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time { return s.started }

// Done is closed once the session goroutine has exited, terminal hook included.
func (s *Session) Done() <-chan struct{} { return s.done }

// stop ends the cadence and waits for it. A terminal hook that already
// started is left running on the context given to Poller.Start.
func (s *Session) stop() {
	s.stopOnce.Do(s.cancel)
	<-s.cadence

	if s.State() == StateStopped {
		<-s.done
	}
}

// transition leaves StatePolling. Only the first caller wins.
func (s *Session) transition(to State) bool {
	return s.state.CompareAndSwap(int32(StatePolling), int32(to))
}

// run drives the cadence until a terminal state and returns the hook for it.
// The hook is nil when the session was stopped.
func (s *Session) run(ctx context.Context) func(context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.transition(StateStopped) {
				s.log.InfoContext(ctx, "polling stopped", slog.Any("cause", context.Cause(ctx)))
			}

			return nil
		case <-ticker.C:
			if over, terminal := s.poll(ctx); over {
				return terminal
			}
		}
	}
}

// poll performs one query and reports whether the session is over, along
// with the terminal hook to run, if any.
func (s *Session) poll(ctx context.Context) (bool, func(context.Context)) {
	job, err := s.fetcher.Progress(ctx, s.id)

	if ctx.Err() != nil {
		// stopped while the query was in flight, results are discarded
		s.transition(StateStopped)

		return true, nil
	}

	if err != nil {
		s.metrics.RecordPoll("transport_error")

		if !s.transition(StateAbandoned) {
			return true, nil
		}

		s.log.ErrorContext(ctx, "progress query failed, polling abandoned", slog.Any("error", err))

		return true, func(hctx context.Context) {
			if s.hooks.OnAbandoned != nil {
				s.hooks.OnAbandoned(hctx, s.id, err)
			}
		}
	}

	s.polls.Add(1)
	s.metrics.RecordPoll(string(job.Status))

	switch job.Status {
	case entity.JobStatusDownloading:
		percent := calc.Percent(job.Progress)
		s.progress.Store(int32(percent))

		if s.hooks.OnProgress != nil {
			s.hooks.OnProgress(ctx, s.id, percent)
		}

		return false, nil
	case entity.JobStatusCompleted:
		if !s.transition(StateCompleted) {
			return true, nil
		}

		s.progress.Store(100)
		s.log.InfoContext(ctx, "download completed", slog.Any("job", job))

		return true, func(hctx context.Context) {
			if s.hooks.OnCompleted != nil {
				s.hooks.OnCompleted(hctx, *job)
			}
		}
	case entity.JobStatusError:
		if !s.transition(StateFailed) {
			return true, nil
		}

		s.log.WarnContext(ctx, "download failed", slog.Any("job", job))

		return true, func(hctx context.Context) {
			if s.hooks.OnFailed != nil {
				s.hooks.OnFailed(hctx, *job)
			}
		}
	default:
		s.log.DebugContext(ctx, "ignoring progress status", slog.String("status", string(job.Status)))

		return false, nil
	}
}
