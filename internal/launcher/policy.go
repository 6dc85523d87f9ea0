package launcher

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/nvandessel/simsweep/internal/logging"
	"golang.org/x/sync/errgroup"
)

// StartFunc starts one job. It reports its own failures; a non-nil error
// tells the policy there is no process to manage.
type StartFunc func() (Process, error)

// Policy decides how started processes are managed.
type Policy interface {
	// Submit starts a job, possibly blocking until the policy admits it.
	// It returns an error only when the job could not be submitted at all.
	Submit(ctx context.Context, start StartFunc) error

	// Wait blocks until every submitted job is done with, as the policy
	// defines it, or until ctx is done.
	Wait(ctx context.Context) error
}

// Detached starts each process and forgets it.
type Detached struct {
	Logger *slog.Logger
}

// Submit starts the job and releases the process immediately.
func (d Detached) Submit(ctx context.Context, start StartFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := start()
	if err != nil {
		return nil
	}
	if err := p.Release(); err != nil && d.Logger != nil {
		d.Logger.Debug("failed to release simulator process", "pid", p.PID(), "error", err)
	}
	return nil
}

// Wait returns immediately.
func (Detached) Wait(context.Context) error { return nil }

// Bounded keeps at most limit simulator processes alive. Submit blocks while
// the limit is reached and Wait blocks until every process has exited.
// Cancelling the context ends both; processes already running are left
// alone.
type Bounded struct {
	group  errgroup.Group
	slots  chan struct{} // nil when unlimited
	live   atomic.Int32
	logger *slog.Logger
}

// NewBounded returns a Bounded policy admitting limit concurrent processes.
// A non-positive limit means no limit.
func NewBounded(limit int, logger *slog.Logger) *Bounded {
	if logger == nil {
		logger = logging.Discard()
	}
	b := &Bounded{logger: logger}
	if limit > 0 {
		b.slots = make(chan struct{}, limit)
	}
	return b
}

// Submit waits for a free slot and starts the job in it.
func (b *Bounded) Submit(ctx context.Context, start StartFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.slots != nil {
		select {
		case b.slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.group.Go(func() error {
		defer b.freeSlot()
		if ctx.Err() != nil {
			return nil
		}
		p, err := start()
		if err != nil {
			return nil
		}
		b.live.Add(1)
		defer b.live.Add(-1)
		if err := p.Wait(); err != nil {
			b.logger.Debug("simulator exited with error", "pid", p.PID(), "error", err)
		} else {
			b.logger.Debug("simulator exited", "pid", p.PID())
		}
		return nil
	})
	return nil
}

func (b *Bounded) freeSlot() {
	if b.slots != nil {
		<-b.slots
	}
}

// Wait blocks until every started process has exited or ctx is done. In the
// latter case the remaining simulators keep running in their own process
// groups and are still reaped when they exit.
func (b *Bounded) Wait(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- b.group.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		b.logger.Warn("stopped waiting for simulators", "running", b.live.Load())
		return ctx.Err()
	}
}
