package run

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	backoffBase   = 100 * time.Millisecond
	backoffCap    = 5 * time.Second
	backoffJitter = 0.2
)

// Supervisor owns consumer task handles. Non-critical tasks are
// restarted with exponential backoff; a critical task failure is
// reported once and ends the run.
type Supervisor struct {
	wg      sync.WaitGroup
	onFatal func(task string, err error)

	mu       sync.Mutex
	fatalHit bool
}

// NewSupervisor creates a supervisor reporting critical failures to
// onFatal.
func NewSupervisor(onFatal func(task string, err error)) *Supervisor {
	if onFatal == nil {
		onFatal = func(string, error) {}
	}
	return &Supervisor{onFatal: onFatal}
}

// Go runs a task under supervision. Children observe shutdown only via
// the context; they never reference the supervisor.
func (s *Supervisor) Go(ctx context.Context, name string, critical bool, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := backoffBase
		for {
			err := s.runOnce(ctx, name, fn)
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				return
			}
			if critical {
				s.reportFatal(name, err)
				return
			}
			logs.Warnf("task %s failed, restarting in %s, err: %+v", name, backoff, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(jittered(backoff)):
			}
			backoff *= 2
			if backoff > backoffCap {
				backoff = backoffCap
			}
		}
	}()
}

func (s *Supervisor) runOnce(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("task %s panicked: %+v", name, r)
		}
	}()
	return fn(ctx)
}

func (s *Supervisor) reportFatal(task string, err error) {
	s.mu.Lock()
	first := !s.fatalHit
	s.fatalHit = true
	s.mu.Unlock()
	if first {
		s.onFatal(task, err)
	}
}

// Wait blocks until every supervised task has returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func jittered(d time.Duration) time.Duration {
	span := float64(d) * backoffJitter
	offset := (rand.Float64()*2 - 1) * span
	return time.Duration(float64(d) + offset)
}
