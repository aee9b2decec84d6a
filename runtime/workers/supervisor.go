package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"team-chat/contract"
	"team-chat/errors"
)

const defaultRestartDelay = 200 * time.Millisecond

// Supervisor runs each worker in its own goroutine and restarts it after
// restartDelay when it panics or fails. A worker returning nil is not restarted.
// Run returns once every worker is gone, after Stop or when its context ends.
type Supervisor struct {
	log          *slog.Logger
	restartDelay time.Duration
	onRestart    func(worker string)

	mu      sync.Mutex
	workers []contract.Worker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSupervisor falls back to a 200ms restart delay when restartDelay is not positive.
func NewSupervisor(log *slog.Logger, restartDelay time.Duration) *Supervisor {
	if restartDelay <= 0 {
		restartDelay = defaultRestartDelay
	}
	return &Supervisor{log: log, restartDelay: restartDelay, onRestart: func(string) {}}
}

// OnRestart registers a callback run before every restart.
func (s *Supervisor) OnRestart(fn func(worker string)) *Supervisor {
	s.onRestart = fn
	return s
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, worker...)
	return s
}

func (s *Supervisor) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	workers := append([]contract.Worker(nil), s.workers...)
	s.mu.Unlock()

	for _, worker := range workers {
		s.Start(ctx, worker)
	}
	s.wg.Wait()
}

// Start supervises one more worker on ctx.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.supervise(ctx, contract.NameOf(worker), worker)
	}()
}

func (s *Supervisor) supervise(ctx context.Context, name string, worker contract.Worker) {
	for {
		err := runOnce(ctx, worker)
		switch {
		case ctx.Err() != nil:
			s.log.Info("Worker stopped", "worker", name)
			return
		case err == nil:
			s.log.Info("Worker finished", "worker", name)
			return
		}

		s.log.Warn("Worker crashed, restarting", "worker", name, "delay", s.restartDelay, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.restartDelay):
			s.onRestart(name)
		}
	}
}

// runOnce turns a panic into ErrWorkerPanic.
func runOnce(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}

// Stop cancels every worker, Run returns once they are done.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}
