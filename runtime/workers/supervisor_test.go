package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"team-chat/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func runSupervisor(sup *Supervisor, ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Run(ctx)
	}()
	return done
}

func TestSupervisor_Restarts_Panicking_Worker(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	worker := mocks.NewMockWorker(ctrl)

	// Given a worker panicking twice then finishing
	var runs atomic.Int32
	worker.EXPECT().Run(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		if runs.Add(1) <= 2 {
			panic("corrupted frame")
		}
		return nil
	}).Times(3)

	var restarts atomic.Int32
	var restarted atomic.Value
	sup := NewSupervisor(slog.New(slog.DiscardHandler), 10*time.Millisecond).
		OnRestart(func(name string) {
			restarted.Store(name)
			restarts.Add(1)
		})
	sup.Add(worker)

	// When the supervisor runs
	done := runSupervisor(sup, context.Background())

	// Then it returns once the worker is done, after two restarts
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("supervisor should return once the worker finished")
	}
	req.EqualValues(3, runs.Load())
	req.EqualValues(2, restarts.Load())
	req.Equal("MockWorker", restarted.Load())
}

func TestSupervisor_Restarts_Failing_Worker(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	worker := mocks.NewMockWorker(ctrl)

	// Given a worker always failing
	var runs atomic.Int32
	worker.EXPECT().Run(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		runs.Add(1)
		return fmt.Errorf("disk full")
	}).AnyTimes()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	sup := NewSupervisor(slog.New(slog.DiscardHandler), 20*time.Millisecond)
	sup.Add(worker)

	// When the supervisor runs until the context ends
	<-runSupervisor(sup, ctx)

	// Then the worker was started again and again
	req.GreaterOrEqual(runs.Load(), int32(2))
}

func TestSupervisor_Does_Not_Restart_Finished_Worker(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	worker := mocks.NewMockWorker(ctrl)

	// Given a worker with nothing left to do
	worker.EXPECT().Run(gomock.Any()).Return(nil).Times(1)

	var restarts atomic.Int32
	sup := NewSupervisor(slog.New(slog.DiscardHandler), 0).
		OnRestart(func(string) { restarts.Add(1) })
	sup.Add(worker)

	// Then Run returns without any restart
	select {
	case <-runSupervisor(sup, context.Background()):
	case <-time.After(500 * time.Millisecond):
		req.Fail("supervisor should return after the worker finished")
	}
	req.Zero(restarts.Load())
}

func TestSupervisor_Stop_Cancels_Workers(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	first, second := mocks.NewMockWorker(ctrl), mocks.NewMockWorker(ctrl)

	// Given two workers blocked until cancelled
	started := make(chan struct{}, 2)
	block := func(ctx context.Context) error {
		started <- struct{}{}
		<-ctx.Done()
		return nil
	}
	first.EXPECT().Run(gomock.Any()).DoAndReturn(block).Times(1)
	second.EXPECT().Run(gomock.Any()).DoAndReturn(block).Times(1)

	sup := NewSupervisor(slog.New(slog.DiscardHandler), 0)
	sup.Add(first, second)
	done := runSupervisor(sup, context.Background())
	<-started
	<-started

	// When the supervisor is stopped
	sup.Stop()

	// Then both workers return and Run with them
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		req.Fail("supervisor should have stopped")
	}
}
