package utils

import (
	"context"
	"testing"

	"go.uber.org/atomic"
	"go.viam.com/test"
)

func TestStoppableWorkers(t *testing.T) {
	var stopped atomic.Int32
	started := make(chan struct{}, 2)
	worker := func(ctx context.Context) {
		started <- struct{}{}
		<-ctx.Done()
		stopped.Inc()
	}

	sw := NewStoppableWorkers(worker)
	sw.AddWorkers(worker)
	<-started
	<-started
	test.That(t, sw.Context().Err(), test.ShouldBeNil)

	sw.Stop()
	test.That(t, stopped.Load(), test.ShouldEqual, 2)
	test.That(t, sw.Context().Err(), test.ShouldNotBeNil)

	// workers added after stopping never run
	sw.AddWorkers(worker)
	test.That(t, stopped.Load(), test.ShouldEqual, 2)
	sw.Stop()
}

func TestStoppableWorkersParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	sw := NewStoppableWorkersWithContext(ctx, func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	})
	cancel()
	<-done
	sw.Stop()
}
