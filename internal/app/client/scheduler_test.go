package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	// Arrange
	s := NewScheduler(nil, testLogger())
	var pushes, syncs atomic.Int32
	s.Add("push", 5*time.Millisecond, func(context.Context) error {
		pushes.Add(1)
		return nil
	})
	s.Add("sync", time.Hour, func(context.Context) error {
		syncs.Add(1)
		return errors.New("offline")
	})
	ctx, cancel := context.WithCancel(context.Background())

	// Act
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	require.Eventually(t, func() bool { return pushes.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	// Assert
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, int32(1), syncs.Load())
}

func TestScheduler_TriggerIsSingleFlight(t *testing.T) {
	s := NewScheduler(nil, testLogger())
	started := make(chan struct{})
	release := make(chan struct{})
	s.Add("reconcile", time.Hour, func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- s.Trigger(ctx, "reconcile") }()
	<-started

	assert.ErrorIs(t, s.Trigger(ctx, "reconcile"), ErrJobRunning)
	close(release)
	assert.NoError(t, <-done)
}

func TestScheduler_TriggerUnknown(t *testing.T) {
	s := NewScheduler(nil, testLogger())

	err := s.Trigger(context.Background(), "nope")

	assert.ErrorIs(t, err, ErrUnknownJob)
}
