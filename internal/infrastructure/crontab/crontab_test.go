package crontab

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakePurger struct {
	PurgeFinishedFunc func(ctx context.Context, retention time.Duration) (int64, error)
	calls             atomic.Int32
}

func (f *fakePurger) PurgeFinished(ctx context.Context, retention time.Duration) (int64, error) {
	f.calls.Add(1)
	return f.PurgeFinishedFunc(ctx, retention)
}

type fakeSweeper struct {
	SweepStagingFunc func(maxAge time.Duration, keep func(string) bool) (int, error)
	calls            atomic.Int32
}

func (f *fakeSweeper) SweepStaging(maxAge time.Duration, keep func(string) bool) (int, error) {
	f.calls.Add(1)
	return f.SweepStagingFunc(maxAge, keep)
}

func TestRunSweepsOnStartAndStopsWithContext(t *testing.T) {
	var gotRetention, gotAge time.Duration
	var keptLive bool
	purger := &fakePurger{PurgeFinishedFunc: func(ctx context.Context, retention time.Duration) (int64, error) {
		gotRetention = retention
		return 3, nil
	}}
	sweeper := &fakeSweeper{SweepStagingFunc: func(maxAge time.Duration, keep func(string) bool) (int, error) {
		gotAge = maxAge
		keptLive = keep("vid_live")
		return 1, nil
	}}

	c := NewCrontab(purger, sweeper, Options{
		JobRetention:  7 * 24 * time.Hour,
		StagingMaxAge: 6 * time.Hour,
		InFlight:      func(id string) bool { return id == "vid_live" },
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	assert.Eventually(t, func() bool { return purger.calls.Load() == 1 && sweeper.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 7*24*time.Hour, gotRetention)
	assert.Equal(t, 6*time.Hour, gotAge)
	assert.True(t, keptLive)
}

func TestDisabledWindowsSkipWork(t *testing.T) {
	purger := &fakePurger{PurgeFinishedFunc: func(context.Context, time.Duration) (int64, error) { return 0, nil }}
	sweeper := &fakeSweeper{SweepStagingFunc: func(time.Duration, func(string) bool) (int, error) { return 0, nil }}
	c := NewCrontab(purger, sweeper, Options{}, zerolog.Nop())

	c.PurgeJobs(context.Background())
	c.SweepStaging()
	assert.Zero(t, purger.calls.Load())
	assert.Zero(t, sweeper.calls.Load())
}

func TestErrorsAreLoggedNotReturned(t *testing.T) {
	purger := &fakePurger{PurgeFinishedFunc: func(context.Context, time.Duration) (int64, error) {
		return 0, errors.New("connection refused")
	}}
	c := NewCrontab(purger, nil, Options{JobRetention: time.Hour}, zerolog.Nop())
	assert.NotPanics(t, func() { c.PurgeJobs(context.Background()) })
	assert.Equal(t, int32(1), purger.calls.Load())
}
