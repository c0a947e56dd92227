/*
 * Copyright 2024 Galactica Network
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package oracle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type (
	blockingRunner struct {
		started chan struct{}
		release chan struct{}
		report  Report
		err     error
		mu      sync.Mutex
		runs    int
	}

	fakeRunLock struct {
		held     bool
		err      error
		released int
		lose     context.CancelCauseFunc
	}

	// ctxRunner blocks until its context is done.
	ctxRunner struct {
		started chan struct{}
	}
)

func (r *blockingRunner) Run(context.Context) (Report, error) {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()

	if r.started != nil {
		r.started <- struct{}{}
		<-r.release
	}

	return r.report, r.err
}

func (r *blockingRunner) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.runs
}

func (r *ctxRunner) Run(ctx context.Context) (Report, error) {
	close(r.started)
	<-ctx.Done()

	return Report{}, ctx.Err()
}

func (l *fakeRunLock) TryLock(ctx context.Context) (context.Context, func(context.Context) error, bool, error) {
	if l.err != nil {
		return nil, nil, false, l.err
	}

	if l.held {
		return nil, nil, false, nil
	}

	l.held = true
	runCtx, cancel := context.WithCancelCause(ctx)
	l.lose = cancel
	return runCtx, func(context.Context) error {
		cancel(nil)
		l.held = false
		l.released++
		return nil
	}, true, nil
}

func newTestScheduler(runner Runner, lock RunLock) (*Scheduler, *Metrics) {
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewScheduler(runner, time.Hour, lock, metrics, log.NewNopLogger()), metrics
}

func TestScheduler_skipsTickWhileRunning(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	scheduler, metrics := newTestScheduler(runner, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ran, err := scheduler.Tick(context.Background())
		require.NoError(t, err)
		require.True(t, ran)
	}()

	<-runner.started
	_, ran, err := scheduler.Tick(context.Background())
	require.NoError(t, err)
	require.False(t, ran)

	close(runner.release)
	<-done

	require.Equal(t, 1, runner.runCount())
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues(ResultSkipped)))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues(ResultSuccess)))
}

func TestScheduler_notifiesSubscribers(t *testing.T) {
	runner := &blockingRunner{report: Report{Products: []common.Hash{common.HexToHash("0x01")}, ChainWrites: 1}}
	scheduler, _ := newTestScheduler(runner, nil)

	var reports []Report
	scheduler.OnUpdated(func(report Report) {
		reports = append(reports, report)
	})

	_, ran, err := scheduler.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
	require.Len(t, reports, 1)
	require.Equal(t, 1, reports[0].ChainWrites)

	// a run without products is not an update
	runner.report = Report{}
	_, _, err = scheduler.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 1)
}

func TestScheduler_updateMetrics(t *testing.T) {
	runner := &blockingRunner{report: Report{Products: []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")}}}
	scheduler, metrics := newTestScheduler(runner, nil)
	scheduler.OnUpdated(metrics.ObserveUpdate)

	_, ran, err := scheduler.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.productsUpdated))
	require.InDelta(t, float64(time.Now().Unix()), testutil.ToFloat64(metrics.lastUpdate), 60)

	// runs without resynced products are not notified
	runner.report = Report{LeavesCommitted: 1}
	_, _, err = scheduler.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.productsUpdated))
}

func TestScheduler_runError(t *testing.T) {
	runner := &blockingRunner{err: errors.New("database is down")}
	scheduler, metrics := newTestScheduler(runner, nil)

	notified := false
	scheduler.OnUpdated(func(Report) { notified = true })

	_, ran, err := scheduler.Tick(context.Background())
	require.ErrorIs(t, err, runner.err)
	require.True(t, ran)
	require.False(t, notified)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues(ResultError)))
}

func TestScheduler_distributedLock(t *testing.T) {
	runner := &blockingRunner{}
	lock := &fakeRunLock{}
	scheduler, _ := newTestScheduler(runner, lock)

	_, ran, err := scheduler.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, 1, lock.released)

	// another replica holds the lock
	lock.held = true
	_, ran, err = scheduler.Tick(context.Background())
	require.NoError(t, err)
	require.False(t, ran)

	lock.err = errors.New("connection refused")
	_, ran, err = scheduler.Tick(context.Background())
	require.ErrorIs(t, err, lock.err)
	require.False(t, ran)

	require.Equal(t, 1, runner.runCount())
}

func TestScheduler_lostLockCancelsRun(t *testing.T) {
	runner := &ctxRunner{started: make(chan struct{})}
	lock := &fakeRunLock{}
	scheduler, metrics := newTestScheduler(runner, lock)

	done := make(chan error)
	go func() {
		_, _, err := scheduler.Tick(context.Background())
		done <- err
	}()

	<-runner.started
	lock.lose(ErrRunLockLost)

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		require.ErrorIs(t, err, ErrRunLockLost)
	case <-time.After(time.Second):
		t.Fatal("run not canceled after losing the lock")
	}

	require.Equal(t, 1, lock.released)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues(ResultError)))
}

func TestKeepAlive(t *testing.T) {
	t.Run("extends until stopped", func(t *testing.T) {
		var extensions atomic.Int32
		ctx, stop := keepAlive(context.Background(), 5*time.Millisecond, func(context.Context) (bool, error) {
			extensions.Add(1)
			return true, nil
		})

		require.Eventually(t, func() bool { return extensions.Load() >= 3 }, time.Second, time.Millisecond)
		require.NoError(t, ctx.Err())

		stop()
		stop()
		calls := extensions.Load()
		time.Sleep(20 * time.Millisecond)
		require.Equal(t, calls, extensions.Load())
	})

	t.Run("lock taken over", func(t *testing.T) {
		ctx, stop := keepAlive(context.Background(), 5*time.Millisecond, func(context.Context) (bool, error) {
			return false, nil
		})
		defer stop()

		<-ctx.Done()
		require.ErrorIs(t, context.Cause(ctx), ErrRunLockLost)
	})

	t.Run("extension error", func(t *testing.T) {
		redisErr := errors.New("connection reset")
		ctx, stop := keepAlive(context.Background(), 5*time.Millisecond, func(context.Context) (bool, error) {
			return false, redisErr
		})
		defer stop()

		<-ctx.Done()
		require.ErrorIs(t, context.Cause(ctx), ErrRunLockLost)
		require.ErrorIs(t, context.Cause(ctx), redisErr)
	})
}

func TestScheduler_Start(t *testing.T) {
	runner := &blockingRunner{}
	scheduler, _ := newTestScheduler(runner, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- scheduler.Start(ctx)
	}()

	require.Eventually(t, func() bool { return runner.runCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRedisRunLock_unavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer func() { _ = client.Close() }()

	runner := &blockingRunner{}
	scheduler, _ := newTestScheduler(runner, NewRedisRunLock(client, "", 0))

	_, ran, err := scheduler.Tick(context.Background())
	require.Error(t, err)
	require.False(t, ran)
	require.Zero(t, runner.runCount())
}
