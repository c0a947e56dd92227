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
	"fmt"
	"sync"
	"time"

	"github.com/cometbft/cometbft/libs/log"
)

const DefaultInterval = 5 * time.Minute

type (
	// Runner executes one reconciliation.
	Runner interface {
		Run(ctx context.Context) (Report, error)
	}

	// Scheduler runs the reconciliation on a fixed interval. A tick that finds a run in flight,
	// in this process or in another replica holding the run lock, is skipped.
	Scheduler struct {
		runner   Runner
		interval time.Duration
		lock     RunLock
		metrics  *Metrics
		logger   log.Logger

		running   sync.Mutex
		wg        sync.WaitGroup
		subsMu    sync.RWMutex
		onUpdated []func(Report)
	}
)

// NewScheduler creates a scheduler, the lock is optional and only needed with several replicas.
func NewScheduler(runner Runner, interval time.Duration, lock RunLock, metrics *Metrics, logger log.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Scheduler{
		runner:   runner,
		interval: interval,
		lock:     lock,
		metrics:  metrics,
		logger:   logger,
	}
}

// OnUpdated subscribes to completed runs that resynced at least one product.
func (s *Scheduler) OnUpdated(fn func(Report)) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	s.onUpdated = append(s.onUpdated, fn)
}

// Start runs a tick immediately and then on every interval until the context is done.
// It waits for the tick in flight before returning.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("starting reconciliation scheduler", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.wg.Wait()

	s.tickAsync(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping reconciliation scheduler")
			return nil
		case <-ticker.C:
			s.tickAsync(ctx)
		}
	}
}

func (s *Scheduler) tickAsync(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _, _ = s.Tick(ctx)
	}()
}

// Tick runs the reconciliation unless another run holds the lock.
// ran is false for a skipped tick.
func (s *Scheduler) Tick(ctx context.Context) (report Report, ran bool, err error) {
	if !s.running.TryLock() {
		s.logger.Debug("reconciliation in progress, skipping tick")
		s.metrics.runs.WithLabelValues(ResultSkipped).Inc()
		return report, false, nil
	}
	defer s.running.Unlock()

	runCtx := ctx
	if s.lock != nil {
		lockCtx, release, ok, err := s.lock.TryLock(ctx)
		if err != nil {
			s.logger.Error("acquire reconciliation lock", "error", err)
			s.metrics.runs.WithLabelValues(ResultSkipped).Inc()
			return report, false, err
		}

		if !ok {
			s.logger.Debug("reconciliation runs on another replica, skipping tick")
			s.metrics.runs.WithLabelValues(ResultSkipped).Inc()
			return report, false, nil
		}

		defer func() {
			// release even if the run was interrupted by the shutdown
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := release(releaseCtx); err != nil {
				s.logger.Error("release reconciliation lock", "error", err)
			}
		}()

		runCtx = lockCtx
	}

	start := time.Now()
	report, err = s.runner.Run(runCtx)
	if err != nil {
		if cause := context.Cause(runCtx); errors.Is(cause, ErrRunLockLost) {
			err = fmt.Errorf("%w: %w", err, cause)
		}
		s.logger.Error("reconciliation failed", "error", err)
		s.metrics.runs.WithLabelValues(ResultError).Inc()
		return report, true, err
	}

	s.metrics.runs.WithLabelValues(ResultSuccess).Inc()
	s.metrics.runDuration.Observe(time.Since(start).Seconds())
	s.logger.Info(
		"reconciliation finished",
		"leaves", report.LeavesCommitted,
		"products", len(report.Products),
		"chain_writes", report.ChainWrites,
		"already_synced", report.AlreadySynced,
		"failed", report.Failed,
	)

	if len(report.Products) > 0 {
		s.notify(report)
	}

	return report, true, nil
}

func (s *Scheduler) notify(report Report) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	for _, fn := range s.onUpdated {
		fn(report)
	}
}
