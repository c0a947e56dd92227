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
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultRunLockKey = "purchase-oracle:reconcile"
	DefaultRunLockTTL = 30 * time.Minute
)

// ErrRunLockLost is the cause of the run context cancellation when the run lock could not be extended.
var ErrRunLockLost = errors.New("run lock lost")

const runLockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const runLockExtendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

type (
	// RunLock is held by the replica that runs a reconciliation tick.
	RunLock interface {
		// TryLock acquires the lock without waiting. The run must use the returned context, it is
		// canceled once the lock is lost. The returned release function must be called once the run is finished.
		TryLock(ctx context.Context) (runCtx context.Context, release func(context.Context) error, ok bool, err error)
	}

	// RedisRunLock is a run lock shared by all replicas using the same redis.
	// The holder extends the lock every third of the TTL while the run is in flight,
	// the lock expires after the TTL in case the holder dies. It is released only by its holder.
	RedisRunLock struct {
		client  redis.UniversalClient
		release *redis.Script
		extend  *redis.Script
		key     string
		ttl     time.Duration
	}
)

func NewRedisRunLock(client redis.UniversalClient, key string, ttl time.Duration) *RedisRunLock {
	if key == "" {
		key = DefaultRunLockKey
	}
	if ttl <= 0 {
		ttl = DefaultRunLockTTL
	}

	return &RedisRunLock{
		client:  client,
		release: redis.NewScript(runLockReleaseScript),
		extend:  redis.NewScript(runLockExtendScript),
		key:     key,
		ttl:     ttl,
	}
}

func (l *RedisRunLock) TryLock(ctx context.Context) (context.Context, func(context.Context) error, bool, error) {
	if l.client == nil {
		return nil, nil, false, errors.New("redis client not configured")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, nil, false, err
	}

	if !ok {
		return nil, nil, false, nil
	}

	runCtx, stop := keepAlive(ctx, l.ttl/3, func(ctx context.Context) (bool, error) {
		res, err := l.extend.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int64()
		return res == 1, err
	})

	return runCtx, func(ctx context.Context) error {
		stop()
		return l.release.Run(ctx, l.client, []string{l.key}, token).Err()
	}, true, nil
}

// keepAlive calls extend every interval until stop is called. The returned context is canceled
// with ErrRunLockLost as soon as an extension fails or reports the lock as no longer held.
// stop waits for the extension loop to exit.
func keepAlive(
	ctx context.Context,
	interval time.Duration,
	extend func(context.Context) (bool, error),
) (context.Context, func()) {
	runCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-runCtx.Done():
				return
			case <-ticker.C:
				held, err := extend(runCtx)
				if err != nil {
					cancel(errors.Join(ErrRunLockLost, err))
					return
				}
				if !held {
					cancel(ErrRunLockLost)
					return
				}
			}
		}
	}()

	var once sync.Once
	return runCtx, func() {
		once.Do(func() { close(done) })
		<-stopped
		cancel(nil)
	}
}
