// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/rensai/internal/platform/apperr"
	"github.com/taibuivan/rensai/internal/platform/constants"
)

// dequeuePollTimeout bounds one blocking pop so workers can observe
// shutdown between polls.
const dequeuePollTimeout = 2 * time.Second

// redisQueue implements [Queue] on Redis with Postgres-backed dead letters.
//
// # Key Layout
//
//   - sync:ready        list of idempotency keys ready for pickup
//   - sync:delayed      zset of keys scored by their ready instant
//   - sync:processing   zset of leased keys scored by lease expiry
//   - sync:job:<key>    JSON payload, doubling as the idempotency marker
//   - sync:fence:<id>   monotonic fence counter per sync target
type redisQueue struct {
	client  *redis.Client
	letters DeadLetterStore
	logger  *slog.Logger
}

// NewRedisQueue constructs the Redis backed job queue.
func NewRedisQueue(client *redis.Client, letters DeadLetterStore, logger *slog.Logger) Queue {
	return &redisQueue{
		client:  client,
		letters: letters,
		logger:  logger,
	}
}

func jobKey(key string) string { return constants.RedisPrefixJob + key }

func fenceKey(id string) string { return constants.RedisPrefixFence + id }

func scoreAt(t time.Time) float64 { return float64(t.UnixMilli()) }

/*
Enqueue inserts a job for immediate pickup.

Description: The payload SET uses NX, making the payload key the atomic
idempotency marker: exactly one of any number of concurrent enqueues for
the same key wins, and only the winner pushes onto the ready list. Losers
get [ErrDuplicateJob], which callers treat as success.
*/
func (q *redisQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return apperr.Internal(fmt.Errorf("queue: marshal job: %w", err))
	}

	set, err := q.client.SetNX(ctx, jobKey(job.Key), payload, 0).Result()
	if err != nil {
		return apperr.Transient("Queue enqueue failed", err)
	}
	if !set {
		return ErrDuplicateJob
	}

	if err := q.client.LPush(ctx, constants.RedisKeyReady, job.Key).Err(); err != nil {
		return apperr.Transient("Queue push failed", err)
	}

	return nil
}

/*
Dequeue blocks up to the poll timeout for the next ready job.

Description: Leasing a job increments the target's fence counter and
adopts the new value as this execution's token. The key also enters the
processing set scored by lease expiry; missing heartbeats past that score
hands the job to the reaper.
*/
func (q *redisQueue) Dequeue(ctx context.Context) (*Lease, error) {
	result, err := q.client.BRPop(ctx, dequeuePollTimeout, constants.RedisKeyReady).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, apperr.Transient("Queue pop failed", err)
	}
	key := result[1]

	payload, err := q.client.Get(ctx, jobKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Marker vanished between push and pop (completed by a reaped
			// duplicate). Nothing to run.
			return nil, nil
		}
		return nil, apperr.Transient("Queue payload read failed", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, apperr.Internal(fmt.Errorf("queue: corrupt job payload for %s: %w", key, err))
	}

	token, err := q.client.Incr(ctx, fenceKey(job.SeriesSourceID)).Result()
	if err != nil {
		return nil, apperr.Transient("Fence token issue failed", err)
	}

	expiry := time.Now().Add(constants.JobLeaseTTL)
	err = q.client.ZAdd(ctx, constants.RedisKeyProcessing, redis.Z{
		Score:  scoreAt(expiry),
		Member: key,
	}).Err()
	if err != nil {
		return nil, apperr.Transient("Lease registration failed", err)
	}

	return &Lease{Job: job, FenceToken: token}, nil
}

/*
Heartbeat extends the lease of a running job.
*/
func (q *redisQueue) Heartbeat(ctx context.Context, lease *Lease) error {
	expiry := time.Now().Add(constants.JobLeaseTTL)
	err := q.client.ZAddXX(ctx, constants.RedisKeyProcessing, redis.Z{
		Score:  scoreAt(expiry),
		Member: lease.Job.Key,
	}).Err()
	if err != nil {
		return apperr.Transient("Lease heartbeat failed", err)
	}

	return nil
}

/*
ValidateFence confirms the lease's fence token is still current.

Description: The fence counter only moves forward, so a token below the
current value proves a newer execution was issued for this target. The
stale holder must abandon its transaction; its error is fatal, not
retryable, because retrying would race the successor again.
*/
func (q *redisQueue) ValidateFence(ctx context.Context, lease *Lease) error {
	current, err := q.client.Get(ctx, fenceKey(lease.Job.SeriesSourceID)).Result()
	if err != nil {
		return apperr.Transient("Fence read failed", err)
	}

	token, err := strconv.ParseInt(current, 10, 64)
	if err != nil {
		return apperr.Internal(fmt.Errorf("queue: corrupt fence counter for %s: %w", lease.Job.SeriesSourceID, err))
	}

	if token != lease.FenceToken {
		return fmt.Errorf("queue: %s holds fence %d, current is %d: %w",
			lease.Job.Key, lease.FenceToken, token, ErrFenceSuperseded)
	}

	return nil
}

/*
Complete removes a finished job and its idempotency marker.
*/
func (q *redisQueue) Complete(ctx context.Context, lease *Lease) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, constants.RedisKeyProcessing, lease.Job.Key)
	pipe.Del(ctx, jobKey(lease.Job.Key))
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.Transient("Queue completion failed", err)
	}

	return nil
}

/*
Retry re-schedules a failed job after the given delay, incrementing its
attempt counter.
*/
func (q *redisQueue) Retry(ctx context.Context, lease *Lease, delay time.Duration) error {
	job := lease.Job
	job.Attempt++
	return q.reschedule(ctx, lease, job, delay)
}

/*
Postpone re-schedules a job without counting an attempt.
*/
func (q *redisQueue) Postpone(ctx context.Context, lease *Lease, delay time.Duration) error {
	return q.reschedule(ctx, lease, lease.Job, delay)
}

// reschedule rewrites the payload and moves the key from processing to the
// delayed set.
func (q *redisQueue) reschedule(ctx context.Context, lease *Lease, job Job, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return apperr.Internal(fmt.Errorf("queue: marshal job: %w", err))
	}

	readyAt := time.Now().Add(delay)
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, constants.RedisKeyProcessing, job.Key)
	pipe.Set(ctx, jobKey(job.Key), payload, 0)
	pipe.ZAdd(ctx, constants.RedisKeyDelayed, redis.Z{Score: scoreAt(readyAt), Member: job.Key})
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.Transient("Queue reschedule failed", err)
	}

	return nil
}

/*
DeadLetter persists the job to Postgres and removes it from the queue.

Description: The Postgres insert happens first. If the Redis cleanup then
fails, the reaper re-issues the job and a second dead-letter row appears;
duplicate dead letters are an acceptable cost for never losing one.
*/
func (q *redisQueue) DeadLetter(ctx context.Context, lease *Lease, cause error) error {
	if err := q.letters.Record(ctx, newDeadLetter(lease, cause)); err != nil {
		return err
	}

	q.logger.Error("job_dead_lettered",
		slog.String("key", lease.Job.Key),
		slog.Int("attempts", lease.Job.Attempt+1),
		slog.String("class", string(apperr.Classify(cause))),
		slog.String("error", cause.Error()),
	)

	return q.Complete(ctx, lease)
}

/*
Outstanding reports which idempotency keys currently have a queued or
running job.
*/
func (q *redisQueue) Outstanding(ctx context.Context, keys []string) (map[string]bool, error) {
	if len(keys) == 0 {
		return map[string]bool{}, nil
	}

	pipe := q.client.Pipeline()
	commands := make([]*redis.IntCmd, len(keys))
	for i, key := range keys {
		commands[i] = pipe.Exists(ctx, jobKey(key))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, apperr.Transient("Queue outstanding check failed", err)
	}

	outstanding := make(map[string]bool, len(keys))
	for i, key := range keys {
		outstanding[key] = commands[i].Val() > 0
	}

	return outstanding, nil
}

/*
Reap promotes due delayed jobs and re-issues expired leases.

Description: Both sweeps move keys back onto the ready list. Re-issued
jobs keep their payload and attempt count; the next dequeue mints a higher
fence token, which is what finally defuses the stalled worker.
*/
func (q *redisQueue) Reap(ctx context.Context) (int, error) {
	now := strconv.FormatFloat(scoreAt(time.Now()), 'f', 0, 64)

	moved, err := q.sweep(ctx, constants.RedisKeyDelayed, now)
	if err != nil {
		return moved, err
	}

	expired, err := q.sweep(ctx, constants.RedisKeyProcessing, now)
	if expired > 0 {
		q.logger.Warn("expired_leases_reissued", slog.Int("count", expired))
	}

	return moved + expired, err
}

// sweep moves all members of a zset scored at or before cutoff onto the
// ready list.
func (q *redisQueue) sweep(ctx context.Context, zsetKey, cutoff string) (int, error) {
	due, err := q.client.ZRangeByScore(ctx, zsetKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: cutoff,
	}).Result()
	if err != nil {
		return 0, apperr.Transient("Queue sweep failed", err)
	}

	moved := 0
	for _, key := range due {
		// ZREM result gates the push: of several concurrent reapers, only
		// the one that removed the member promotes it.
		removed, err := q.client.ZRem(ctx, zsetKey, key).Result()
		if err != nil {
			return moved, apperr.Transient("Queue sweep failed", err)
		}
		if removed == 0 {
			continue
		}

		if err := q.client.LPush(ctx, constants.RedisKeyReady, key).Err(); err != nil {
			return moved, apperr.Transient("Queue sweep failed", err)
		}
		moved++
	}

	return moved, nil
}

/*
Stats returns the current queue depths.
*/
func (q *redisQueue) Stats(ctx context.Context) (Depths, error) {
	pipe := q.client.Pipeline()
	ready := pipe.LLen(ctx, constants.RedisKeyReady)
	delayed := pipe.ZCard(ctx, constants.RedisKeyDelayed)
	processing := pipe.ZCard(ctx, constants.RedisKeyProcessing)
	if _, err := pipe.Exec(ctx); err != nil {
		return Depths{}, apperr.Transient("Queue stats failed", err)
	}

	return Depths{
		Ready:      ready.Val(),
		Delayed:    delayed.Val(),
		Processing: processing.Val(),
	}, nil
}
