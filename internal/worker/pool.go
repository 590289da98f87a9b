package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/metrics"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/services"
)

const (
	CompletionQueue = "queue:content-completions"
	DeadLetterQueue = "queue:content-completions:dead"
	// RetrySet holds failed events scored by the unix millisecond they are due.
	RetrySet = "queue:content-completions:retry"

	maxAttempts  = 3
	lockTTL      = time.Minute
	promoteBatch = 100
)

// promoteScript moves due retries back onto the queue atomically, so an event is
// always in exactly one of the two keys.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, item in ipairs(due) do
	redis.call('ZREM', KEYS[1], item)
	redis.call('RPUSH', KEYS[2], item)
end
return #due
`)

// CompletionRecorder records a shared-content completion and settles its reward.
type CompletionRecorder interface {
	Record(ctx context.Context, completerID, postID uuid.UUID) (*models.RewardOutcome, error)
}

// Pool consumes completion events published by other services. Recording is
// idempotent per (post, user), so redelivery after a crash is harmless.
type Pool struct {
	redis       *redis.Client
	recorder    CompletionRecorder
	workerCount int
	pollTimeout time.Duration
	retryDelay  func(attempt int) time.Duration
	now         func() time.Time
	logger      *zap.Logger
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

func NewPool(redisClient *redis.Client, recorder CompletionRecorder, workerCount int, logger *zap.Logger) *Pool {
	return &Pool{
		redis:       redisClient,
		recorder:    recorder,
		workerCount: workerCount,
		pollTimeout: 5 * time.Second,
		retryDelay: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * time.Second
		},
		now:      time.Now,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Enqueue publishes a completion event for the pool to process.
func Enqueue(ctx context.Context, client *redis.Client, evt models.CompletionEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return client.RPush(ctx, CompletionQueue, data).Err()
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("completion workers started", zap.Int("workers", p.workerCount))
}

// Stop signals the workers and waits for in-flight events until ctx is done.
func (p *Pool) Stop(ctx context.Context) {
	close(p.stopChan)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("completion workers did not stop in time")
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			p.logger.Debug("completion worker shutting down", zap.Int("worker", id))
			return
		default:
		}

		ctx := context.Background()
		if err := p.promoteDue(ctx); err != nil {
			p.logger.Warn("completion retry promotion failed", zap.Int("worker", id), zap.Error(err))
		}

		result, err := p.redis.BLPop(ctx, p.pollTimeout, CompletionQueue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				p.logger.Warn("completion queue read failed", zap.Int("worker", id), zap.Error(err))
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		p.process(ctx, result[1])
	}
}

func (p *Pool) process(ctx context.Context, payload string) {
	var evt models.CompletionEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil || evt.PostID == uuid.Nil || evt.CompleterUserID == uuid.Nil {
		p.logger.Error("dropping malformed completion event", zap.String("payload", payload), zap.Error(err))
		metrics.CompletionEvent("invalid")
		p.deadLetter(ctx, payload)
		return
	}

	lockKey := fmt.Sprintf("completion_lock:%s:%s", evt.PostID, evt.CompleterUserID)
	locked, err := p.redis.SetNX(ctx, lockKey, "1", lockTTL).Result()
	if err != nil {
		p.handleFailure(ctx, evt, fmt.Errorf("acquire completion lock: %w", err))
		return
	}
	if !locked {
		// Another worker holds the same (post, user); its result covers this copy.
		return
	}
	defer p.redis.Del(ctx, lockKey)

	outcome, err := p.recorder.Record(ctx, evt.CompleterUserID, evt.PostID)
	if err != nil {
		p.handleFailure(ctx, evt, err)
		return
	}

	result := "skipped"
	if outcome.Rewarded {
		result = "rewarded"
	}
	metrics.CompletionEvent(result)
	p.logger.Debug("completion event processed",
		zap.String("post_id", evt.PostID.String()),
		zap.String("user_id", evt.CompleterUserID.String()),
		zap.Bool("rewarded", outcome.Rewarded),
		zap.String("reason", outcome.Reason))
}

func (p *Pool) handleFailure(ctx context.Context, evt models.CompletionEvent, err error) {
	var notFound *services.NotFoundError
	permanent := errors.As(err, &notFound)

	evt.Attempts++
	data, _ := json.Marshal(evt)

	if !permanent && evt.Attempts < maxAttempts {
		due := p.now().Add(p.retryDelay(evt.Attempts))
		zerr := p.redis.ZAdd(ctx, RetrySet, redis.Z{Score: float64(due.UnixMilli()), Member: string(data)}).Err()
		if zerr == nil {
			p.logger.Warn("completion event failed, retrying",
				zap.String("post_id", evt.PostID.String()),
				zap.Int("attempt", evt.Attempts),
				zap.Time("due", due),
				zap.Error(err))
			metrics.CompletionEvent("retried")
			return
		}
		p.logger.Error("failed to schedule completion retry",
			zap.String("post_id", evt.PostID.String()),
			zap.Error(zerr))
	}

	p.logger.Error("completion event failed permanently",
		zap.String("post_id", evt.PostID.String()),
		zap.String("user_id", evt.CompleterUserID.String()),
		zap.Int("attempts", evt.Attempts),
		zap.Error(err))
	metrics.CompletionEvent("failed")
	p.deadLetter(ctx, string(data))
}

// promoteDue requeues retries whose delay has elapsed.
func (p *Pool) promoteDue(ctx context.Context) error {
	cutoff := strconv.FormatInt(p.now().UnixMilli(), 10)
	return promoteScript.Run(ctx, p.redis, []string{RetrySet, CompletionQueue}, cutoff, promoteBatch).Err()
}

func (p *Pool) deadLetter(ctx context.Context, payload string) {
	if err := p.redis.RPush(ctx, DeadLetterQueue, payload).Err(); err != nil {
		// Last resort: the payload is only recoverable from this log line.
		p.logger.Error("failed to dead-letter completion event",
			zap.String("payload", payload),
			zap.Error(err))
	}
}
