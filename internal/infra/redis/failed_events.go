package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/pumpwatch/internal/core/domain"
)

const deadLetterTTL = 24 * time.Hour

// FailedEventRepo is the Redis-backed dead letter. Entries expire after
// 24 hours. Nothing replays them automatically; the failed subcommand
// is the operator's window into the queue.
type FailedEventRepo struct {
	rdb    *redis.Client
	stream string
}

// NewFailedEventRepo creates a dead-letter repository scoped to one stream.
func NewFailedEventRepo(client *Client, stream string) *FailedEventRepo {
	return &FailedEventRepo{
		rdb:    client.rdb,
		stream: stream,
	}
}

// Key helpers
func (r *FailedEventRepo) queueKey() string {
	return fmt.Sprintf("failed_events:%s", r.stream)
}

func (r *FailedEventRepo) eventKey(id string) string {
	return fmt.Sprintf("failed_event:%s:%s", r.stream, id)
}

// Add records a failed event. The score is the ledger, so the queue
// reads back in chain order.
func (r *FailedEventRepo) Add(ctx context.Context, fe *domain.FailedEvent) error {
	data, err := json.Marshal(fe)
	if err != nil {
		return fmt.Errorf("failed to marshal failed event: %w", err)
	}

	if err := r.rdb.Set(ctx, r.eventKey(fe.ID), data, deadLetterTTL).Err(); err != nil {
		return fmt.Errorf("failed to set failed event: %w", err)
	}

	if err := r.rdb.ZAdd(ctx, r.queueKey(), redis.Z{
		Score:  float64(fe.Ledger),
		Member: fe.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to queue: %w", err)
	}

	return nil
}

// GetNext retrieves the oldest failed event by ledger.
func (r *FailedEventRepo) GetNext(ctx context.Context) (*domain.FailedEvent, error) {
	results, err := r.rdb.ZRange(ctx, r.queueKey(), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	id := results[0]

	data, err := r.rdb.Get(ctx, r.eventKey(id)).Bytes()
	if err == redis.Nil {
		// Data expired but ID still in queue, remove it
		r.rdb.ZRem(ctx, r.queueKey(), id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get failed event: %w", err)
	}

	var fe domain.FailedEvent
	if err := json.Unmarshal(data, &fe); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failed event: %w", err)
	}
	return &fe, nil
}

// IncrementRetry bumps the retry count after an operator-driven attempt.
func (r *FailedEventRepo) IncrementRetry(ctx context.Context, id string) error {
	data, err := r.rdb.Get(ctx, r.eventKey(id)).Bytes()
	if err != nil {
		return fmt.Errorf("failed to get failed event: %w", err)
	}

	var fe domain.FailedEvent
	if err := json.Unmarshal(data, &fe); err != nil {
		return fmt.Errorf("failed to unmarshal failed event: %w", err)
	}

	fe.RetryCount++

	newData, err := json.Marshal(fe)
	if err != nil {
		return fmt.Errorf("failed to marshal failed event: %w", err)
	}
	if err := r.rdb.Set(ctx, r.eventKey(id), newData, deadLetterTTL).Err(); err != nil {
		return fmt.Errorf("failed to set failed event: %w", err)
	}
	return nil
}

// MarkResolved removes a failed event from the dead letter.
func (r *FailedEventRepo) MarkResolved(ctx context.Context, id string) error {
	if err := r.rdb.ZRem(ctx, r.queueKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to remove from queue: %w", err)
	}
	if err := r.rdb.Del(ctx, r.eventKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete failed event: %w", err)
	}
	return nil
}

// GetAll retrieves every failed event for the stream, oldest ledger first.
func (r *FailedEventRepo) GetAll(ctx context.Context) ([]*domain.FailedEvent, error) {
	ids, err := r.rdb.ZRange(ctx, r.queueKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	events := make([]*domain.FailedEvent, 0, len(ids))
	for _, id := range ids {
		data, err := r.rdb.Get(ctx, r.eventKey(id)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get failed event: %w", err)
		}

		var fe domain.FailedEvent
		if err := json.Unmarshal(data, &fe); err != nil {
			continue
		}
		events = append(events, &fe)
	}
	return events, nil
}

// Count returns the number of failed events in the queue.
func (r *FailedEventRepo) Count(ctx context.Context) (int, error) {
	count, err := r.rdb.ZCard(ctx, r.queueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(count), nil
}
