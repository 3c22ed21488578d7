package agentic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"phishbox/internal/model"
)

const (
	taskKeyPrefix = "agentic:task:"
	maxTxRetries  = 5
)

// RedisStore keeps tasks as JSON documents so that any server replica can
// answer a poll. Updates use WATCH/MULTI so concurrent writers never lose
// an appended message. Keys have no expiry until Release gives them the
// store's ttl.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func taskKey(id string) string {
	return taskKeyPrefix + id
}

func (s *RedisStore) Create(ctx context.Context, task *model.DiscussionTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, taskKey(task.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("create task %s: %w", task.ID, err)
	}
	if !ok {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.DiscussionTask, error) {
	data, err := s.rdb.Get(ctx, taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	var t model.DiscussionTask
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &t, nil
}

func (s *RedisStore) MarkProcessing(ctx context.Context, id string) error {
	return s.update(ctx, id, func(t *model.DiscussionTask) error {
		return transition(t, model.TaskProcessing, s.now().UTC())
	})
}

func (s *RedisStore) AppendMessage(ctx context.Context, id string, msg model.Message) error {
	return s.update(ctx, id, func(t *model.DiscussionTask) error {
		return appendMessage(t, msg)
	})
}

func (s *RedisStore) Complete(ctx context.Context, id string, decision model.Decision) error {
	return s.update(ctx, id, func(t *model.DiscussionTask) error {
		return complete(t, decision, s.now().UTC())
	})
}

func (s *RedisStore) Fail(ctx context.Context, id string, reason string) error {
	return s.update(ctx, id, func(t *model.DiscussionTask) error {
		return fail(t, reason, s.now().UTC())
	})
}

func (s *RedisStore) Release(ctx context.Context, id string) error {
	if s.ttl <= 0 {
		return nil
	}
	ok, err := s.rdb.Expire(ctx, taskKey(id), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("release task %s: %w", id, err)
	}
	if !ok {
		return notFound(id)
	}
	return nil
}

func (s *RedisStore) update(ctx context.Context, id string, fn func(*model.DiscussionTask) error) error {
	key := taskKey(id)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return notFound(id)
		}
		if err != nil {
			return err
		}

		var t model.DiscussionTask
		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("decode task %s: %w", id, err)
		}
		if err := fn(&t); err != nil {
			return err
		}
		updated, err := json.Marshal(&t)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update task %s: too much contention", id)
}
