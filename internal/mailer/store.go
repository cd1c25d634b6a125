package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const deliveryKeyPrefix = "mail:"

// Store はメール配信レコードを Redis に保存します。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get は配信レコードを取得します。存在しない場合は nil を返します。
func (s *Store) Get(ctx context.Context, taskID string) (*Record, error) {
	if taskID == "" {
		return nil, fmt.Errorf("taskID is required")
	}
	data, err := s.rdb.Get(ctx, deliveryKey(taskID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Upsert は配信レコードを保存します（存在しない場合は作成）。
func (s *Store) Upsert(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.ExpiresAt.IsZero() && s.ttl > 0 {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, deliveryKey(record.TaskID), payload, s.ttl).Err()
}

// MarkSent は配信成功を記録します。
func (s *Store) MarkSent(ctx context.Context, taskID string) error {
	return s.updatePartial(ctx, taskID, func(record *Record) {
		record.Status = StatusSent
		record.Error = ""
	})
}

// MarkFailed は配信失敗を記録します。
func (s *Store) MarkFailed(ctx context.Context, taskID string, cause error) error {
	return s.updatePartial(ctx, taskID, func(record *Record) {
		record.Status = StatusFailed
		if cause != nil {
			record.Error = cause.Error()
		}
	})
}

func (s *Store) updatePartial(ctx context.Context, taskID string, mutate func(*Record)) error {
	key := deliveryKey(taskID)
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return fmt.Errorf("delivery record not found: %s", taskID)
		}
		return err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return err
	}
	mutate(&record)
	record.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(&record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, payload, s.ttl).Err()
}

func deliveryKey(id string) string {
	return deliveryKeyPrefix + id
}
