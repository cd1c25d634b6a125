package mailer

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func getTestRedisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// setupTestStore は検証用 Redis（DB 15）に接続した Store を返します。
// Redis が起動していない環境ではテストをスキップします。
func setupTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{
		Addr: getTestRedisAddr(),
		DB:   15,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	if err := rdb.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("failed to flush test db: %v", err)
	}
	t.Cleanup(func() {
		rdb.Close()
	})
	return NewStore(rdb, ttl)
}

func TestStoreUpsertSetsTimestampsAndExpiry(t *testing.T) {
	ttl := time.Hour
	s := setupTestStore(t, ttl)
	ctx := context.Background()

	record := &Record{
		TaskID:    "task-upsert",
		Kind:      KindWelcome,
		Recipient: "alice@example.com",
		Status:    StatusQueued,
	}
	if err := s.Upsert(ctx, record); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if record.CreatedAt.IsZero() || record.UpdatedAt.IsZero() {
		t.Fatal("Upsert did not set timestamps")
	}
	if want := record.CreatedAt.Add(ttl); !record.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", record.ExpiresAt, want)
	}

	got, err := s.Get(ctx, "task-upsert")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil for a saved record")
	}
	if got.Kind != KindWelcome || got.Recipient != "alice@example.com" || got.Status != StatusQueued {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestStoreGetMissingReturnsNil(t *testing.T) {
	s := setupTestStore(t, time.Hour)

	got, err := s.Get(context.Background(), "no-such-task")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing record, got %+v", got)
	}
}

func TestStoreGetRequiresTaskID(t *testing.T) {
	s := setupTestStore(t, time.Hour)

	if _, err := s.Get(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty task id")
	}
}

func TestStoreMarkSentAndFailed(t *testing.T) {
	s := setupTestStore(t, time.Hour)
	ctx := context.Background()

	record := &Record{TaskID: "task-mark", Kind: KindPasswordChanged, Recipient: "bob@example.com", Status: StatusQueued}
	if err := s.Upsert(ctx, record); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := s.MarkSent(ctx, "task-mark"); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	got, err := s.Get(ctx, "task-mark")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusSent || got.Error != "" {
		t.Fatalf("after MarkSent: %+v", got)
	}

	if err := s.MarkFailed(ctx, "task-mark", context.DeadlineExceeded); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	got, err = s.Get(ctx, "task-mark")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusFailed || got.Error == "" {
		t.Fatalf("after MarkFailed: %+v", got)
	}
}

func TestStoreMarkSentMissingRecord(t *testing.T) {
	s := setupTestStore(t, time.Hour)

	if err := s.MarkSent(context.Background(), "never-queued"); err == nil {
		t.Fatal("expected error for missing record")
	}
}
