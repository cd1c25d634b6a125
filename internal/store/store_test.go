package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *DB {
	t.Helper()
	// テストごとに独立した名前付きインメモリDBを使う
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	return New(db)
}

func TestCreateAssignsID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := &User{Username: "alice", Password: "digest"}
	if err := s.Create(ctx, user); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if user.ID == "" {
		t.Fatal("Create did not assign an ID")
	}

	got, err := s.ByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("ByID failed: %v", err)
	}
	if got.Username != "alice" {
		t.Fatalf("Username = %q, want alice", got.Username)
	}
}

func TestCreateDuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, &User{Username: "alice", Password: "d1"}); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	err := s.Create(ctx, &User{Username: "alice", Password: "d2"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("err = %v, want ErrUsernameTaken", err)
	}
}

func TestEmptyEmailsDoNotConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// email 未設定のユーザーが複数いても一意制約に当たらない
	if err := s.Create(ctx, &User{Username: "alice", Password: "d1"}); err != nil {
		t.Fatalf("Create alice failed: %v", err)
	}
	if err := s.Create(ctx, &User{Username: "bob", Password: "d2"}); err != nil {
		t.Fatalf("Create bob failed: %v", err)
	}
}

func TestUpdateDuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := &User{Username: "alice", Password: "d1", Email: "shared@example.com"}
	if err := s.Create(ctx, alice); err != nil {
		t.Fatalf("Create alice failed: %v", err)
	}
	bob := &User{Username: "bob", Password: "d2"}
	if err := s.Create(ctx, bob); err != nil {
		t.Fatalf("Create bob failed: %v", err)
	}

	bob.Email = "shared@example.com"
	err := s.Update(ctx, bob)
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}
}

func TestByUsernameNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.ByUsername(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := s.ByID(context.Background(), "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdatePersistsProfileFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := &User{Username: "alice", Password: "d1"}
	if err := s.Create(ctx, user); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	user.Email = "alice@example.com"
	user.Name = "Alice"
	user.Location = "Tokyo"
	if err := s.Update(ctx, user); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := s.ByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("ByID failed: %v", err)
	}
	if got.Email != "alice@example.com" || got.Name != "Alice" || got.Location != "Tokyo" {
		t.Fatalf("profile fields not persisted: %+v", got)
	}
}

func TestDeleteRemovesOnlyTarget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := &User{Username: "alice", Password: "d1"}
	bob := &User{Username: "bob", Password: "d2"}
	if err := s.Create(ctx, alice); err != nil {
		t.Fatalf("Create alice failed: %v", err)
	}
	if err := s.Create(ctx, bob); err != nil {
		t.Fatalf("Create bob failed: %v", err)
	}

	if err := s.Delete(ctx, alice.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := s.ByID(ctx, alice.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("alice still present: err = %v", err)
	}
	if _, err := s.ByID(ctx, bob.ID); err != nil {
		t.Fatalf("bob was deleted too: %v", err)
	}
}
