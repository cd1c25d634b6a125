package config

import (
	"bytes"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// 実行環境の設定に左右されないようにする
	t.Setenv("PORT", "")
	t.Setenv("GIN_MODE", "")
	t.Setenv("DATABASE_DSN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.GinMode != "debug" {
		t.Fatalf("GinMode = %q, want debug", cfg.GinMode)
	}
	if cfg.DatabaseDSN == "" {
		t.Fatal("DatabaseDSN default is empty")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("DATABASE_DSN", "file:custom.db")
	t.Setenv("MAIL_EXPIRE_MINUTES", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9999" {
		t.Fatalf("Port = %q, want 9999", cfg.Port)
	}
	if cfg.DatabaseDSN != "file:custom.db" {
		t.Fatalf("DatabaseDSN = %q, want file:custom.db", cfg.DatabaseDSN)
	}
	if cfg.MailExpireMinutes != 30 {
		t.Fatalf("MailExpireMinutes = %d, want 30", cfg.MailExpireMinutes)
	}
}

func TestValidateReleaseModeRequiresSecret(t *testing.T) {
	cfg := &Config{GinMode: "release", DatabaseDSN: "accounts.db"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing SESSION_SECRET in release mode")
	}

	cfg.SessionSecret = "some-secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed with secret set: %v", err)
	}
}

func TestSessionKeys(t *testing.T) {
	cfg := &Config{SessionSecret: "some-secret"}
	authKey, encKey := cfg.SessionKeys()
	if len(authKey) != 32 || len(encKey) != 32 {
		t.Fatalf("key lengths = %d, %d, want 32, 32", len(authKey), len(encKey))
	}
	if bytes.Equal(authKey, encKey) {
		t.Fatal("auth key and encryption key must differ")
	}

	// 同じ秘密鍵からは同じ鍵が導出される
	authKey2, encKey2 := cfg.SessionKeys()
	if !bytes.Equal(authKey, authKey2) || !bytes.Equal(encKey, encKey2) {
		t.Fatal("key derivation is not deterministic")
	}

	// 異なる秘密鍵からは異なる鍵が導出される
	other := &Config{SessionSecret: "another-secret"}
	otherAuth, _ := other.SessionKeys()
	if bytes.Equal(authKey, otherAuth) {
		t.Fatal("different secrets derived the same key")
	}
}

func TestGetEnvAsIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("MAIL_EXPIRE_MINUTES", "not-a-number")
	if got := getEnvAsInt("MAIL_EXPIRE_MINUTES", 42); got != 42 {
		t.Fatalf("getEnvAsInt = %d, want fallback 42", got)
	}
}
