// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/pbkdf2"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// アプリケーション設定
	SessionSecret string // セッションクッキー署名・暗号化鍵の元になる秘密鍵

	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// データベース設定
	DatabaseDSN string // SQLiteのDSN（ファイルパスまたは file: URI）

	// メール通知設定
	QueueRedisURL     string // Asynq用Redis接続URL（空ならメール通知は無効）
	SMTPAddr          string // SMTPサーバーのアドレス（host:port、空ならログ出力のみ）
	SMTPFrom          string // 通知メールの送信元アドレス
	MailExpireMinutes int    // メール配信レコードの保持期間（分）
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// アプリケーション設定
		SessionSecret: getEnv("SESSION_SECRET", ""),

		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// データベース設定
		DatabaseDSN: getEnv("DATABASE_DSN", "accounts.db"),

		// メール通知設定
		QueueRedisURL:     getEnv("QUEUE_REDIS_URL", ""),
		SMTPAddr:          getEnv("SMTP_ADDR", ""),
		SMTPFrom:          getEnv("SMTP_FROM", "no-reply@localhost"),
		MailExpireMinutes: getEnvAsInt("MAIL_EXPIRE_MINUTES", 60*24),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	// ローカル開発ではセッション秘密鍵は任意（空なら開発用の固定値を使う）
	// 本番環境では厳格にチェックする
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required in release mode")
		}
	}
	return nil
}

// 開発時に SESSION_SECRET 未設定でも起動できるようにするための固定値。
// 本番では Validate が空の秘密鍵を拒否する。
const devSessionSecret = "account-portal-dev-secret"

// SessionKeys は SESSION_SECRET からクッキー署名鍵と暗号化鍵を導出します。
// 鍵長はそれぞれ32バイト（HMAC-SHA256 / AES-256）。
func (c *Config) SessionKeys() (authKey, encKey []byte) {
	secret := c.SessionSecret
	if secret == "" {
		secret = devSessionSecret
	}
	derived := pbkdf2.Key([]byte(secret), []byte("account-portal/session-keys"), 4096, 64, sha256.New)
	return derived[:32], derived[32:]
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
