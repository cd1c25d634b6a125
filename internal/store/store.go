// Package store はユーザーレコードの永続化レイヤーを提供します。
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// User は永続化されるユーザーレコードです。
// Password には常にダイジェストのみを保持し、平文は決して保存しません。
type User struct {
	ID       string `gorm:"primaryKey;size:36"`
	Username string `gorm:"uniqueIndex;size:64;not null"`
	Password string `gorm:"size:191;not null"`
	// Email は空文字列を許容するため、空でない値にのみ一意制約を張る
	Email    string `gorm:"size:191;index:idx_users_email,unique,where:email <> ''"`
	Name     string `gorm:"size:191"`
	Gender   string `gorm:"size:32"`
	Location string `gorm:"size:191"`
	Website  string `gorm:"size:191"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrNotFound は対象のユーザーが存在しないことを表します。
	ErrNotFound = errors.New("user not found")
	// ErrUsernameTaken は username の一意制約違反を表します。
	ErrUsernameTaken = errors.New("username already taken")
	// ErrEmailTaken は email の一意制約違反を表します。
	ErrEmailTaken = errors.New("email already taken")
)

// Store はユーザーレコードに対する操作を定義します。
type Store interface {
	Create(ctx context.Context, user *User) error
	ByID(ctx context.Context, id string) (*User, error)
	ByUsername(ctx context.Context, username string) (*User, error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
}

// Open は SQLite データベースを開き、マイグレーションを適用します。
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, err
	}
	return db, nil
}

// DB は GORM ベースの Store 実装です。
type DB struct {
	db *gorm.DB
}

var _ Store = (*DB)(nil)

// New は Store を作成します。
func New(db *gorm.DB) *DB {
	return &DB{db: db}
}

// Create はユーザーを作成します。ID が空の場合はここで採番します。
func (s *DB) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	result := s.db.WithContext(ctx).Create(user)
	if result.Error != nil {
		return translateDuplicate(result.Error, ErrUsernameTaken)
	}
	return nil
}

// ByID は ID でユーザーを検索します。
func (s *DB) ByID(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	var user User
	result := s.db.WithContext(ctx).Where("id = ?", id).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

// ByUsername はユーザー名でユーザーを検索します。
func (s *DB) ByUsername(ctx context.Context, username string) (*User, error) {
	if username == "" {
		return nil, ErrNotFound
	}
	var user User
	result := s.db.WithContext(ctx).Where("username = ?", username).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

// Update はユーザーレコード全体を保存します。
// プロフィール更新経路で一意制約に当たりうるのは email のみ。
func (s *DB) Update(ctx context.Context, user *User) error {
	if user.ID == "" {
		return ErrNotFound
	}
	result := s.db.WithContext(ctx).Save(user)
	if result.Error != nil {
		return translateDuplicate(result.Error, ErrEmailTaken)
	}
	return nil
}

// Delete は指定 ID のユーザーを削除します。存在しない場合はエラーになりません。
func (s *DB) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&User{}).Error
}

// translateDuplicate は一意制約違反を型付きエラーに変換します。
// GORM の ErrDuplicatedKey には違反カラムが含まれないため、
// ドライバのメッセージ（例: "UNIQUE constraint failed: users.username"）から判定します。
func translateDuplicate(err error, fallback error) error {
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "username"):
		return ErrUsernameTaken
	case strings.Contains(msg, "email"):
		return ErrEmailTaken
	default:
		return fallback
	}
}
