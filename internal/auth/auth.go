// Package auth は認証・セッション管理機能を提供します。
package auth

import (
	"context"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/account-portal/internal/store"
)

const (
	SessionCookieName  = "ap_session"
	sessionKeyUserID   = "auth_user_id"
	sessionKeyUsername = "auth_username"
	sessionKeyReturnTo = "return_to"
)

var (
	maxSessionLifetime = 12 * time.Hour
	loginWindow        = 15 * time.Minute
	lockDuration       = 10 * time.Minute
	maxLoginAttempts   = 5
)

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func SessionMaxAgeSeconds() int {
	return int(maxSessionLifetime.Seconds())
}

// ContextUserIDKey は、ハンドラー間でログイン済みユーザーIDを共有するためのキーです。
const ContextUserIDKey = "auth.user_id"

// ログイン失敗時にフォームへ表示するメッセージ。
// 存在しないユーザーと誤ったパスワードを区別しない。
const (
	msgInvalidCredentials = "Invalid username or password."
	msgTooManyAttempts    = "Too many login attempts. Please try again later."
)

// Digest はパスワードの保存用ダイジェストを計算します。
// ソルトなし1ラウンドの SHA-1 16進文字列。既存の保存済み資格情報との
// 互換性のために維持している方式で、新規システムには推奨しない。
func Digest(password string) string {
	sum := sha1.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// Manager は資格情報の検証とセッションの確立・破棄をまとめた構造体です。
type Manager struct {
	users store.Store

	lock     sync.Mutex
	attempts map[string]*attemptState
}

// NewManager は認証マネージャーを作成します。
func NewManager(users store.Store) *Manager {
	return &Manager{
		users:    users,
		attempts: make(map[string]*attemptState),
	}
}

// Authenticate は username と平文パスワードを検証します。
// 認証に成功するとユーザーを返します。資格情報が誤っている場合は
// nil ユーザーと表示用メッセージを返し、ストア障害は err として返します。
// remoteAddr はログイン試行回数制限のキーに使います。
func (m *Manager) Authenticate(ctx context.Context, username, password, remoteAddr string) (*store.User, string, error) {
	if retryAfter := m.checkLock(remoteAddr); retryAfter > 0 {
		return nil, msgTooManyAttempts, nil
	}

	user, err := m.users.ByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			m.recordFailure(remoteAddr)
			return nil, msgInvalidCredentials, nil
		}
		return nil, "", err
	}

	digest := Digest(password)
	if subtle.ConstantTimeCompare([]byte(user.Password), []byte(digest)) != 1 {
		m.recordFailure(remoteAddr)
		return nil, msgInvalidCredentials, nil
	}

	m.resetAttempts(remoteAddr)
	return user, "", nil
}

// LogIn は指定ユーザーのセッションを確立します。
func (m *Manager) LogIn(c *gin.Context, user *store.User) error {
	session := sessions.Default(c)
	session.Set(sessionKeyUserID, user.ID)
	session.Set(sessionKeyUsername, user.Username)
	return session.Save()
}

// LogOut は現在のセッションを破棄します。
func (m *Manager) LogOut(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	return session.Save()
}

// CurrentUserID はセッションに紐づくユーザーIDを返します。未ログインなら空文字列。
func CurrentUserID(c *gin.Context) string {
	session := sessions.Default(c)
	id, _ := session.Get(sessionKeyUserID).(string)
	return id
}

// CurrentUsername はセッションに紐づくユーザー名を返します。未ログインなら空文字列。
func CurrentUsername(c *gin.Context) string {
	session := sessions.Default(c)
	name, _ := session.Get(sessionKeyUsername).(string)
	return name
}

// ConsumeReturnTo はログイン後のリダイレクト先を取り出してセッションから削除します。
func ConsumeReturnTo(c *gin.Context) string {
	session := sessions.Default(c)
	dest, _ := session.Get(sessionKeyReturnTo).(string)
	if dest != "" {
		session.Delete(sessionKeyReturnTo)
		_ = session.Save()
	}
	return dest
}

// RequireLogin はセッションを検証するミドルウェアを返します。
// 未ログインのリクエストは /login へリダイレクトします。GET/HEAD の場合のみ
// 元のパスを保存し、ログイン後に戻れるようにします。POST 先を保存すると
// ログイン後のリダイレクトが GET できないパスを指してしまうため保存しません。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := CurrentUserID(c)
		if id == "" {
			if isSafeMethod(c.Request.Method) {
				session := sessions.Default(c)
				session.Set(sessionKeyReturnTo, c.Request.URL.Path)
				_ = session.Save()
			}
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Set(ContextUserIDKey, id)
		c.Next()
	}
}

// isSafeMethod は再送しても副作用のない HTTP メソッドかどうかを判定します。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead:
		return true
	default:
		return false
	}
}

func (m *Manager) checkLock(key string) time.Duration {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[key]
	if !ok {
		return 0
	}
	now := time.Now()
	if now.After(state.lockedUntil) {
		return 0
	}
	return time.Until(state.lockedUntil)
}

func (m *Manager) recordFailure(key string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := time.Now()
	state, ok := m.attempts[key]
	if !ok || now.Sub(state.firstAttempt) > loginWindow {
		state = &attemptState{firstAttempt: now}
		m.attempts[key] = state
	}

	state.count++
	if state.count >= maxLoginAttempts {
		state.lockedUntil = now.Add(lockDuration)
		state.count = maxLoginAttempts
	}
}

func (m *Manager) resetAttempts(key string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, key)
}
