// Package account はログイン・サインアップ・プロフィール管理のハンドラーを提供します。
package account

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/account-portal/internal/auth"
	"github.com/yourusername/account-portal/internal/store"
)

// ユーザー向けメッセージ。
const (
	msgPasswordBlank    = "Password cannot be blank"
	msgPasswordTooShort = "Password must be at least 4 characters long"
	msgPasswordMismatch = "Passwords do not match"
	msgInvalidEmail     = "Please enter a valid email address."
	msgUsernameTaken    = "Account with that username already exists."
	msgEmailTaken       = "The email address you have entered is already associated with an account."
	msgLoggedIn         = "Success! You are logged in."
	msgProfileUpdated   = "Profile information has been updated."
	msgPasswordChanged  = "Password has been changed."
	msgAccountDeleted   = "Your account has been deleted."
)

const minPasswordLength = 4

// Notifier はアカウント関連の通知メールを投入します。
// 投入の失敗はリクエストを失敗させず、ログにのみ残します。
type Notifier interface {
	NotifySignup(ctx context.Context, user *store.User) error
	NotifyPasswordChanged(ctx context.Context, user *store.User) error
	NotifyAccountDeleted(ctx context.Context, user *store.User) error
}

// Manager はアカウント管理のハンドラー一式をまとめた構造体です。
type Manager struct {
	users store.Store
	auth  *auth.Manager
	mail  Notifier // nil ならメール通知は無効
}

// NewManager はアカウントハンドラーを作成します。mail は nil でも構いません。
func NewManager(users store.Store, authManager *auth.Manager, mail Notifier) *Manager {
	return &Manager{
		users: users,
		auth:  authManager,
		mail:  mail,
	}
}

type signupForm struct {
	Username        string `form:"username"`
	Email           string `form:"email"`
	Password        string `form:"password"`
	ConfirmPassword string `form:"confirmPassword"`
	Name            string `form:"name"`
	Gender          string `form:"gender"`
	Location        string `form:"location"`
	Website         string `form:"website"`
}

// Home は GET / のハンドラーです。
func (m *Manager) Home(c *gin.Context) {
	m.render(c, "home.html", gin.H{"title": "Home"})
}

// ShowLogin は GET /login のハンドラーです。ログイン済みならホームへ戻します。
func (m *Manager) ShowLogin(c *gin.Context) {
	if auth.CurrentUserID(c) != "" {
		c.Redirect(http.StatusFound, "/")
		return
	}
	m.render(c, "login.html", gin.H{"title": "Login"})
}

// Login は POST /login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	if password == "" {
		flashError(c, msgPasswordBlank)
		c.Redirect(http.StatusFound, "/login")
		return
	}

	user, info, err := m.auth.Authenticate(c.Request.Context(), username, password, c.ClientIP())
	if err != nil {
		m.fail(c, err)
		return
	}
	if user == nil {
		flashError(c, info)
		c.Redirect(http.StatusFound, "/login")
		return
	}

	if err := m.auth.LogIn(c, user); err != nil {
		m.fail(c, err)
		return
	}
	flashSuccess(c, msgLoggedIn)

	dest := auth.ConsumeReturnTo(c)
	if dest == "" {
		dest = "/"
	}
	c.Redirect(http.StatusFound, dest)
}

// Logout は GET /logout のハンドラーです。
func (m *Manager) Logout(c *gin.Context) {
	if err := m.auth.LogOut(c); err != nil {
		m.fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// ShowSignup は GET /signup のハンドラーです。ログイン済みならホームへ戻します。
func (m *Manager) ShowSignup(c *gin.Context) {
	if auth.CurrentUserID(c) != "" {
		c.Redirect(http.StatusFound, "/")
		return
	}
	m.render(c, "signup.html", gin.H{"title": "Create Account"})
}

// Signup は POST /signup のハンドラーです。
// バリデーション → ユーザー名の空き確認 → ダイジェスト化して保存 → ログイン。
func (m *Manager) Signup(c *gin.Context) {
	var form signupForm
	if err := c.ShouldBind(&form); err != nil {
		m.fail(c, err)
		return
	}

	if msgs := validatePassword(form.Password, form.ConfirmPassword); len(msgs) > 0 {
		flashError(c, msgs...)
		c.Redirect(http.StatusFound, "/signup")
		return
	}

	ctx := c.Request.Context()
	if _, err := m.users.ByUsername(ctx, form.Username); err == nil {
		flashError(c, msgUsernameTaken)
		c.Redirect(http.StatusFound, "/signup")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		m.fail(c, err)
		return
	}

	user := &store.User{
		Username: form.Username,
		Password: auth.Digest(form.Password),
		Email:    form.Email,
		Name:     form.Name,
		Gender:   form.Gender,
		Location: form.Location,
		Website:  form.Website,
	}

	if err := m.users.Create(ctx, user); err != nil {
		// 空き確認と挿入の間に同名ユーザーが作られた場合もここに落ちる
		switch {
		case errors.Is(err, store.ErrUsernameTaken):
			flashError(c, msgUsernameTaken)
			c.Redirect(http.StatusFound, "/signup")
		case errors.Is(err, store.ErrEmailTaken):
			flashError(c, msgEmailTaken)
			c.Redirect(http.StatusFound, "/signup")
		default:
			m.fail(c, err)
		}
		return
	}

	if err := m.auth.LogIn(c, user); err != nil {
		m.fail(c, err)
		return
	}

	m.notify(user.Username, func() error { return m.mail.NotifySignup(ctx, user) })
	c.Redirect(http.StatusFound, "/")
}

// ShowAccount は GET /account のハンドラーです。
// アクセス制御は RequireLogin ミドルウェアが担います。
func (m *Manager) ShowAccount(c *gin.Context) {
	user, err := m.users.ByID(c.Request.Context(), m.currentUserID(c))
	if err != nil {
		m.fail(c, err)
		return
	}
	m.render(c, "profile.html", gin.H{
		"title":   "Account Management",
		"account": user,
	})
}

// UpdateProfile は POST /account/profile のハンドラーです。
// 送られてこなかった項目は空文字列で上書きされます（従来からの挙動を維持）。
func (m *Manager) UpdateProfile(c *gin.Context) {
	email := c.PostForm("email")
	if email != "" && !validEmail(email) {
		flashError(c, msgInvalidEmail)
		c.Redirect(http.StatusFound, "/account")
		return
	}
	// 正規化は email が空でも行う（空文字列はそのまま空文字列になる）
	email = normalizeEmail(email)

	ctx := c.Request.Context()
	user, err := m.users.ByID(ctx, m.currentUserID(c))
	if err != nil {
		m.fail(c, err)
		return
	}

	user.Email = email
	user.Name = c.PostForm("name")
	user.Gender = c.PostForm("gender")
	user.Location = c.PostForm("location")
	user.Website = c.PostForm("website")

	if err := m.users.Update(ctx, user); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			flashError(c, msgEmailTaken)
			c.Redirect(http.StatusFound, "/account")
			return
		}
		m.fail(c, err)
		return
	}

	flashSuccess(c, msgProfileUpdated)
	c.Redirect(http.StatusFound, "/account")
}

// UpdatePassword は POST /account/password のハンドラーです。
func (m *Manager) UpdatePassword(c *gin.Context) {
	password := c.PostForm("password")
	confirm := c.PostForm("confirmPassword")

	if msgs := validatePassword(password, confirm); len(msgs) > 0 {
		flashError(c, msgs...)
		c.Redirect(http.StatusFound, "/account")
		return
	}

	ctx := c.Request.Context()
	user, err := m.users.ByID(ctx, m.currentUserID(c))
	if err != nil {
		m.fail(c, err)
		return
	}

	user.Password = auth.Digest(password)
	if err := m.users.Update(ctx, user); err != nil {
		m.fail(c, err)
		return
	}

	m.notify(user.Username, func() error { return m.mail.NotifyPasswordChanged(ctx, user) })
	flashSuccess(c, msgPasswordChanged)
	c.Redirect(http.StatusFound, "/account")
}

// DeleteAccount は POST /account/delete のハンドラーです。
// 削除できるのは常に現在のセッションのユーザー自身のレコードだけです。
func (m *Manager) DeleteAccount(c *gin.Context) {
	ctx := c.Request.Context()
	id := m.currentUserID(c)

	// 通知メールの宛先のために削除前にレコードを取得しておく
	user, err := m.users.ByID(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		m.fail(c, err)
		return
	}

	if err := m.users.Delete(ctx, id); err != nil {
		m.fail(c, err)
		return
	}

	if err := m.auth.LogOut(c); err != nil {
		m.fail(c, err)
		return
	}
	flashInfo(c, msgAccountDeleted)

	if user != nil {
		m.notify(user.Username, func() error { return m.mail.NotifyAccountDeleted(ctx, user) })
	}
	c.Redirect(http.StatusFound, "/")
}

// validatePassword はサインアップとパスワード変更で共通のルールを検証します。
func validatePassword(password, confirm string) []string {
	var msgs []string
	if len(password) < minPasswordLength {
		msgs = append(msgs, msgPasswordTooShort)
	}
	if confirm != password {
		msgs = append(msgs, msgPasswordMismatch)
	}
	return msgs
}

// render はフラッシュメッセージとログイン状態を合成してテンプレートを描画します。
func (m *Manager) render(c *gin.Context, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	errs, success, info := takeFlashes(c)
	data["errors"] = errs
	data["success"] = success
	data["info"] = info
	data["username"] = auth.CurrentUsername(c)
	c.HTML(http.StatusOK, name, data)
}

// fail はユーザー入力に起因しない障害を上流のエラーページミドルウェアへ渡します。
func (m *Manager) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func (m *Manager) currentUserID(c *gin.Context) string {
	if id := c.GetString(auth.ContextUserIDKey); id != "" {
		return id
	}
	return auth.CurrentUserID(c)
}

// notify は通知メールを投入します。失敗してもリクエストは成功扱いのままです。
func (m *Manager) notify(username string, fn func() error) {
	if m.mail == nil {
		return
	}
	if err := fn(); err != nil {
		log.Printf("failed to enqueue notification mail for %s: %v", username, err)
	}
}
