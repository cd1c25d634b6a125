// Package main はアカウント管理サーバーのエントリーポイントです。
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/account-portal/internal/account"
	"github.com/yourusername/account-portal/internal/auth"
	"github.com/yourusername/account-portal/internal/config"
	"github.com/yourusername/account-portal/internal/store"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// データベースを開いてマイグレーションを適用
	db, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	users := store.New(db)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()
	router.LoadHTMLGlob("web/templates/*.html")

	// セッションストアの設定（署名鍵・暗号化鍵は SESSION_SECRET から導出）
	authKey, encKey := cfg.SessionKeys()
	cookieStore := cookie.NewStore(authKey, encKey)
	cookieStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		// フォーム遷移中心のサイトなので Lax（外部リンクからの遷移でもセッションを維持）
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, cookieStore))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// ストア等の障害はエラーページとして描画する
	router.Use(errorPage())

	// メール通知の配線（QUEUE_REDIS_URL 未設定なら無効）
	notifier, mailManager, err := setupMailer(cfg)
	if err != nil {
		log.Fatalf("Failed to set up mailer: %v", err)
	}
	if mailManager != nil {
		mailManager.StartWorkers()
	}

	// ルーティングの設定
	setupRoutes(router, users, notifier)

	// サーバーの起動（SIGINT/SIGTERM でグレースフルに停止する）
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cleanup := func(ctx context.Context) error {
		if mailManager != nil {
			return mailManager.Shutdown(ctx)
		}
		return nil
	}

	addr := ":" + cfg.Port
	log.Printf("Starting account-portal server on %s (mode: %s)", addr, cfg.GinMode)
	if err := runServer(ctx, &http.Server{Addr: addr, Handler: router}, cleanup); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Printf("Server stopped")
}

// runServer はサーバーを起動し、ctx のキャンセルまたはリスナーの失敗まで待機します。
// 停止時には HTTP サーバーを先に閉じ、その後 cleanup（メール配信基盤の停止など）を実行します。
func runServer(ctx context.Context, srv *http.Server, cleanup func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if cleanup != nil {
		if cleanupErr := cleanup(shutdownCtx); err == nil {
			err = cleanupErr
		}
	}
	return err
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "account-portal",
		"version": "0.1.0",
	})
}

// errorPage はハンドラーが c.Error で報告した障害を汎用エラーページに変換します。
func errorPage() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		for _, ginErr := range c.Errors {
			log.Printf("request failed: %s %s: %v", c.Request.Method, c.Request.URL.Path, ginErr.Err)
		}
		c.HTML(http.StatusInternalServerError, "error.html", gin.H{
			"title": "Error",
		})
	}
}

// setupRoutes はアカウント管理のルーティングを配線します。
func setupRoutes(router *gin.Engine, users store.Store, notifier account.Notifier) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	authManager := auth.NewManager(users)
	accounts := account.NewManager(users, authManager, notifier)

	router.GET("/", accounts.Home)
	router.GET("/login", accounts.ShowLogin)
	router.POST("/login", accounts.Login)
	router.GET("/logout", accounts.Logout)
	router.GET("/signup", accounts.ShowSignup)
	router.POST("/signup", accounts.Signup)

	// プロフィール関連はログイン必須
	protected := router.Group("/account")
	protected.Use(authManager.RequireLogin())
	{
		protected.GET("", accounts.ShowAccount)
		protected.POST("/profile", accounts.UpdateProfile)
		protected.POST("/password", accounts.UpdatePassword)
		protected.POST("/delete", accounts.DeleteAccount)
	}
}
