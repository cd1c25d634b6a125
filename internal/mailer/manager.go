// Package mailer はアカウント関連の通知メールを非同期で配信します。
package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/yourusername/account-portal/internal/store"
)

const taskTypeMail = "mail:notify"

// deliveryStore は配信レコードの永続化に必要な操作です。実体は redis 版の Store。
type deliveryStore interface {
	Get(ctx context.Context, taskID string) (*Record, error)
	Upsert(ctx context.Context, record *Record) error
	MarkSent(ctx context.Context, taskID string) error
	MarkFailed(ctx context.Context, taskID string, cause error) error
}

// taskEnqueuer は asynq.Client のタスク投入部分だけを切り出したものです。
type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Manager は通知メールの投入と配信を担います。
type Manager struct {
	client   *asynq.Client
	enqueuer taskEnqueuer
	server   *asynq.Server
	mux      *asynq.ServeMux
	store    deliveryStore
	sender   Sender
	logger   *log.Logger
}

// TaskPayload は通知メールタスクのペイロードです。
type TaskPayload struct {
	TaskID    string `json:"taskId"`
	Kind      Kind   `json:"kind"`
	Recipient string `json:"recipient"`
	Username  string `json:"username"`
}

// NewManager は Manager を初期化します。
func NewManager(redisURL string, deliveryStore *Store, sender Sender, logger *log.Logger) (*Manager, error) {
	if deliveryStore == nil {
		return nil, errors.New("deliveryStore is nil")
	}
	if sender == nil {
		return nil, errors.New("sender is nil")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				"mail": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client:   client,
		enqueuer: client,
		server:   server,
		mux:      mux,
		store:    deliveryStore,
		sender:   sender,
		logger:   logger,
	}
	mux.HandleFunc(taskTypeMail, manager.handleMailTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && err != asynq.ErrServerClosed {
			if m.logger != nil {
				m.logger.Printf("asynq server stopped with error: %v", err)
			} else {
				log.Printf("asynq server stopped with error: %v", err)
			}
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	m.client.Close()
	return nil
}

// NotifySignup は登録完了メールを投入します。
func (m *Manager) NotifySignup(ctx context.Context, user *store.User) error {
	return m.enqueue(ctx, KindWelcome, user)
}

// NotifyPasswordChanged はパスワード変更通知を投入します。
func (m *Manager) NotifyPasswordChanged(ctx context.Context, user *store.User) error {
	return m.enqueue(ctx, KindPasswordChanged, user)
}

// NotifyAccountDeleted は退会通知を投入します。
func (m *Manager) NotifyAccountDeleted(ctx context.Context, user *store.User) error {
	return m.enqueue(ctx, KindAccountDeleted, user)
}

func (m *Manager) enqueue(ctx context.Context, kind Kind, user *store.User) error {
	if user == nil {
		return errors.New("user is nil")
	}
	// メールアドレス未登録のユーザーには送れないが、エラーにもしない
	if user.Email == "" {
		return nil
	}

	payload := &TaskPayload{
		TaskID:    uuid.NewString(),
		Kind:      kind,
		Recipient: user.Email,
		Username:  user.Username,
	}
	record := &Record{
		TaskID:    payload.TaskID,
		Kind:      kind,
		Recipient: payload.Recipient,
		Status:    StatusQueued,
	}
	if err := m.store.Upsert(ctx, record); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = m.enqueuer.EnqueueContext(ctx, asynq.NewTask(taskTypeMail, data), asynq.Queue("mail"))
	return err
}

func (m *Manager) handleMailTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid mail task payload: %w", err)
	}

	// 再配送されたタスクでも同じメールを二重送信しない
	record, err := m.store.Get(ctx, payload.TaskID)
	if err != nil {
		return err
	}
	if record != nil && record.Status == StatusSent {
		return nil
	}

	subject, body := buildMessage(payload.Kind, payload.Username)
	if err := m.sender.Send(ctx, payload.Recipient, subject, body); err != nil {
		if markErr := m.store.MarkFailed(ctx, payload.TaskID, err); markErr != nil {
			m.logf("failed to mark delivery %s as failed: %v", payload.TaskID, markErr)
		}
		return err
	}

	if err := m.store.MarkSent(ctx, payload.TaskID); err != nil {
		m.logf("failed to mark delivery %s as sent: %v", payload.TaskID, err)
	}
	return nil
}

func (m *Manager) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// buildMessage は通知種別ごとの件名と本文を組み立てます。
func buildMessage(kind Kind, username string) (subject, body string) {
	switch kind {
	case KindWelcome:
		return "Welcome to Account Portal",
			fmt.Sprintf("Hi %s,\n\nYour account has been created. Welcome aboard!\n", username)
	case KindPasswordChanged:
		return "Your password has been changed",
			fmt.Sprintf("Hi %s,\n\nThis is a confirmation that the password for your account has just been changed.\n", username)
	case KindAccountDeleted:
		return "Your account has been deleted",
			fmt.Sprintf("Hi %s,\n\nYour account and all associated data have been deleted.\n", username)
	default:
		return "Account Portal notification",
			fmt.Sprintf("Hi %s,\n\nThere is an update on your account.\n", username)
	}
}
