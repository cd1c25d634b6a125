package mailer

import "time"

// Status はメール配信の状態を表します。
type Status string

const (
	StatusQueued Status = "queued"
	StatusSent   Status = "sent"
	StatusFailed Status = "error"
)

// Kind は通知メールの種別を表します。
type Kind string

const (
	KindWelcome         Kind = "welcome"
	KindPasswordChanged Kind = "password_changed"
	KindAccountDeleted  Kind = "account_deleted"
)

// Record はメール配信の現在状態を表します。
type Record struct {
	TaskID    string    `json:"taskId"`
	Kind      Kind      `json:"kind"`
	Recipient string    `json:"recipient"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
