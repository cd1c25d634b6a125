package mailer

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// Sender はメールを1通送信します。
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender は net/smtp による Sender 実装です。
type SMTPSender struct {
	Addr string // host:port
	From string
}

var _ Sender = (*SMTPSender)(nil)

// Send は SMTP サーバー経由でメールを送信します。認証なしの内部リレーを想定。
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + s.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")
	if err := smtp.SendMail(s.Addr, nil, s.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s failed: %w", to, err)
	}
	return nil
}

// LogSender は SMTP 未設定時に送信内容をログへ出すだけの Sender です。
type LogSender struct{}

var _ Sender = (*LogSender)(nil)

// Send はメールを送信せず内容をログに記録します。
func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	log.Printf("mail (dry-run) to=%s subject=%q", to, subject)
	return nil
}
