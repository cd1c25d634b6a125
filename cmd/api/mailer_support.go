package main

import (
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/account-portal/internal/account"
	"github.com/yourusername/account-portal/internal/config"
	"github.com/yourusername/account-portal/internal/mailer"
)

// setupMailer は通知メールの配信基盤を組み立てます。
// QUEUE_REDIS_URL が空の場合は nil を返し、通知は無効になります。
func setupMailer(cfg *config.Config) (account.Notifier, *mailer.Manager, error) {
	if cfg.QueueRedisURL == "" {
		log.Printf("QUEUE_REDIS_URL is not set; mail notifications are disabled")
		return nil, nil, nil
	}

	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, nil, err
	}
	redisClient := redis.NewClient(opt)

	ttlMinutes := cfg.MailExpireMinutes
	if ttlMinutes <= 0 {
		ttlMinutes = 60 * 24
	}
	deliveryStore := mailer.NewStore(redisClient, time.Duration(ttlMinutes)*time.Minute)

	var sender mailer.Sender
	if cfg.SMTPAddr != "" {
		sender = &mailer.SMTPSender{Addr: cfg.SMTPAddr, From: cfg.SMTPFrom}
	} else {
		log.Printf("SMTP_ADDR is not set; notification mail will be logged only")
		sender = &mailer.LogSender{}
	}

	manager, err := mailer.NewManager(cfg.QueueRedisURL, deliveryStore, sender, log.Default())
	if err != nil {
		return nil, nil, err
	}
	return manager, manager, nil
}
