package auth

import (
	"context"

	"go.uber.org/zap"
)

// Mail is an outgoing transactional email
type Mail struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers transactional email
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// LogMailer writes mail to the log instead of delivering it
type LogMailer struct {
	from   string
	logger *zap.Logger
}

func NewLogMailer(from string, logger *zap.Logger) *LogMailer {
	return &LogMailer{from: from, logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, mail Mail) error {
	m.logger.Info("📧 Mail queued",
		zap.String("from", m.from),
		zap.String("to", mail.To),
		zap.String("subject", mail.Subject),
		zap.String("body", mail.Body),
	)
	return nil
}
