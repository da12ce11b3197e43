package workflow

import (
	"context"
	"log/slog"
)

// Message — письмо, отправляемое действием send_email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Notifier доставляет уведомления. Транспорт (SMTP, API) внешний.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier пишет уведомления в лог вместо отправки.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier создаёт LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.logger.Info("email notification", "to", msg.To, "subject", msg.Subject, "body_len", len(msg.Body))
	return nil
}
