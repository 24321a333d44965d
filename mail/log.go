package mail

import (
	"context"
	"log/slog"
)

// LogMailer logs codes instead of sending them. Never use it in production:
// the raw code ends up in the log stream.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) SendCode(ctx context.Context, destination, code string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "development mailer: otp not delivered", "to", destination, "code", code)
	return nil
}
