// Package mail abstracts outbound verification mail so the service layer
// never talks to a mail provider directly.
package mail

import (
	"context"
	"log/slog"
)

// Dispatcher delivers verification mail. Implementations must treat the
// token as a secret: it grants verification for the target identity.
type Dispatcher interface {
	SendVerification(ctx context.Context, email, token string) error
}

// LogDispatcher writes verification mail to the structured log instead of
// sending it. Useful for development and tests; swap in a real provider
// implementation for production.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) SendVerification(ctx context.Context, email, token string) error {
	d.logger.InfoContext(ctx, "verification mail dispatched",
		slog.String("email", email),
		slog.String("token", token),
	)
	return nil
}
