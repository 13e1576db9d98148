// Package notify delivers operator alerts for critical-risk users over email,
// SMS and the log.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Notifier sends one alert. Implementations must be safe for concurrent use.
type Notifier interface {
	Alert(ctx context.Context, subject, body string) error
}

// ErrNotConfigured is returned by constructors missing required settings.
var ErrNotConfigured = errors.New("notifier not configured")

// LogNotifier writes alerts to the structured log. It is the fallback when no
// delivery channel is configured.
type LogNotifier struct{}

// Alert implements Notifier.
func (LogNotifier) Alert(_ context.Context, subject, body string) error {
	slog.Warn("LogNotifier.Alert: operator alert", "subject", subject, "body", body)
	return nil
}

// Multi fans an alert out to every notifier. Every notifier is attempted; the
// joined error reports the ones that failed.
type Multi []Notifier

// Alert implements Notifier.
func (m Multi) Alert(ctx context.Context, subject, body string) error {
	var errs []error
	for i, n := range m {
		if n == nil {
			continue
		}
		if err := n.Alert(ctx, subject, body); err != nil {
			slog.Error("Multi.Alert: notifier failed", "index", i, "error", err)
			errs = append(errs, fmt.Errorf("notifier %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// FuncNotifier adapts a function to Notifier.
type FuncNotifier func(ctx context.Context, subject, body string) error

// Alert implements Notifier.
func (f FuncNotifier) Alert(ctx context.Context, subject, body string) error {
	return f(ctx, subject, body)
}
