package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/resendlabs/resend-go"
)

// EmailOpts configures an EmailNotifier.
type EmailOpts struct {
	APIKey   string
	From     string
	FromName string
	To       []string
}

// EmailOption defines a configuration option for EmailNotifier.
type EmailOption func(*EmailOpts)

// WithResendAPIKey sets the Resend API key.
func WithResendAPIKey(key string) EmailOption {
	return func(o *EmailOpts) { o.APIKey = key }
}

// WithEmailFrom sets the sender address and display name.
func WithEmailFrom(addr, name string) EmailOption {
	return func(o *EmailOpts) { o.From, o.FromName = addr, name }
}

// WithEmailTo sets the recipients. Empty entries are dropped.
func WithEmailTo(addrs ...string) EmailOption {
	return func(o *EmailOpts) {
		for _, a := range addrs {
			if a = strings.TrimSpace(a); a != "" {
				o.To = append(o.To, a)
			}
		}
	}
}

// EmailNotifier sends alerts through Resend.
type EmailNotifier struct {
	send func(*resend.SendEmailRequest) error
	from string
	to   []string
}

// NewEmailNotifier creates a Resend-backed notifier.
func NewEmailNotifier(opts ...EmailOption) (*EmailNotifier, error) {
	cfg := EmailOpts{FromName: "MindMate"}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewEmailNotifier config loaded",
		"APIKey_set", cfg.APIKey != "", "From_set", cfg.From != "", "recipients", len(cfg.To))
	if cfg.APIKey == "" || cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("%w: resend api key, sender and recipient are required", ErrNotConfigured)
	}
	client := resend.NewClient(cfg.APIKey)
	return newEmailNotifier(func(req *resend.SendEmailRequest) error {
		_, err := client.Emails.Send(req)
		return err
	}, cfg), nil
}

func newEmailNotifier(send func(*resend.SendEmailRequest) error, cfg EmailOpts) *EmailNotifier {
	from := cfg.From
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
	}
	return &EmailNotifier{send: send, from: from, to: cfg.To}
}

// Alert implements Notifier.
func (n *EmailNotifier) Alert(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := &resend.SendEmailRequest{
		From:    n.from,
		To:      n.to,
		Subject: subject,
		Text:    body,
		Html:    "<pre>" + html.EscapeString(body) + "</pre>",
	}
	if err := n.send(req); err != nil {
		slog.Error("EmailNotifier.Alert failed", "error", err, "recipients", len(n.to))
		return fmt.Errorf("failed to send alert email via Resend: %w", err)
	}
	slog.Debug("EmailNotifier.Alert sent", "recipients", len(n.to))
	return nil
}
