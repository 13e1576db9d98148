package notify

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// maxSMSBody keeps an alert within a few SMS segments.
const maxSMSBody = 480

// SMSOpts holds configuration options for the Twilio SMS notifier.
type SMSOpts struct {
	AccountSID string
	AuthToken  string
	From       string
	To         []string
}

// SMSOption defines a configuration option for SMSNotifier.
type SMSOption func(*SMSOpts)

func WithAccountSID(sid string) SMSOption {
	return func(o *SMSOpts) { o.AccountSID = sid }
}

func WithAuthToken(token string) SMSOption {
	return func(o *SMSOpts) { o.AuthToken = token }
}

func WithSMSFrom(from string) SMSOption {
	return func(o *SMSOpts) { o.From = from }
}

func WithSMSTo(numbers ...string) SMSOption {
	return func(o *SMSOpts) {
		for _, n := range numbers {
			if n != "" {
				o.To = append(o.To, n)
			}
		}
	}
}

// SMSNotifier texts alerts to on-call operators through Twilio.
type SMSNotifier struct {
	send func(*twilioApi.CreateMessageParams) error
	from string
	to   []string
}

// NewSMSNotifier creates a Twilio-backed notifier.
func NewSMSNotifier(opts ...SMSOption) (*SMSNotifier, error) {
	var cfg SMSOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Twilio SMS config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"From_set", cfg.From != "",
		"recipients", len(cfg.To))

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("%w: account SID and auth token must be provided", ErrNotConfigured)
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("%w: sender and recipient numbers must be provided", ErrNotConfigured)
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &SMSNotifier{
		send: func(p *twilioApi.CreateMessageParams) error {
			_, err := client.Api.CreateMessage(p)
			return err
		},
		from: cfg.From,
		to:   cfg.To,
	}, nil
}

// Alert implements Notifier. Every recipient is attempted; the first error is
// returned.
func (n *SMSNotifier) Alert(ctx context.Context, subject, body string) error {
	text := truncateRunes(subject+"\n"+body, maxSMSBody)
	var firstErr error
	for _, to := range n.to {
		if err := ctx.Err(); err != nil {
			return err
		}
		params := &twilioApi.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(n.from)
		params.SetBody(text)
		if err := n.send(params); err != nil {
			slog.Error("SMSNotifier.Alert failed", "to", to, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to send alert SMS to %s: %w", to, err)
			}
			continue
		}
		slog.Debug("SMSNotifier.Alert sent", "to", to)
	}
	return firstErr
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + "…"
}
