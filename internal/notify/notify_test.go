package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/resendlabs/resend-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

func TestEmailNotifier_BuildsRequest(t *testing.T) {
	var got *resend.SendEmailRequest
	n := newEmailNotifier(func(req *resend.SendEmailRequest) error {
		got = req
		return nil
	}, EmailOpts{From: "alerts@example.com", FromName: "MindMate", To: []string{"oncall@example.com"}})

	require.NoError(t, n.Alert(context.Background(), "Critical risk: u1", "score 0.85 <high>"))
	require.NotNil(t, got)
	assert.Equal(t, "MindMate <alerts@example.com>", got.From)
	assert.Equal(t, []string{"oncall@example.com"}, got.To)
	assert.Equal(t, "Critical risk: u1", got.Subject)
	assert.Equal(t, "score 0.85 <high>", got.Text)
	assert.Contains(t, got.Html, "&lt;high&gt;")
}

func TestEmailNotifier_WrapsSendError(t *testing.T) {
	boom := errors.New("rate limited")
	n := newEmailNotifier(func(*resend.SendEmailRequest) error { return boom }, EmailOpts{From: "a@b.c", To: []string{"x@y.z"}})
	err := n.Alert(context.Background(), "s", "b")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestNewEmailNotifier_RequiresSettings(t *testing.T) {
	_, err := NewEmailNotifier(WithResendAPIKey("re_123"), WithEmailTo(" "))
	assert.ErrorIs(t, err, ErrNotConfigured)

	n, err := NewEmailNotifier(WithResendAPIKey("re_123"), WithEmailFrom("a@b.c", ""), WithEmailTo("x@y.z"))
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", n.from)
}

func TestSMSNotifier_SendsToEveryRecipient(t *testing.T) {
	var sent []string
	n := &SMSNotifier{
		from: "+15550000000",
		to:   []string{"+15551111111", "+15552222222"},
		send: func(p *twilioApi.CreateMessageParams) error {
			require.NotNil(t, p.To)
			require.NotNil(t, p.Body)
			sent = append(sent, *p.To)
			if *p.To == "+15551111111" {
				return errors.New("invalid number")
			}
			return nil
		},
	}
	err := n.Alert(context.Background(), "Critical risk", strings.Repeat("x", 1000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "+15551111111")
	assert.Equal(t, []string{"+15551111111", "+15552222222"}, sent)
}

func TestNewSMSNotifier_RequiresCredentials(t *testing.T) {
	_, err := NewSMSNotifier(WithSMSFrom("+1"), WithSMSTo("+2"))
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = NewSMSNotifier(WithAccountSID("AC1"), WithAuthToken("tok"))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", truncateRunes("short", 10))
	out := truncateRunes(strings.Repeat("é", 20), 10)
	assert.Equal(t, 10, len([]rune(out)))
	assert.True(t, strings.HasSuffix(out, "…"))
}

func TestMulti_AttemptsAllAndJoinsErrors(t *testing.T) {
	var calls int
	ok := FuncNotifier(func(context.Context, string, string) error { calls++; return nil })
	bad := FuncNotifier(func(context.Context, string, string) error { calls++; return errors.New("down") })

	err := Multi{bad, nil, ok, LogNotifier{}}.Alert(context.Background(), "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Equal(t, 2, calls)

	assert.NoError(t, Multi{ok}.Alert(context.Background(), "s", "b"))
}
