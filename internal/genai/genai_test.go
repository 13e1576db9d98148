package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp       *openai.ChatCompletion
	err        error
	lastParams openai.ChatCompletionNewParams
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.lastParams = params
	return m.resp, m.err
}

func completion(content string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func newTestClient(m *mockChatService) *Client {
	return &Client{chat: m, model: "test-model", temperature: DefaultTemperature, maxTokens: DefaultMaxTokens}
}

func TestGenerate_Success(t *testing.T) {
	mock := &mockChatService{resp: completion("  Hello World \n")}
	client := newTestClient(mock)
	out, err := client.Generate(context.Background(), "system prompt", "user prompt", 300, 0.7)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got '%s'", out)
	}
	if len(mock.lastParams.Messages) != 2 {
		t.Errorf("expected system and user messages, got %d", len(mock.lastParams.Messages))
	}
	if got := mock.lastParams.MaxCompletionTokens.Value; got != 300 {
		t.Errorf("expected max tokens 300, got %d", got)
	}
}

func TestGenerate_DefaultsApplied(t *testing.T) {
	mock := &mockChatService{resp: completion("ok")}
	client := newTestClient(mock)
	if _, err := client.Generate(context.Background(), "", "user prompt", 0, -1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.lastParams.Messages) != 1 {
		t.Errorf("expected user message only, got %d", len(mock.lastParams.Messages))
	}
	if got := mock.lastParams.MaxCompletionTokens.Value; got != DefaultMaxTokens {
		t.Errorf("expected default max tokens, got %d", got)
	}
	if got := mock.lastParams.Temperature.Value; got != DefaultTemperature {
		t.Errorf("expected default temperature, got %v", got)
	}
}

func TestGenerate_ServiceError(t *testing.T) {
	client := newTestClient(&mockChatService{err: errors.New("service failure")})
	_, err := client.Generate(context.Background(), "sys", "usr", 0, 0.5)
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGenerate_NoChoices(t *testing.T) {
	client := newTestClient(&mockChatService{resp: &openai.ChatCompletion{}})
	_, err := client.Generate(context.Background(), "sys", "usr", 0, 0.5)
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestGenerate_EmptyContent(t *testing.T) {
	client := newTestClient(&mockChatService{resp: completion("   ")})
	_, err := client.Generate(context.Background(), "sys", "usr", 0, 0.5)
	if !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected empty content error, got %v", err)
	}
}

func TestGenerateJSON_SetsResponseFormat(t *testing.T) {
	mock := &mockChatService{resp: completion(`{"ok":true}`)}
	client := newTestClient(mock)
	out, err := client.GenerateJSON(context.Background(), "sys", "usr")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"ok":true}` {
		t.Errorf("unexpected output %q", out)
	}
	if mock.lastParams.ResponseFormat.OfJSONObject == nil {
		t.Error("expected JSON object response format")
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("gpt-test"), WithMaxTokens(50))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil {
		t.Fatal("expected client instance, got nil")
	}
	if cli.model != "gpt-test" || cli.maxTokens != 50 {
		t.Errorf("options not applied: model=%s maxTokens=%d", cli.model, cli.maxTokens)
	}
}
