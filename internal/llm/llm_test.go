package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abduznik/AI-PR-Analyzer/internal/config"
	ferrors "github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
	"github.com/abduznik/AI-PR-Analyzer/internal/metrics"
)

func captureServer(t *testing.T, status int, reply string, got *map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
			(*got)["_path"] = r.URL.Path
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(server.Close)
	return server
}

const openAIReply = `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  **Verdict:** Good Push  "}}]}`

func TestOpenAIGenerate(t *testing.T) {
	var got map[string]any
	server := captureServer(t, http.StatusOK, openAIReply, &got)

	g, err := NewOpenAI(config.LLMConfig{APIKey: "k", BaseURL: server.URL + "/", MaxTokens: 100},
		openaiopt.WithMaxRetries(0))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", g.Model())

	out, err := g.Generate(context.Background(), Prompt{
		System: "be strict",
		Messages: []Message{
			{Role: RoleAssistant, Content: "dangling"},
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
			{Role: RoleUser, Content: "review"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "**Verdict:** Good Push", out)

	assert.Equal(t, "/chat/completions", got["_path"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
	assert.Equal(t, "assistant", msgs[2].(map[string]any)["role"])
	assert.InDelta(t, 100, got["max_completion_tokens"], 0)
}

func TestOpenAIErrorsAreClassified(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		category  ferrors.ErrorCategory
		retryable bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, category: ferrors.CategoryAuth},
		{name: "bad request", status: http.StatusBadRequest, category: ferrors.CategoryGenerator},
		{name: "rate limited", status: http.StatusTooManyRequests, category: ferrors.CategoryGenerator, retryable: true},
		{name: "server", status: http.StatusInternalServerError, category: ferrors.CategoryGenerator, retryable: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := captureServer(t, tt.status, `{"error":{"message":"nope","type":"x"}}`, nil)
			g, err := NewOpenAI(config.LLMConfig{APIKey: "k", BaseURL: server.URL + "/"}, openaiopt.WithMaxRetries(0))
			require.NoError(t, err)

			_, err = g.Generate(context.Background(), UserPrompt("x"))
			require.Error(t, err)
			assert.True(t, ferrors.HasCategory(err, tt.category), "got %s", ferrors.GetCategory(err))
			assert.Equal(t, tt.retryable, ferrors.IsRetryable(err))
		})
	}
}

func TestOpenAIEmptyChoice(t *testing.T) {
	server := captureServer(t, http.StatusOK, `{"id":"c","object":"chat.completion","created":1,"model":"m","choices":[]}`, nil)
	g, err := NewOpenAI(config.LLMConfig{APIKey: "k", BaseURL: server.URL + "/"}, openaiopt.WithMaxRetries(0))
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), UserPrompt("x"))
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryGenerator))
}

const anthropicReply = `{"id":"m1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
"content":[{"type":"text","text":"Part one. "},{"type":"text","text":"Part two."}],
"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":2}}`

func TestAnthropicGenerate(t *testing.T) {
	var got map[string]any
	server := captureServer(t, http.StatusOK, anthropicReply, &got)

	g, err := NewAnthropic(config.LLMConfig{APIKey: "k", BaseURL: server.URL + "/"}, anthropicopt.WithMaxRetries(0))
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), Prompt{
		System:   "sys",
		Messages: []Message{{Role: RoleUser, Content: "a"}, {Role: RoleUser, Content: "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Part one. Part two.", out)

	assert.Equal(t, "/v1/messages", got["_path"])
	assert.Equal(t, defaultAnthropicModel, got["model"])
	assert.InDelta(t, defaultMaxTokens, got["max_tokens"], 0)
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 1, "consecutive user turns are merged")
	require.NotNil(t, got["system"])
}

func TestAnthropicErrorIsClassified(t *testing.T) {
	server := captureServer(t, http.StatusUnauthorized, `{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`, nil)
	g, err := NewAnthropic(config.LLMConfig{APIKey: "k", BaseURL: server.URL + "/"}, anthropicopt.WithMaxRetries(0))
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), UserPrompt("x"))
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryAuth))
}

func TestNewSelectsProvider(t *testing.T) {
	g, err := New(config.LLMConfig{Provider: config.ProviderAnthropic, APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &Anthropic{}, g)

	g, err = New(config.LLMConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, g)

	_, err = New(config.LLMConfig{Provider: "gemini"})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestNormalizeMessages(t *testing.T) {
	got := normalizeMessages([]Message{
		{Role: RoleAssistant, Content: "lead"},
		{Role: RoleUser, Content: " "},
		{Role: "system", Content: "odd"},
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, Content: "a"},
	})
	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "odd\n\nq"},
		{Role: RoleAssistant, Content: "a"},
	}, got)
}

type stubGenerator struct {
	out string
	err error
}

func (s stubGenerator) Generate(context.Context, Prompt) (string, error) { return s.out, s.err }
func (s stubGenerator) Provider() string                                  { return "stub" }
func (s stubGenerator) Model() string                                     { return "stub-1" }

type generatorRecorder struct {
	metrics.NoopRecorder
	provider string
	result   metrics.ResultLabel
	calls    int
}

func (r *generatorRecorder) ObserveGeneratorDuration(provider string, _ time.Duration, result metrics.ResultLabel) {
	r.provider = provider
	r.result = result
	r.calls++
}

func TestInstrumentedRecordsOutcome(t *testing.T) {
	rec := &generatorRecorder{}

	out, err := Instrument(stubGenerator{out: "ok"}, rec, nil).Generate(context.Background(), UserPrompt("x"))
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "stub", rec.provider)
	assert.Equal(t, metrics.ResultSuccess, rec.result)

	_, err = Instrument(stubGenerator{err: ferrors.GeneratorError("down").Build()}, rec, nil).
		Generate(context.Background(), UserPrompt("x"))
	require.Error(t, err)
	assert.Equal(t, metrics.ResultFailed, rec.result)
	assert.Equal(t, 2, rec.calls)
}

func TestInstrumentedClassifiesPlainErrors(t *testing.T) {
	plain := errors.New("socket closed")
	_, err := Instrument(stubGenerator{err: plain}, nil, nil).Generate(context.Background(), UserPrompt("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, plain)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryGenerator))
	assert.True(t, ferrors.IsExternal(err))

	classified := ferrors.AuthError("bad key").Build()
	_, err = Instrument(stubGenerator{err: classified}, nil, nil).Generate(context.Background(), UserPrompt("x"))
	assert.Same(t, classified, err)
}
