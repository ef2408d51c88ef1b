package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionBody(content string) string {
	return `{"choices":[{"message":{"content":"` + content + `"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`
}

func TestProvider_Chat_Text(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(completionBody("4")))
	}))
	defer srv.Close()

	p := NewProvider(Options{APIKey: "test-key", APIBase: srv.URL, Model: "test-model"})
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "2+2?"}},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Content)
	assert.Equal(t, "4", *resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.False(t, resp.HasToolCalls())
	assert.Equal(t, 15, resp.Usage["total_tokens"])
}

func TestProvider_Chat_ToolCalls(t *testing.T) {
	body := `{"choices":[{"message":{"content":null,"tool_calls":[{"id":"call_1","function":{"name":"read_file","arguments":"{\"path\":\"x.txt\"}"}}]},"finish_reason":"tool_calls"}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	p := NewProvider(Options{APIBase: srv.URL, Model: "m"})
	resp, err := p.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	require.True(t, resp.HasToolCalls())
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "read_file", resp.ToolCalls[0].Name)
	assert.Equal(t, "x.txt", resp.ToolCalls[0].Arguments["path"])
}

func TestProvider_Chat_HTTPErrorIsTerminalContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewProvider(Options{APIBase: srv.URL, Model: "m"})
	resp, err := p.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "error", resp.FinishReason)
	require.NotNil(t, resp.Content)
	assert.Contains(t, *resp.Content, "HTTP 429")
}

func TestProvider_Chat_ConnectionRefusedIsTerminalContent(t *testing.T) {
	p := NewProvider(Options{APIBase: "http://127.0.0.1:1", Model: "m"})
	resp, err := p.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "error", resp.FinishReason)
	require.NotNil(t, resp.Content)
	assert.Contains(t, *resp.Content, "Error calling LLM")
}

func TestProvider_Chat_FallbackSkipsFailedModel(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		seen = append(seen, req.Model)
		mu.Unlock()

		if req.Model == "slow-model" {
			time.Sleep(300 * time.Millisecond)
		}
		w.Write([]byte(completionBody("ok")))
	}))
	defer srv.Close()

	p := NewProvider(Options{
		APIBase:        srv.URL,
		Model:          "slow-model",
		FallbackModels: []string{"slow-model", "fast-model"},
	})
	p.HTTPClient.Timeout = 100 * time.Millisecond

	resp, err := p.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	require.NotNil(t, resp.Content)
	assert.Equal(t, "ok", *resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)

	mu.Lock()
	defer mu.Unlock()
	// The fallback equal to the failed primary is skipped
	assert.Equal(t, []string{"slow-model", "fast-model"}, seen)
}

func TestProvider_Chat_AllModelsExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(completionBody("late")))
	}))
	defer srv.Close()

	p := NewProvider(Options{
		APIBase:        srv.URL,
		Model:          "a",
		FallbackModels: []string{"b"},
	})
	p.HTTPClient.Timeout = 50 * time.Millisecond

	resp, err := p.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "error", resp.FinishReason)
	require.NotNil(t, resp.Content)
	assert.Contains(t, *resp.Content, "all models failed")
}

func TestParseToolArguments_Malformed(t *testing.T) {
	args := parseToolArguments(`{"path": "x.txt"`)
	assert.Equal(t, map[string]any{"raw": `{"path": "x.txt"`}, args)
}

func TestParseToolArguments_Empty(t *testing.T) {
	assert.Empty(t, parseToolArguments(""))
	assert.Empty(t, parseToolArguments("  "))
}

func TestParseToolArguments_Valid(t *testing.T) {
	args := parseToolArguments(`{"n": 2}`)
	assert.Equal(t, 2.0, args["n"])
}

func TestParseResponse_NoChoices(t *testing.T) {
	resp := parseResponse([]byte(`{"choices":[]}`))
	assert.Equal(t, "error", resp.FinishReason)
	assert.Contains(t, *resp.Content, "no choices")
}

func TestResolveModelName(t *testing.T) {
	// Direct provider APIs get the bare model name
	assert.Equal(t, "deepseek-chat", resolveModelName("deepseek/deepseek-chat", ""))
	// Gateways keep the prefixed form
	assert.Equal(t, "anthropic/claude-sonnet-4-5",
		resolveModelName("anthropic/claude-sonnet-4-5", "https://openrouter.ai/api/v1"))
}
