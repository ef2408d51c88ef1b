package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

// knownAPIBases maps a model-name prefix to the provider's own endpoint
// and API-key environment variable, used when no explicit base is set.
var knownAPIBases = []struct {
	Prefix  string
	APIBase string
	EnvKey  string
}{
	{"openrouter/", "https://openrouter.ai/api/v1", "OPENROUTER_API_KEY"},
	{"deepseek/", "https://api.deepseek.com/v1", "DEEPSEEK_API_KEY"},
	{"openai/", "https://api.openai.com/v1", "OPENAI_API_KEY"},
	{"anthropic/", "https://openrouter.ai/api/v1", "OPENROUTER_API_KEY"},
}

// Provider calls any OpenAI-compatible chat completions endpoint.
// Transport and API failures are rendered as terminal responses with
// FinishReason "error"; Chat only returns a Go error for programmer
// mistakes (unmarshalable request bodies).
type Provider struct {
	APIKey         string
	APIBase        string
	Model          string
	FallbackModels []string
	ExtraHeaders   map[string]string
	HTTPClient     *http.Client
}

// Options configures a Provider.
type Options struct {
	APIKey         string
	APIBase        string
	Model          string
	FallbackModels []string
	Timeout        time.Duration
}

// NewProvider creates a Provider.
func NewProvider(opts Options) *Provider {
	model := opts.Model
	if model == "" {
		model = "anthropic/claude-sonnet-4-5"
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Provider{
		APIKey:         opts.APIKey,
		APIBase:        opts.APIBase,
		Model:          model,
		FallbackModels: opts.FallbackModels,
		HTTPClient:     &http.Client{Timeout: timeout},
	}
}

// DefaultModel satisfies the LLMProvider interface.
func (p *Provider) DefaultModel() string { return p.Model }

// Chat sends a chat completion request, falling back through
// FallbackModels on timeout-class transport failures. A fallback equal
// to the model that just failed is skipped.
func (p *Provider) Chat(ctx context.Context, req ChatRequest) (*LLMResponse, error) {
	model := req.Model
	if model == "" {
		model = p.Model
	}

	resp, err := p.chatOnce(ctx, model, req)
	if err == nil {
		return resp, nil
	}
	if !isTimeout(err) {
		return errorResponse(fmt.Sprintf("Error calling LLM: %v", err)), nil
	}

	lastErr := err
	failed := model
	for _, fb := range p.FallbackModels {
		if fb == failed {
			continue
		}
		resp, err = p.chatOnce(ctx, fb, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		failed = fb
		if !isTimeout(err) {
			break
		}
	}
	return errorResponse(fmt.Sprintf("Error calling LLM (all models failed): %v", lastErr)), nil
}

// chatOnce performs a single request against one model. The returned
// error is transport-level only; API-level failures come back as a
// terminal LLMResponse.
func (p *Provider) chatOnce(ctx context.Context, model string, req ChatRequest) (*LLMResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens < 1 {
		maxTokens = 4096
	}

	body := map[string]any{
		"model":       resolveModelName(model, p.APIBase),
		"messages":    req.Messages,
		"max_tokens":  maxTokens,
		"temperature": req.Temperature,
	}
	if len(req.Tools) > 0 {
		body["tools"] = req.Tools
		body["tool_choice"] = "auto"
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	apiBase, apiKey := p.resolveEndpoint(model)
	endpoint := strings.TrimRight(apiBase, "/") + "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}
	for k, v := range p.ExtraHeaders {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return errorResponse(fmt.Sprintf("Error calling LLM (HTTP %d): %s", resp.StatusCode, string(respBody))), nil
	}

	return parseResponse(respBody), nil
}

// resolveEndpoint picks the API base and key, consulting the known-base
// table when the provider has no explicit configuration.
func (p *Provider) resolveEndpoint(model string) (apiBase, apiKey string) {
	apiBase = p.APIBase
	apiKey = p.APIKey
	if apiBase == "" {
		for _, k := range knownAPIBases {
			if strings.HasPrefix(model, k.Prefix) {
				apiBase = k.APIBase
				if apiKey == "" {
					apiKey = os.Getenv(k.EnvKey)
				}
				break
			}
		}
	}
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	return apiBase, apiKey
}

// resolveModelName strips the "provider/" prefix when calling a
// provider's own API directly; gateways like OpenRouter keep it.
func resolveModelName(model, explicitBase string) string {
	base := explicitBase
	if base == "" {
		for _, k := range knownAPIBases {
			if strings.HasPrefix(model, k.Prefix) {
				base = k.APIBase
				break
			}
		}
	}
	if strings.Contains(base, "openrouter") {
		return model
	}
	if idx := strings.Index(model, "/"); idx >= 0 {
		return model[idx+1:]
	}
	return model
}

// openAIResponse mirrors the OpenAI chat completion response structure.
type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content   *string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func parseResponse(body []byte) *LLMResponse {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return errorResponse(fmt.Sprintf("Error parsing response: %v", err))
	}
	if len(resp.Choices) == 0 {
		return errorResponse("Error: no choices in response")
	}

	choice := resp.Choices[0]
	msg := choice.Message

	var toolCalls []ToolCallRequest
	for _, tc := range msg.ToolCalls {
		args := parseToolArguments(tc.Function.Arguments)
		toolCalls = append(toolCalls, ToolCallRequest{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	usage := map[string]int{}
	if resp.Usage != nil {
		usage["prompt_tokens"] = resp.Usage.PromptTokens
		usage["completion_tokens"] = resp.Usage.CompletionTokens
		usage["total_tokens"] = resp.Usage.TotalTokens
	}

	finishReason := choice.FinishReason
	if finishReason == "" {
		finishReason = "stop"
	}

	return &LLMResponse{
		Content:      msg.Content,
		ToolCalls:    toolCalls,
		FinishReason: finishReason,
		Usage:        usage,
	}
}

// parseToolArguments decodes the arguments payload. Payloads that are not
// valid JSON objects are wrapped as {"raw": <original>} so the intended
// call is never silently lost.
func parseToolArguments(raw string) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{"raw": raw}
	}
	return args
}

// isTimeout classifies transport errors that warrant a fallback attempt.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func errorResponse(msg string) *LLMResponse {
	return &LLMResponse{
		Content:      strPtr(msg),
		FinishReason: "error",
	}
}

func strPtr(s string) *string { return &s }
