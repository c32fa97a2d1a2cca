package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Microwave-WYB/openai-helper/pkg/logger"
)

// ErrRateLimited marks a 429 (or equivalent error body) from the service.
// Callers are expected to back off and resend; the client never retries itself.
var ErrRateLimited = errors.New("rate limited")

const defaultAPIBase = "https://api.openai.com/v1"

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint
// using the legacy function-calling API (top-level "functions" field).
type OpenAIProvider struct {
	apiKey  string
	apiBase string
	client  *http.Client
}

// NewOpenAIProvider creates a provider. apiBase and proxy may be empty.
func NewOpenAIProvider(apiKey, apiBase, proxy string) *OpenAIProvider {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}

	transport := http.DefaultTransport
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		} else {
			logger.WarnCF("providers", "Invalid proxy URL, using default transport",
				map[string]any{"proxy": proxy, "error": err.Error()})
		}
	}

	return &OpenAIProvider{
		apiKey:  apiKey,
		apiBase: strings.TrimRight(apiBase, "/"),
		client: &http.Client{
			Timeout:   120 * time.Second,
			Transport: transport,
		},
	}
}

type chatRequest struct {
	Model     string           `json:"model"`
	Messages  []Message        `json:"messages"`
	Functions []FunctionSchema `json:"functions,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content      string        `json:"content"`
			FunctionCall *FunctionCall `json:"function_call"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func applyOptions(req *chatRequest, options map[string]any) {
	for key, val := range options {
		switch key {
		case "temperature":
			if f, ok := toFloat(val); ok {
				req.Temperature = &f
			}
		case "max_tokens":
			if f, ok := toFloat(val); ok {
				n := int(f)
				req.MaxTokens = &n
			}
		}
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, functions []FunctionSchema, model string, options map[string]any) (*Response, error) {
	reqBody := chatRequest{
		Model:     model,
		Messages:  messages,
		Functions: functions,
	}
	applyOptions(&reqBody, options)

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	logger.DebugCF("providers", "Chat request",
		map[string]any{
			"model":           model,
			"messages_count":  len(messages),
			"functions_count": len(functions),
		})

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, strings.TrimSpace(string(body)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode chat response (status %d): %w", httpResp.StatusCode, err)
	}

	if parsed.Error != nil {
		if strings.Contains(parsed.Error.Type, "rate_limit") {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, parsed.Error.Message)
		}
		return nil, fmt.Errorf("api error (status %d): %s", httpResp.StatusCode, parsed.Error.Message)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(body)))
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("empty choices in response")
	}

	choice := parsed.Choices[0]
	resp := &Response{
		Content:      choice.Message.Content,
		FunctionCall: choice.Message.FunctionCall,
		FinishReason: choice.FinishReason,
		Usage:        parsed.Usage,
	}

	// Some compatible backends omit finish_reason but still return a call.
	if resp.FunctionCall != nil && resp.FinishReason == "" {
		resp.FinishReason = "function_call"
	}

	return resp, nil
}

// NewCallID mints an identifier for logging a function-call round trip.
func NewCallID() string {
	return "call_" + uuid.NewString()
}
