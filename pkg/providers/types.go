package providers

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message roles accepted on the wire and in the history log.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleFunction  = "function"
)

// Message is one conversational turn. Name is set only for function-result
// messages, where it names the invoked function.
type Message struct {
	Role    string `json:"role"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// FunctionCall is a function invocation requested by the model. Arguments is
// the raw JSON object string exactly as the model produced it.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ParseArguments decodes the raw arguments JSON into a map.
func (fc *FunctionCall) ParseArguments() (map[string]any, error) {
	args := make(map[string]any)
	if fc.Arguments == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
		return nil, fmt.Errorf("parse arguments for %s: %w", fc.Name, err)
	}
	return args, nil
}

// FunctionSchema advertises one callable to the model.
type FunctionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// Usage reports token consumption for one request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the assistant's reply to one request.
type Response struct {
	Content      string
	FunctionCall *FunctionCall
	FinishReason string
	Usage        *Usage
}

// RequestedFunctionCall reports whether the model stopped to invoke a function.
func (r *Response) RequestedFunctionCall() bool {
	return r.FinishReason == "function_call" && r.FunctionCall != nil
}

// Provider is the transport to a chat-completion service. Options are passed
// through to the wire request (temperature, max_tokens, ...).
type Provider interface {
	Chat(ctx context.Context, messages []Message, functions []FunctionSchema, model string, options map[string]any) (*Response, error)
}
