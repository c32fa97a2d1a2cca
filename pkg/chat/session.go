package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Microwave-WYB/openai-helper/pkg/functions"
	"github.com/Microwave-WYB/openai-helper/pkg/logger"
	"github.com/Microwave-WYB/openai-helper/pkg/providers"
	"github.com/Microwave-WYB/openai-helper/pkg/stats"
)

// ErrCallSkipped is returned by HandleFunction when the user declined the
// function call. The registry is never contacted in that case.
var ErrCallSkipped = errors.New("chat: function call skipped")

// DefaultRetryDelay is the fixed wait between rate-limited send attempts.
const DefaultRetryDelay = 3 * time.Second

// Session drives the request/response cycle for one conversation.
type Session struct {
	provider  providers.Provider
	functions *functions.Registry
	model     string

	// Verbose echoes function-call details locally.
	Verbose bool
	// NoConfirm auto-affirms function calls instead of prompting.
	NoConfirm bool
	// RetryDelay is the fixed backoff applied on a rate-limit signal.
	// There is deliberately no attempt ceiling and no jitter.
	RetryDelay time.Duration
	// Options is passed through to the provider on every request
	// (temperature, max_tokens, ...).
	Options map[string]any
	// Tracker records usage when non-nil.
	Tracker *stats.Tracker
}

func NewSession(provider providers.Provider, registry *functions.Registry, model string) *Session {
	if registry == nil {
		registry = functions.NewRegistry()
	}
	return &Session{
		provider:   provider,
		functions:  registry,
		model:      model,
		RetryDelay: DefaultRetryDelay,
	}
}

// Send transmits messages (plus the registry's schemas when any functions are
// registered) and returns the reply. A rate-limit signal is absorbed here:
// the call sleeps RetryDelay and resends the identical request, indefinitely,
// until the service answers or ctx is cancelled.
func (s *Session) Send(ctx context.Context, messages []providers.Message) (*providers.Response, error) {
	var schemas []providers.FunctionSchema
	if s.functions.Len() > 0 {
		schemas = s.functions.Schemas()
	}

	attempt := 0
	for {
		attempt++
		resp, err := s.provider.Chat(ctx, messages, schemas, s.model, s.Options)
		if err == nil {
			if resp.Usage != nil && s.Tracker != nil {
				s.Tracker.RecordUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
			}
			return resp, nil
		}
		if !errors.Is(err, providers.ErrRateLimited) {
			return nil, err
		}

		logger.WarnCF("chat", "Rate limited, retrying",
			map[string]any{
				"attempt":    attempt,
				"delay_secs": s.RetryDelay.Seconds(),
				"model":      s.model,
			})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.RetryDelay):
		}
	}
}

// HandleFunction resolves one requested function call. With confirm=false it
// short-circuits with ErrCallSkipped. An unknown function name is a hard
// failure. A failing callable is not an error here: the failure text is
// rendered into the returned message so the model sees it on the next send.
func (s *Session) HandleFunction(ctx context.Context, call *providers.FunctionCall, confirm bool) (providers.Message, error) {
	if !confirm {
		return providers.Message{}, ErrCallSkipped
	}

	args, err := call.ParseArguments()
	if err != nil {
		return providers.Message{}, err
	}

	callID := providers.NewCallID()
	logger.InfoCF("chat", fmt.Sprintf("Calling function: %s", call.Name),
		map[string]any{"call_id": callID, "name": call.Name})

	output, err := s.functions.Call(call.Name, args)
	if err != nil {
		if errors.Is(err, functions.ErrUnknownFunction) {
			return providers.Message{}, err
		}
		// Inform the model rather than aborting the turn.
		output = "error: " + err.Error()
		logger.WarnCF("chat", "Function execution failed",
			map[string]any{"call_id": callID, "name": call.Name, "error": err.Error()})
	}

	argsJSON, _ := json.Marshal(args)
	content := fmt.Sprintf("Function input:\n%s\nFunction output:\n%s", argsJSON, output)

	if s.Verbose {
		logger.InfoCF("chat", "Function completed",
			map[string]any{
				"call_id":    callID,
				"name":       call.Name,
				"output_len": len(output),
			})
	}

	return providers.Message{
		Role:    providers.RoleFunction,
		Name:    call.Name,
		Content: content,
	}, nil
}
