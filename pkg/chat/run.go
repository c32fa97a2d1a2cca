package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Microwave-WYB/openai-helper/pkg/history"
	"github.com/Microwave-WYB/openai-helper/pkg/logger"
	"github.com/Microwave-WYB/openai-helper/pkg/providers"
)

const (
	userPrompt      = "User:\n    "
	assistantPrompt = "Assistant:\n    %s\n"
	confirmPrompt   = "Confirm function call? [Y/n]: "
)

// Run drives the interactive terminal session: read input, send, handle any
// requested function calls, render the reply, repeat. It returns when the
// user types "exit", input reaches EOF, or ctx is cancelled — all of which
// end the whole session cleanly.
func (s *Session) Run(ctx context.Context, hist *history.Manager, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Starting chat session. Type 'exit' to exit.")

	lines := readLines(in)

	for {
		fmt.Fprint(out, userPrompt)
		userMessage, ok := s.readLine(ctx, lines)
		if !ok {
			fmt.Fprintln(out, "\nEnding chat session.")
			return nil
		}
		if strings.EqualFold(strings.TrimSpace(userMessage), "exit") {
			fmt.Fprintln(out, "Ending chat session.")
			return nil
		}

		if s.Tracker != nil {
			s.Tracker.RecordPrompt()
		}

		if err := hist.Add(providers.Message{Role: providers.RoleUser, Content: userMessage}); err != nil {
			// The offending turn is aborted; the session continues.
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}

		resp, err := s.Send(ctx, hist.Messages())
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(out, "Ending chat session.")
				return nil
			}
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}

		if resp.Content != "" {
			fmt.Fprintf(out, assistantPrompt, resp.Content)
		}

		// Function-call cycle: execute, fold the result into the history,
		// resend, until the model answers with plain text.
		for resp.RequestedFunctionCall() {
			call := resp.FunctionCall
			fmt.Fprintf(out, "Calling function: %s\n", call.Name)
			fmt.Fprintf(out, "Arguments: %s\n", call.Arguments)

			confirm, alive := s.confirmCall(ctx, lines, out)
			if !alive {
				fmt.Fprintln(out, "\nEnding chat session.")
				return nil
			}

			resultMsg, err := s.HandleFunction(ctx, call, confirm)
			if errors.Is(err, ErrCallSkipped) {
				fmt.Fprintln(out, "Function call skipped.")
				break
			}
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				break
			}

			if err := hist.Add(resultMsg); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				break
			}

			resp, err = s.Send(ctx, hist.Messages())
			if err != nil {
				if ctx.Err() != nil {
					fmt.Fprintln(out, "Ending chat session.")
					return nil
				}
				fmt.Fprintf(out, "Error: %v\n", err)
				break
			}

			if resp.Content != "" {
				fmt.Fprintf(out, assistantPrompt, resp.Content)
			}
		}
	}
}

// confirmCall obtains the yes/no decision. Empty input means yes. The second
// return is false when input ended or the context was cancelled.
func (s *Session) confirmCall(ctx context.Context, lines <-chan string, out io.Writer) (confirm, alive bool) {
	if s.NoConfirm {
		return true, true
	}

	for {
		fmt.Fprint(out, confirmPrompt)
		answer, ok := s.readLine(ctx, lines)
		if !ok {
			return false, false
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "":
			return true, true
		case "n":
			return false, true
		}
	}
}

// readLine waits for the next input line or session termination.
func (s *Session) readLine(ctx context.Context, lines <-chan string) (string, bool) {
	select {
	case <-ctx.Done():
		logger.DebugCF("chat", "Session interrupted", nil)
		return "", false
	case line, ok := <-lines:
		if !ok {
			return "", false
		}
		return line, true
	}
}

// readLines pumps input lines into a channel so the loop can select on both
// input and cancellation. The channel closes on EOF.
func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
