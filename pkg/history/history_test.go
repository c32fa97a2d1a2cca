package history

import (
	"errors"
	"testing"

	"github.com/Microwave-WYB/openai-helper/pkg/providers"
	"github.com/Microwave-WYB/openai-helper/pkg/tokenizer"
)

// byteCounter costs one token per byte of content, so test messages can be
// sized exactly by their length.
var byteCounter = tokenizer.CounterFunc(func(text string) int { return len(text) })

func user(content string) providers.Message {
	return providers.Message{Role: providers.RoleUser, Content: content}
}

func mustManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg, byteCounter)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func mustAdd(t *testing.T, m *Manager, msgs ...providers.Message) {
	t.Helper()
	for _, msg := range msgs {
		if err := m.Add(msg); err != nil {
			t.Fatalf("Add(%q) failed: %v", msg.Content, err)
		}
	}
}

func contents(msgs []providers.Message) []string {
	out := make([]string, len(msgs))
	for i, msg := range msgs {
		out[i] = msg.Content
	}
	return out
}

func assertWindow(t *testing.T, m *Manager, want ...string) {
	t.Helper()
	got := contents(m.Messages())
	if len(got) != len(want) {
		t.Fatalf("window = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("window = %v, want %v", got, want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Config{TokenThreshold: 100, MaxTokens: 200, Method: MethodFIFO, KeepTop: 1, KeepBottom: 2}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid fifo", func(c *Config) {}, true},
		{"valid summarize", func(c *Config) { c.Method = MethodSummarize }, true},
		{"negative keep_top", func(c *Config) { c.KeepTop = -1 }, false},
		{"negative keep_bottom", func(c *Config) { c.KeepBottom = -1 }, false},
		{"negative threshold", func(c *Config) { c.TokenThreshold = -1 }, false},
		{"threshold above max_tokens", func(c *Config) { c.TokenThreshold = 201 }, false},
		{"unknown method", func(c *Config) { c.Method = "lru" }, false},
		{"empty method", func(c *Config) { c.Method = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("Validate() = nil, want error")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
				}
			}
		})
	}
}

func TestAddRejectsInvalidMessages(t *testing.T) {
	cfg := Config{TokenThreshold: 10, MaxTokens: 10, Method: MethodFIFO, KeepTop: 1, KeepBottom: 2}

	tests := []struct {
		name string
		msg  providers.Message
	}{
		{"unknown role", providers.Message{Role: "tool", Content: "x"}},
		{"empty role", providers.Message{Content: "x"}},
		{"name on user message", providers.Message{Role: providers.RoleUser, Name: "f", Content: "x"}},
		{"name on assistant message", providers.Message{Role: providers.RoleAssistant, Name: "f", Content: "x"}},
		{"function message without name", providers.Message{Role: providers.RoleFunction, Content: "x"}},
		{"oversized message", user("0123456789AB")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustManager(t, cfg)
			err := m.Add(tt.msg)
			if !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("Add() = %v, want ErrInvalidMessage", err)
			}
			if m.Len() != 0 {
				t.Errorf("rejected message entered the window, len = %d", m.Len())
			}
		})
	}
}

func TestFunctionMessageWithNameAccepted(t *testing.T) {
	m := mustManager(t, Config{TokenThreshold: 10, MaxTokens: 10, Method: MethodFIFO, KeepTop: 1, KeepBottom: 2})
	msg := providers.Message{Role: providers.RoleFunction, Name: "random_number", Content: "42"}
	if err := m.Add(msg); err != nil {
		t.Fatalf("Add(function message) failed: %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestNewManagerValidatesSeed(t *testing.T) {
	cfg := Config{
		TokenThreshold: 10, MaxTokens: 10, Method: MethodFIFO, KeepTop: 1, KeepBottom: 2,
		Seed: []providers.Message{{Role: "bogus", Content: "x"}},
	}
	if _, err := NewManager(cfg, byteCounter); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("NewManager = %v, want ErrInvalidMessage", err)
	}
}

func TestNewManagerDoesNotCompactSeed(t *testing.T) {
	// Three seed messages with keep_top=1, keep_bottom=1 would shrink to two
	// if compaction ran at construction. It must not.
	seed := []providers.Message{
		{Role: providers.RoleSystem, Content: "s"},
		user("a"),
		user("b"),
	}
	m := mustManager(t, Config{TokenThreshold: 10, MaxTokens: 10, Method: MethodFIFO, KeepTop: 1, KeepBottom: 1, Seed: seed})
	assertWindow(t, m, "s", "a", "b")
}

func TestUnderBudgetStructuralTrim(t *testing.T) {
	// Ten one-token messages stay far below the threshold, so compaction only
	// trims the middle: protected head plus the newest tail survive.
	m := mustManager(t, Config{TokenThreshold: 100, MaxTokens: 200, Method: MethodFIFO, KeepTop: 1, KeepBottom: 2})
	for _, c := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		mustAdd(t, m, user(c))
	}
	assertWindow(t, m, "a", "i", "j")
	if got := m.TotalTokens(); got != 3 {
		t.Errorf("TotalTokens() = %d, want 3", got)
	}
}

func TestUnderBudgetTrimSkipsDuplicates(t *testing.T) {
	// The tail may contain a message identical to one in the head; the head
	// copy wins and the window never holds it twice.
	m := mustManager(t, Config{TokenThreshold: 100, MaxTokens: 200, Method: MethodFIFO, KeepTop: 1, KeepBottom: 3})
	mustAdd(t, m, user("a"), user("b"), user("c"), user("d"), user("a"))
	assertWindow(t, m, "a", "c", "d")
}

func TestOverBudgetEvictsAfterPrefix(t *testing.T) {
	// Two-token messages against a five-token threshold: each add past the
	// budget evicts the oldest message after the protected head.
	m := mustManager(t, Config{TokenThreshold: 5, MaxTokens: 100, Method: MethodFIFO, KeepTop: 1, KeepBottom: 10})
	mustAdd(t, m, user("aa"), user("bb"))
	assertWindow(t, m, "aa", "bb")

	mustAdd(t, m, user("cc"))
	assertWindow(t, m, "aa", "cc")
	if got := m.TotalTokens(); got != 4 {
		t.Errorf("TotalTokens() = %d, want 4", got)
	}

	mustAdd(t, m, user("dd"))
	assertWindow(t, m, "aa", "dd")
}

func TestOverBudgetCollapsesToPrefix(t *testing.T) {
	// Three-token messages against a five-token threshold: any second message
	// pushes the total to six, so eviction runs until only the head remains.
	m := mustManager(t, Config{TokenThreshold: 5, MaxTokens: 100, Method: MethodFIFO, KeepTop: 1, KeepBottom: 10})
	mustAdd(t, m, user("aaa"), user("bbb"), user("ccc"), user("ddd"))

	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
	if got := m.TotalTokens(); got != 3 {
		t.Errorf("TotalTokens() = %d, want 3", got)
	}
	assertWindow(t, m, "aaa")
}

func TestOverBudgetEvictsOldestFirst(t *testing.T) {
	m := mustManager(t, Config{TokenThreshold: 6, MaxTokens: 100, Method: MethodFIFO, KeepTop: 1, KeepBottom: 10})
	mustAdd(t, m, user("aa"), user("bb"), user("cc"))
	assertWindow(t, m, "aa", "bb", "cc")

	// 8 tokens over a 6 token threshold: exactly one eviction, at index 1.
	mustAdd(t, m, user("dd"))
	assertWindow(t, m, "aa", "cc", "dd")
}

func TestThresholdBoundaryIsUnderBudget(t *testing.T) {
	// A window sitting exactly at the threshold takes the structural branch,
	// not the eviction branch.
	m := mustManager(t, Config{TokenThreshold: 4, MaxTokens: 100, Method: MethodFIFO, KeepTop: 1, KeepBottom: 3})
	mustAdd(t, m, user("a"), user("b"), user("c"), user("d"))
	assertWindow(t, m, "a", "b", "c", "d")
}

func TestPrefixAloneMayExceedThreshold(t *testing.T) {
	// When the protected head alone is over the threshold there is nothing
	// left to evict; the overage stands.
	m := mustManager(t, Config{TokenThreshold: 8, MaxTokens: 20, Method: MethodFIFO, KeepTop: 1, KeepBottom: 2})
	mustAdd(t, m, user("0123456789"))
	assertWindow(t, m, "0123456789")
	if got := m.TotalTokens(); got != 10 {
		t.Errorf("TotalTokens() = %d, want 10", got)
	}
}

func TestKeepTopZeroCanEmptyWindow(t *testing.T) {
	m := mustManager(t, Config{TokenThreshold: 0, MaxTokens: 10, Method: MethodFIFO, KeepTop: 0, KeepBottom: 0})
	mustAdd(t, m, user("a"))
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
	if got := len(m.All()); got != 1 {
		t.Errorf("archive len = %d, want 1", got)
	}
}

func TestCompactIdempotent(t *testing.T) {
	m := mustManager(t, Config{TokenThreshold: 5, MaxTokens: 100, Method: MethodFIFO, KeepTop: 1, KeepBottom: 2})
	mustAdd(t, m, user("aa"), user("bb"), user("cc"), user("dd"))
	first := contents(m.Messages())

	if err := m.Compact(); err != nil {
		t.Fatalf("Compact() failed: %v", err)
	}
	assertWindow(t, m, first...)

	if err := m.Compact(); err != nil {
		t.Fatalf("Compact() failed: %v", err)
	}
	assertWindow(t, m, first...)
}

func TestSummarizeUnimplemented(t *testing.T) {
	m := mustManager(t, Config{TokenThreshold: 10, MaxTokens: 10, Method: MethodSummarize, KeepTop: 1, KeepBottom: 2})
	if err := m.Add(user("a")); !errors.Is(err, ErrSummarizeUnimplemented) {
		t.Errorf("Add() = %v, want ErrSummarizeUnimplemented", err)
	}
	if err := m.Compact(); !errors.Is(err, ErrSummarizeUnimplemented) {
		t.Errorf("Compact() = %v, want ErrSummarizeUnimplemented", err)
	}
}

func TestArchiveSurvivesEviction(t *testing.T) {
	m := mustManager(t, Config{TokenThreshold: 5, MaxTokens: 100, Method: MethodFIFO, KeepTop: 1, KeepBottom: 10})
	added := []string{"aa", "bb", "cc", "dd"}
	for _, c := range added {
		mustAdd(t, m, user(c))
	}

	all := contents(m.All())
	if len(all) != len(added) {
		t.Fatalf("All() = %v, want %v", all, added)
	}
	for i := range added {
		if all[i] != added[i] {
			t.Fatalf("All() = %v, want %v", all, added)
		}
	}
	if m.Len() >= len(added) {
		t.Errorf("expected eviction, window len = %d", m.Len())
	}
}

func TestMessagesReturnsCopy(t *testing.T) {
	m := mustManager(t, Config{TokenThreshold: 10, MaxTokens: 10, Method: MethodFIFO, KeepTop: 1, KeepBottom: 2})
	mustAdd(t, m, user("a"))

	window := m.Messages()
	window[0].Content = "mutated"

	if got := m.Messages()[0].Content; got != "a" {
		t.Errorf("window leaked internal state, content = %q", got)
	}
}

type evictRecorder struct {
	total int
	calls int
}

func (r *evictRecorder) OnEvict(n int) {
	r.total += n
	r.calls++
}

func TestObserverSeesEvictions(t *testing.T) {
	m := mustManager(t, Config{TokenThreshold: 5, MaxTokens: 100, Method: MethodFIFO, KeepTop: 1, KeepBottom: 10})
	rec := &evictRecorder{}
	m.SetObserver(rec)

	mustAdd(t, m, user("aa"), user("bb"))
	if rec.calls != 0 {
		t.Fatalf("observer fired with nothing evicted, calls = %d", rec.calls)
	}

	mustAdd(t, m, user("cc"))
	if rec.calls != 1 || rec.total != 1 {
		t.Errorf("observer calls = %d total = %d, want 1 and 1", rec.calls, rec.total)
	}
}
