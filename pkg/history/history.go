package history

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Microwave-WYB/openai-helper/pkg/logger"
	"github.com/Microwave-WYB/openai-helper/pkg/providers"
	"github.com/Microwave-WYB/openai-helper/pkg/tokenizer"
)

// Compacting methods.
const (
	MethodFIFO      = "fifo"
	MethodSummarize = "summarize"
)

var (
	// ErrInvalidConfig marks a configuration rejected at construction.
	ErrInvalidConfig = errors.New("history: invalid config")
	// ErrInvalidMessage marks a message that failed role/name/size validation.
	ErrInvalidMessage = errors.New("history: invalid message")
	// ErrSummarizeUnimplemented is returned whenever compaction runs with the
	// summarize method. It is never downgraded to fifo.
	ErrSummarizeUnimplemented = errors.New("history: summarize compacting method not implemented")
)

// Config fixes the compaction policy for the lifetime of a Manager.
type Config struct {
	TokenThreshold int
	MaxTokens      int
	Method         string
	KeepTop        int
	KeepBottom     int
	Seed           []providers.Message
	Verbose        bool
}

// Validate checks the policy invariants: non-negative keep counts and
// threshold, threshold within the per-message budget, known method.
func (c Config) Validate() error {
	if c.KeepTop < 0 {
		return fmt.Errorf("%w: keep_top must be >= 0, got %d", ErrInvalidConfig, c.KeepTop)
	}
	if c.KeepBottom < 0 {
		return fmt.Errorf("%w: keep_bottom must be >= 0, got %d", ErrInvalidConfig, c.KeepBottom)
	}
	if c.TokenThreshold < 0 {
		return fmt.Errorf("%w: token_threshold must be >= 0, got %d", ErrInvalidConfig, c.TokenThreshold)
	}
	if c.TokenThreshold > c.MaxTokens {
		return fmt.Errorf("%w: token_threshold %d exceeds max_tokens %d", ErrInvalidConfig, c.TokenThreshold, c.MaxTokens)
	}
	switch c.Method {
	case MethodFIFO, MethodSummarize:
	default:
		return fmt.Errorf("%w: unknown compacting method %q", ErrInvalidConfig, c.Method)
	}
	return nil
}

// Observer is notified after a compaction pass that dropped messages.
type Observer interface {
	OnEvict(n int)
}

// Manager owns the ordered conversation log and enforces the token budget.
// The active window (used for requests) is a contiguous subsequence of the
// archival record; both are held by value and returned as copies.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	counter tokenizer.Counter

	active   []providers.Message
	archive  []providers.Message
	observer Observer
}

// NewManager validates cfg and every seed message, then returns a manager
// holding the seed in both the archival record and the active window. No
// compaction runs until the first Add.
func NewManager(cfg Config, counter tokenizer.Counter) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for i, msg := range cfg.Seed {
		if err := validateMessage(msg, counter, cfg.MaxTokens); err != nil {
			return nil, fmt.Errorf("seed message %d: %w", i, err)
		}
	}

	m := &Manager{cfg: cfg, counter: counter}
	m.active = append(m.active, cfg.Seed...)
	m.archive = append(m.archive, cfg.Seed...)
	return m, nil
}

// SetObserver registers a compaction observer. Pass nil to clear.
func (m *Manager) SetObserver(obs Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = obs
}

func validateMessage(msg providers.Message, counter tokenizer.Counter, maxTokens int) error {
	switch msg.Role {
	case providers.RoleSystem, providers.RoleUser, providers.RoleAssistant:
		if msg.Name != "" {
			return fmt.Errorf("%w: role %q must not carry a name", ErrInvalidMessage, msg.Role)
		}
	case providers.RoleFunction:
		if msg.Name == "" {
			return fmt.Errorf("%w: function message requires a name", ErrInvalidMessage)
		}
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, msg.Role)
	}

	if cost := counter.Count(msg.Content); cost > maxTokens {
		return fmt.Errorf("%w: message costs %d tokens, max is %d", ErrInvalidMessage, cost, maxTokens)
	}
	return nil
}

// Add validates msg, appends it to the archival record and the active window,
// and compacts the window.
func (m *Manager) Add(msg providers.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateMessage(msg, m.counter, m.cfg.MaxTokens); err != nil {
		return err
	}

	m.archive = append(m.archive, msg)
	m.active = append(m.active, msg)
	return m.compactLocked()
}

// TotalTokens sums the token cost of the active window. Recomputed on demand.
func (m *Manager) TotalTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalTokensLocked()
}

func (m *Manager) totalTokensLocked() int {
	total := 0
	for _, msg := range m.active {
		total += m.counter.Count(msg.Content)
	}
	return total
}

// Compact applies the configured compaction policy to the active window.
// Idempotent: re-running with no intervening Add leaves the window unchanged.
func (m *Manager) Compact() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.compactLocked()
}

func (m *Manager) compactLocked() error {
	switch m.cfg.Method {
	case MethodSummarize:
		return ErrSummarizeUnimplemented
	case MethodFIFO:
	default:
		return fmt.Errorf("%w: unknown compacting method %q", ErrInvalidConfig, m.cfg.Method)
	}

	before := len(m.active)

	total := m.totalTokensLocked()
	if total <= m.cfg.TokenThreshold {
		// Under budget: trim only the middle, keeping head and tail.
		if len(m.active) > m.cfg.KeepTop+m.cfg.KeepBottom {
			top := m.active[:m.cfg.KeepTop]
			bottom := m.active[len(m.active)-m.cfg.KeepBottom:]

			window := make([]providers.Message, 0, m.cfg.KeepTop+m.cfg.KeepBottom)
			window = append(window, top...)
			for _, msg := range bottom {
				if !containsMessage(top, msg) {
					window = append(window, msg)
				}
			}
			m.active = window
		}
	} else {
		// Over budget: evict the oldest message after the protected prefix
		// until within budget or only the prefix remains.
		for m.totalTokensLocked() > m.cfg.TokenThreshold && len(m.active) > m.cfg.KeepTop {
			m.active = append(m.active[:m.cfg.KeepTop], m.active[m.cfg.KeepTop+1:]...)
		}

		// The prefix alone may still exceed the threshold; truncate to it and
		// accept the overage, there is no further remedy.
		if m.totalTokensLocked() > m.cfg.TokenThreshold && len(m.active) > m.cfg.KeepTop {
			m.active = m.active[:m.cfg.KeepTop]
		}
	}

	if evicted := before - len(m.active); evicted > 0 {
		if m.observer != nil {
			m.observer.OnEvict(evicted)
		}
		logger.DebugCF("history", "Compacted window",
			map[string]any{
				"evicted":      evicted,
				"window_len":   len(m.active),
				"total_tokens": m.totalTokensLocked(),
			})
	}

	if m.cfg.Verbose {
		logger.InfoCF("history", "Compacted messages",
			map[string]any{"total_tokens": m.totalTokensLocked()})
	}
	return nil
}

func containsMessage(msgs []providers.Message, target providers.Message) bool {
	for _, msg := range msgs {
		if msg == target {
			return true
		}
	}
	return false
}

// Messages returns a copy of the active window.
func (m *Manager) Messages() []providers.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	window := make([]providers.Message, len(m.active))
	copy(window, m.active)
	return window
}

// All returns a copy of the archival record: every message ever added,
// untouched by compaction.
func (m *Manager) All() []providers.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]providers.Message, len(m.archive))
	copy(all, m.archive)
	return all
}

// Len returns the length of the active window.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}
