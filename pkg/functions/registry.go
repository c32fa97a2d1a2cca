package functions

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Microwave-WYB/openai-helper/pkg/logger"
	"github.com/Microwave-WYB/openai-helper/pkg/providers"
)

// ErrUnknownFunction marks a call to a name absent from the registry.
var ErrUnknownFunction = errors.New("functions: unknown function")

// Func is a registered callable. It receives the decoded argument object and
// returns a textual result. A returned error is a reported execution failure.
type Func func(args map[string]any) (string, error)

type registration struct {
	schema providers.FunctionSchema
	fn     Func
}

// Registry maps function names to schemas and callables. Schemas are
// advertised in registration order.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]registration
	order []string
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]registration)}
}

// Register adds (or replaces) a function under schema.Name.
func (r *Registry) Register(schema providers.FunctionSchema, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[schema.Name]; !exists {
		r.order = append(r.order, schema.Name)
	}
	r.funcs[schema.Name] = registration{schema: schema, fn: fn}

	logger.InfoCF("functions", fmt.Sprintf("Registered function: %s", schema.Name),
		map[string]any{"name": schema.Name})
}

// Call invokes the named function with args. An unknown name is a hard
// failure; a callable error is returned as-is for the caller to report.
func (r *Registry) Call(name string, args map[string]any) (string, error) {
	r.mu.RLock()
	reg, ok := r.funcs[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	return reg.fn(args)
}

// Schemas returns the advertised schemas in registration order.
func (r *Registry) Schemas() []providers.FunctionSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]providers.FunctionSchema, 0, len(r.order))
	for _, name := range r.order {
		schemas = append(schemas, r.funcs[name].schema)
	}
	return schemas
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.funcs)
}
