package functions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Microwave-WYB/openai-helper/pkg/providers"
)

// SchemaCache is a durable store of generated function schemas, keyed by
// function name and docstring text. A schema is regenerated only when either
// changes.
type SchemaCache struct {
	mu      sync.Mutex
	path    string
	entries map[string]map[string]providers.FunctionSchema
}

// NewSchemaCache loads the cache file if it exists. A missing file is an
// empty cache, not an error.
func NewSchemaCache(path string) (*SchemaCache, error) {
	c := &SchemaCache{
		path:    path,
		entries: make(map[string]map[string]providers.FunctionSchema),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read schema cache: %w", err)
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		return nil, fmt.Errorf("decode schema cache %s: %w", path, err)
	}
	return c, nil
}

// Get returns the cached schema for the name/docstring pair.
func (c *SchemaCache) Get(name, docstring string) (providers.FunctionSchema, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byDoc, ok := c.entries[name]
	if !ok {
		return providers.FunctionSchema{}, false
	}
	schema, ok := byDoc[docstring]
	return schema, ok
}

// Put stores a schema and persists the cache.
func (c *SchemaCache) Put(name, docstring string, schema providers.FunctionSchema) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries[name] == nil {
		c.entries[name] = make(map[string]providers.FunctionSchema)
	}
	c.entries[name][docstring] = schema
	return c.saveLocked()
}

// saveLocked persists via temp-file + rename. Must be called with mu held.
func (c *SchemaCache) saveLocked() error {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
