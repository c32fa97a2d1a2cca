package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Microwave-WYB/openai-helper/pkg/logger"
	"github.com/Microwave-WYB/openai-helper/pkg/providers"
)

const generatorSystemPrompt = `Given the function information, generate a JSON function object for an OpenAI API call.
Remember to escape quotes in generated JSON strings if necessary.

Example:
Function Name: get_current_weather Docstring: Get the current weather in a given location

Args:
    location (str): The city and state, e.g. San Francisco, CA
    unit (str): The unit of temperature to return, either "celsius" or "fahrenheit"

Returns:
    str: A JSON string containing the current weather in the given location

Example Output:
{
    "name": "get_current_weather",
    "description": "Get the current weather in a given location",
    "parameters": {
        "type": "object",
        "properties": {
            "location": {
                "type": "string",
                "description": "The city and state, e.g. San Francisco, CA"
            },
            "unit": {"type": "string", "enum": ["celsius", "fahrenheit"]}
        },
        "required": ["location"]
    }
}`

const generatorPromptTemplate = "Function Name: %s\nDocstring: %s\nOutput:"

// SchemaGenerator derives an invocation schema from a function's name and
// docstring by asking the model, consulting the durable cache first.
type SchemaGenerator struct {
	provider providers.Provider
	model    string
	cache    *SchemaCache
}

func NewSchemaGenerator(provider providers.Provider, model string, cache *SchemaCache) *SchemaGenerator {
	return &SchemaGenerator{provider: provider, model: model, cache: cache}
}

// Generate returns the schema for the name/docstring pair, generating and
// caching it on a miss.
func (g *SchemaGenerator) Generate(ctx context.Context, name, docstring string) (providers.FunctionSchema, error) {
	if g.cache != nil {
		if schema, ok := g.cache.Get(name, docstring); ok {
			return schema, nil
		}
	}

	messages := []providers.Message{
		{Role: providers.RoleSystem, Content: generatorSystemPrompt},
		{Role: providers.RoleUser, Content: fmt.Sprintf(generatorPromptTemplate, name, docstring)},
	}

	resp, err := g.provider.Chat(ctx, messages, nil, g.model, map[string]any{"temperature": 0})
	if err != nil {
		return providers.FunctionSchema{}, fmt.Errorf("generate schema for %s: %w", name, err)
	}

	var schema providers.FunctionSchema
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Content)), &schema); err != nil {
		return providers.FunctionSchema{}, fmt.Errorf("generated schema for %s is not valid JSON: %w", name, err)
	}
	if schema.Name == "" {
		schema.Name = name
	}

	if g.cache != nil {
		if err := g.cache.Put(name, docstring, schema); err != nil {
			logger.WarnCF("functions", "Failed to persist schema cache",
				map[string]any{"name": name, "error": err.Error()})
		}
	}
	return schema, nil
}

// RegisterGenerated generates (or loads) the schema for fn and registers it.
func (r *Registry) RegisterGenerated(ctx context.Context, gen *SchemaGenerator, name, docstring string, fn Func) error {
	schema, err := gen.Generate(ctx, name, docstring)
	if err != nil {
		return err
	}
	r.Register(schema, fn)
	return nil
}
