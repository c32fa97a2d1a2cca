package main

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/Microwave-WYB/openai-helper/pkg/functions"
	"github.com/Microwave-WYB/openai-helper/pkg/logger"
	"github.com/Microwave-WYB/openai-helper/pkg/providers"
)

const randomNumberDoc = `Generate a random number from min_number to max_number.

Args:
    min_number (int): The minimum bound for the random number.
    max_number (int): The maximum bound for the random number.

Returns:
    int: A random number between min_number and max_number.`

func randomNumber(args map[string]any) (string, error) {
	min, okMin := args["min_number"].(float64)
	max, okMax := args["max_number"].(float64)
	if !okMin || !okMax {
		return "", fmt.Errorf("min_number and max_number are required")
	}
	if max < min {
		return "", fmt.Errorf("max_number must be >= min_number")
	}
	return fmt.Sprintf("%d", int(min)+rand.Intn(int(max-min)+1)), nil
}

// randomNumberSchema is the fallback when the generator is unavailable
// (no API key, offline, generation failure).
var randomNumberSchema = providers.FunctionSchema{
	Name:        "random_number",
	Description: "Generate a random number from min_number to max_number",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"min_number": map[string]any{
				"type":        "integer",
				"description": "The minimum bound for the random number",
			},
			"max_number": map[string]any{
				"type":        "integer",
				"description": "The maximum bound for the random number",
			},
		},
		"required": []string{"min_number", "max_number"},
	},
}

// registerDemoFunctions registers random_number, preferring a schema derived
// from its docstring via the generator (cached across runs).
func registerDemoFunctions(ctx context.Context, registry *functions.Registry, cache *functions.SchemaCache, provider providers.Provider, model string) {
	gen := functions.NewSchemaGenerator(provider, model, cache)
	if err := registry.RegisterGenerated(ctx, gen, "random_number", randomNumberDoc, randomNumber); err != nil {
		logger.WarnCF("main", "Schema generation failed, using built-in schema",
			map[string]any{"name": "random_number", "error": err.Error()})
		registry.Register(randomNumberSchema, randomNumber)
	}
}
