package mcpserver

import (
	"fmt"
	"strings"
)

// getFloat reads a JSON number argument.
func getFloat(args map[string]any, key string, fallback float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return fallback
}

// requireString reads a non-empty string argument.
func requireString(args map[string]any, key string) (string, error) {
	v, _ := args[key].(string)
	if strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// requireInt reads a JSON number argument as a whole number.
func requireInt(args map[string]any, key string) (int, error) {
	v, ok := args[key].(float64)
	if !ok {
		return 0, fmt.Errorf("%s is required", key)
	}
	return int(v), nil
}
