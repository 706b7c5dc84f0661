package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Sternrassler/bc-odata-client/pkg/resources"
)

// parseParams turns repeated key=value flags into one parameter item.
// Dotted keys nest ("filters.displayName=Con"); values that look like JSON
// objects or arrays are decoded; true, false and integers are typed.
func parseParams(pairs []string) (resources.Params, error) {
	p := resources.Params{}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("parameter %q must be key=value", pair)
		}
		value, err := parseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", key, err)
		}
		if err := setPath(p, strings.Split(key, "."), value); err != nil {
			return nil, fmt.Errorf("parameter %s: %w", key, err)
		}
	}
	return p, nil
}

func parseValue(raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	if trimmed == "true" || trimmed == "false" {
		return trimmed == "true", nil
	}
	if i, err := strconv.Atoi(trimmed); err == nil {
		return i, nil
	}
	return raw, nil
}

func setPath(m map[string]any, path []string, value any) error {
	if len(path) == 1 {
		m[path[0]] = value
		return nil
	}
	child, ok := m[path[0]].(map[string]any)
	if !ok {
		if _, exists := m[path[0]]; exists {
			return fmt.Errorf("%s is not an object", path[0])
		}
		child = map[string]any{}
		m[path[0]] = child
	}
	return setPath(child, path[1:], value)
}

// loadItems reads a JSON array of parameter objects, or a single object.
func loadItems(path string) ([]resources.Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}

	var list []map[string]any
	if err := json.Unmarshal(data, &list); err == nil {
		items := make([]resources.Params, len(list))
		for i, obj := range list {
			items[i] = obj
		}
		return items, nil
	}

	var single map[string]any
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("items file must hold an object or an array of objects: %w", err)
	}
	return []resources.Params{single}, nil
}
