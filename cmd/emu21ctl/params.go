package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"emu21cm/internal/params"
)

// loadParamsFile reads a parameter mapping, a list of values, or a list of
// either. JSON files parse as YAML.
func loadParamsFile(path string) (params.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if m, ok := doc.(map[string]any); ok {
		if inner, ok := m["params"]; ok {
			doc = inner
		}
	}
	batch, err := params.FromAny(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return batch, nil
}

func parseTheta(s string) (params.Batch, error) {
	parts := splitList(s)
	values := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("theta value %d: %w", i, err)
		}
		values[i] = v
	}
	return params.Single(params.Values(values...)), nil
}

func batchFromFlags(paramsFile, theta string) (params.Batch, error) {
	switch {
	case paramsFile != "" && strings.TrimSpace(theta) != "":
		return nil, errors.New("use only one of -params and -theta")
	case paramsFile != "":
		return loadParamsFile(paramsFile)
	case strings.TrimSpace(theta) != "":
		return parseTheta(theta)
	default:
		return nil, errors.New("one of -params or -theta is required")
	}
}
