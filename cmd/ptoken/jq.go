package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/itchyny/gojq"
)

// compileJQ parses and compiles each filter.
func compileJQ(filters []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return compiled, nil
}

// toJQValue converts v to the plain maps, slices and scalars gojq works on.
func toJQValue(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return out, nil
}

// matchesAll reports whether every filter yields a truthy first result for v.
func matchesAll(filters []*gojq.Code, v interface{}) bool {
	for _, code := range filters {
		iter := code.Run(v)
		result, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := result.(error); isErr {
			return false
		}
		if !isTruthy(result) {
			return false
		}
	}
	return true
}

// isTruthy follows jq semantics: only false and null are falsy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

// writeJQ runs filter over v and writes each output as a line of JSON.
func writeJQ(w io.Writer, filter string, v interface{}) error {
	codes, err := compileJQ([]string{filter})
	if err != nil {
		return err
	}
	input, err := toJQValue(v)
	if err != nil {
		return err
	}

	iter := codes[0].Run(input)
	for {
		result, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := result.(error); isErr {
			return fmt.Errorf("jq filter %q failed: %w", filter, err)
		}
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal jq output: %w", err)
		}
		fmt.Fprintln(w, string(data))
	}
}
