package common

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON extracts the outermost JSON object or array from an LLM response
// and unmarshals it into T. Markdown fences and surrounding prose are ignored.
func ParseJSON[T any](response string) (T, error) {
	var zero T

	closer := byte('}')
	start := strings.IndexAny(response, "{[")
	if start == -1 {
		return zero, fmt.Errorf("no JSON value found in response")
	}
	if response[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(response, closer)
	if end < start {
		return zero, fmt.Errorf("unterminated JSON value in response (missing %q)", closer)
	}

	jsonStr := response[start : end+1]
	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return zero, fmt.Errorf("failed to unmarshal JSON: %w\nData: %s", err, jsonStr)
	}
	return result, nil
}
