package utils

import (
	"encoding/json"
)

// Marshal generic struct to JSON
func MarshalToJSON[T any](input T) (string, error) {
	jsonData, err := json.Marshal(input)
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

// MarshalIndentJSON is used by CLIs for -format=json output.
func MarshalIndentJSON[T any](input T) ([]byte, error) {
	return json.MarshalIndent(input, "", "  ")
}
