package utils

import (
	"fmt"
	"strings"
)

// IsRemote reports whether path is an http:// or https:// URL
func IsRemote(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// ParseHeader splits a "Key: Value" or "Key=Value" header definition
func ParseHeader(def string) (string, string, error) {
	idx := strings.IndexAny(def, ":=")
	if idx <= 0 {
		return "", "", fmt.Errorf("invalid header %q: expected KEY=VALUE or KEY: VALUE", def)
	}

	key := strings.TrimSpace(def[:idx])
	value := strings.TrimSpace(def[idx+1:])
	if key == "" {
		return "", "", fmt.Errorf("invalid header %q: empty key", def)
	}

	return key, value, nil
}
