package utils

import (
	"os"
	"strconv"
	"strings"
)

// SafeEnv returns the environment variable value for key, or fallback if empty.
func SafeEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// EnvBool parses key with strconv.ParseBool; unset or unparsable values yield fallback.
func EnvBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(SafeEnv(key, ""))
	if err != nil {
		return fallback
	}
	return b
}
