package util

import (
	"os"
	"strings"
)

// GetEnvOrDefault returns the value of env, or def when env is unset or blank.
func GetEnvOrDefault(env, def string) string {
	if val, ok := os.LookupEnv(env); ok && strings.TrimSpace(val) != "" {
		return strings.TrimSpace(val)
	}
	return def
}
