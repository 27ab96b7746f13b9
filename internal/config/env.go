// Package config reads process settings from the environment. Binaries use these
// helpers as flag defaults so either source can configure a run.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Env returns the value of key, or def when unset or empty.
func Env(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// EnvInt returns key parsed as a positive integer, or def.
func EnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// EnvDuration returns key parsed with time.ParseDuration, or def.
func EnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// EnvBool returns key parsed with strconv.ParseBool, or def.
func EnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// EnvList splits a comma separated value, dropping blanks.
func EnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return SplitList(v)
}

// SplitList splits a comma separated string, trimming and dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
