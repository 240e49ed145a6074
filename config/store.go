// Package config provides the settings store used by a warren worker
// process: typed access over a metadata set, populated in precedence
// order from defaults, an optional config file, environment variables
// and command line flags.
package config

import (
	"fmt"
	"time"

	"github.com/warrenq/warren/cli"
	"github.com/warrenq/warren/errors"
	"github.com/warrenq/warren/metadata"
)

// Store holds resolved configuration values for a worker process.
// Use New to get an empty one; the zero value has no backing metadata
// set and is not usable.
type Store struct {
	md metadata.MD
}

// New returns a Store with no values set.
func New() *Store {
	return &Store{md: metadata.New()}
}

// LoadDefaults populates the store with d, without overriding any key
// already set.
func (s *Store) LoadDefaults(d map[string]interface{}) {
	for k, v := range d {
		if s.md.Get(k) == nil {
			s.md.Set(k, v)
		}
	}
}

// LoadFile reads values from a config file handled by h, overriding any
// defaults already loaded. A missing file is not an error.
func (s *Store) LoadFile(h *cli.Config) error {
	if err := h.ReadFile(true); err != nil {
		return errors.ConfigurationError(errors.Wrap(err, "read config file"))
	}
	for k, v := range h.Internals().AllSettings() {
		s.md.Set(k, v)
	}
	return nil
}

// LoadEnv/LoadFlags are not separate steps here: `cli.ConfigHandler`
// already layers environment variables and bound flags ahead of file
// values inside its viper instance, so `LoadFile` picking up
// `h.Internals().AllSettings()` after flags are bound already reflects
// the full defaults -> file -> env -> flags precedence chain.

// Set overrides a single key, highest precedence.
func (s *Store) Set(key string, value interface{}) {
	s.md.Set(key, value)
}

// String returns the string value of key, or def if unset.
func (s *Store) String(key, def string) string {
	v := s.md.Get(key)
	if v == nil {
		return def
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", v)
}

// Int returns the int value of key, or def if unset or not a number.
func (s *Store) Int(key string, def int) int {
	v := s.md.Get(key)
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

// Bool returns the bool value of key, or def if unset.
func (s *Store) Bool(key string, def bool) bool {
	v := s.md.Get(key)
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

// Duration returns the duration value of key, or def if unset or
// unparseable. Accepts both a Go duration string ("5s") and a bare
// integer, interpreted as seconds.
func (s *Store) Duration(key string, def time.Duration) time.Duration {
	v := s.md.Get(key)
	switch d := v.(type) {
	case time.Duration:
		return d
	case string:
		if parsed, err := time.ParseDuration(d); err == nil {
			return parsed
		}
		return def
	case int:
		return time.Duration(d) * time.Second
	default:
		return def
	}
}

// StringSlice returns the string slice value of key, or def if unset.
func (s *Store) StringSlice(key string, def []string) []string {
	v := s.md.Get(key)
	if ss, ok := v.([]string); ok {
		return ss
	}
	if is, ok := v.([]interface{}); ok {
		out := make([]string, 0, len(is))
		for _, e := range is {
			out = append(out, fmt.Sprintf("%v", e))
		}
		return out
	}
	return def
}

// IsSet reports whether key has any value, including a default.
func (s *Store) IsSet(key string) bool {
	return s.md.Get(key) != nil
}
