package config

import (
	"testing"
	"time"

	tdd "github.com/stretchr/testify/assert"
)

func TestStoreTypedAccessors(t *testing.T) {
	assert := tdd.New(t)
	s := New()

	assert.Equal("fallback", s.String("missing", "fallback"))
	assert.Equal(10, s.Int("missing", 10))
	assert.False(s.IsSet("missing"))

	s.Set("name", "worker-1")
	s.Set("pool.size", 8)
	s.Set("pool.size.float", 8.0)
	s.Set("debug", true)
	s.Set("timeout", "5s")
	s.Set("ttl.seconds", 30)
	s.Set("tags", []string{"a", "b"})

	assert.Equal("worker-1", s.String("name", ""))
	assert.Equal(8, s.Int("pool.size", 0))
	assert.Equal(8, s.Int("pool.size.float", 0))
	assert.True(s.Bool("debug", false))
	assert.Equal(5*time.Second, s.Duration("timeout", 0))
	assert.Equal(30*time.Second, s.Duration("ttl.seconds", 0))
	assert.Equal([]string{"a", "b"}, s.StringSlice("tags", nil))
	assert.True(s.IsSet("name"))
}

func TestStoreLoadDefaultsDoesNotOverride(t *testing.T) {
	assert := tdd.New(t)
	s := New()
	s.Set("name", "explicit")
	s.LoadDefaults(map[string]interface{}{
		"name":  "default",
		"extra": "value",
	})
	assert.Equal("explicit", s.String("name", ""))
	assert.Equal("value", s.String("extra", ""))
}
