package serializer

import (
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

func TestRegistryLookupDefaultsToFallback(t *testing.T) {
	assert := tdd.New(t)
	r := NewRegistry()
	assert.Equal("application/json", r.Lookup("").ContentType())
	assert.Equal("application/json", r.Lookup("unknown/type").ContentType())
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	assert := tdd.New(t)
	r := NewRegistry()
	r.Register(Identity{})
	assert.Equal("application/octet-stream", r.Lookup("application/octet-stream").ContentType())
}

func TestRegistryDecodeUsesMatchingSerializer(t *testing.T) {
	assert := tdd.New(t)
	r := NewRegistry()
	var out sample
	assert.NoError(r.Decode("application/json", []byte(`{"name":"x"}`), &out))
	assert.Equal("x", out.Name)
}

func TestRegistrySetFallback(t *testing.T) {
	assert := tdd.New(t)
	r := NewRegistry()
	r.SetFallback(Identity{})
	assert.Equal("application/octet-stream", r.Lookup("").ContentType())
}
