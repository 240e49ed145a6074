package serializer

import (
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

type sample struct {
	Name string `json:"name"`
}

func TestJSONRoundTrip(t *testing.T) {
	assert := tdd.New(t)
	s := JSON{}
	body, err := s.Encode(sample{Name: "task"})
	assert.NoError(err)
	assert.Equal("application/json", s.ContentType())

	var out sample
	assert.NoError(s.Decode(body, &out))
	assert.Equal("task", out.Name)
}

func TestJSONDecodeError(t *testing.T) {
	assert := tdd.New(t)
	var out sample
	err := JSON{}.Decode([]byte("not json"), &out)
	assert.Error(err)
}

func TestIdentityPassesThrough(t *testing.T) {
	assert := tdd.New(t)
	s := Identity{}
	body, err := s.Encode([]byte("raw"))
	assert.NoError(err)
	assert.Equal([]byte("raw"), body)

	var out []byte
	assert.NoError(s.Decode(body, &out))
	assert.Equal([]byte("raw"), out)
}

func TestIdentityRejectsWrongTypes(t *testing.T) {
	assert := tdd.New(t)
	s := Identity{}
	_, err := s.Encode("not bytes")
	assert.Error(err)

	var target string
	assert.Error(s.Decode([]byte("x"), &target))
}

func TestDefaultIsJSON(t *testing.T) {
	assert := tdd.New(t)
	_, ok := Default().(JSON)
	assert.True(ok)
}
