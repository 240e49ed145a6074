package broker

import (
	"context"
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

func TestNamespaceNormalization(t *testing.T) {
	assert := tdd.New(t)

	b := &Broker{opts: Options{Namespace: "Payments API!!"}}
	assert.Equal("paymentsapi:tasks", b.Namespace("tasks"))

	b2 := &Broker{}
	assert.Equal("tasks", b2.Namespace("tasks"))
}

func TestDialRejectsBadURI(t *testing.T) {
	assert := tdd.New(t)
	_, err := Dial(context.Background(), "not-a-uri", Options{})
	assert.Error(err)
}
