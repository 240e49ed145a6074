package consumer

import (
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

func TestRegistryAddAndFreeze(t *testing.T) {
	assert := tdd.New(t)

	r := NewRegistry()
	r.Add("orders", "orders.process", WithRoutingKeys("orders.created", "orders.updated"), WithGroup("billing"))
	r.Add("emails", "emails.send")
	assert.Equal(2, r.Len())

	list := r.Freeze()
	assert.Len(list, 2)
	assert.Equal("orders", list[0].Name)
	assert.Equal([]string{"orders.created", "orders.updated"}, list[0].RoutingKeys)
	assert.Equal("billing", list[0].Group)
	assert.Equal("emails.send", list[1].Queue)
}

func TestRegistryAddAfterFreezePanics(t *testing.T) {
	assert := tdd.New(t)

	r := NewRegistry()
	r.Add("orders", "orders.process")
	r.Freeze()

	assert.Panics(func() {
		r.Add("late", "late.queue")
	})
}

func TestDescriptorOptions(t *testing.T) {
	assert := tdd.New(t)

	r := NewRegistry()
	r.Add("orders", "orders.process",
		WithArguments(nil),
		WithRetryable(func(error) bool { return true }),
	)
	list := r.Freeze()
	assert.NotNil(list[0].Retryable)
	assert.True(list[0].Retryable(nil))
}
