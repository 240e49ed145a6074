package publish

import (
	"context"
	"testing"

	tdd "github.com/stretchr/testify/assert"

	"github.com/warrenq/warren/amqp"
	"github.com/warrenq/warren/serializer"
)

func TestMergePropertiesOrderAndOverrides(t *testing.T) {
	assert := tdd.New(t)

	call := &callOptions{properties: amqp.Table{"persistent": false, "custom": "caller"}}
	global := func() amqp.Table { return amqp.Table{"custom": "global", "env": "prod"} }

	props := mergeProperties(call, global, "orders.created", "application/json")

	assert.Equal(false, props["persistent"], "caller properties override the persistent:true default")
	assert.Equal("global", props["custom"], "global properties override caller properties")
	assert.Equal("prod", props["env"])
	assert.Equal("orders.created", props["routing_key"], "routing_key is never overridable")
	assert.Equal("application/json", props["content_type"], "content_type is never overridable")
	assert.NotNil(props["timestamp"])
}

func TestBuildMessageDefaultsMessageID(t *testing.T) {
	assert := tdd.New(t)

	props := amqp.Table{"routing_key": "x", "content_type": "application/json", "custom": "value"}
	msg := buildMessage(props, "application/json", []byte(`{}`))

	assert.NotEmpty(msg.MessageId)
	assert.Equal("application/json", msg.ContentType)
	assert.Equal("value", msg.Headers["custom"])
	_, hasRoutingKey := msg.Headers["routing_key"]
	assert.False(hasRoutingKey, "well-known keys are not duplicated into Headers")
}

func TestBuildMessageHonorsSuppliedMessageID(t *testing.T) {
	assert := tdd.New(t)

	props := amqp.Table{"message_id": "fixed-id"}
	msg := buildMessage(props, "application/json", nil)
	assert.Equal("fixed-id", msg.MessageId)
}

func TestPublishFailsFastWithoutConnection(t *testing.T) {
	assert := tdd.New(t)

	p := New(nil, nil, Options{Serializer: serializer.JSON{}, Exchange: "events"})
	err := p.Publish(context.Background(), "orders.created", map[string]string{"id": "1"})
	assert.Error(err)
}

func TestPublishWaitRequiresWaitChannel(t *testing.T) {
	assert := tdd.New(t)

	p := New(nil, nil, Options{Serializer: serializer.JSON{}, Exchange: "events"})
	err := p.PublishWait(context.Background(), "orders.created", map[string]string{"id": "1"}, 0)
	assert.Error(err)
}
