package publish

import (
	"context"
	"testing"
	"time"

	tdd "github.com/stretchr/testify/assert"

	"github.com/warrenq/warren/serializer"
)

func TestDispatcherSurfacesPublishErrorsWithoutConnection(t *testing.T) {
	assert := tdd.New(t)

	p := New(nil, nil, Options{Serializer: serializer.JSON{}, Exchange: "events"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := p.NewDispatcher(ctx, "orders.created")
	d.Publish() <- map[string]string{"id": "1"}

	select {
	case err := <-d.Errors():
		assert.Error(err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher never reported the publish failure")
	}
}

func TestDispatcherStopsWhenContextCancelled(t *testing.T) {
	assert := tdd.New(t)

	p := New(nil, nil, Options{Serializer: serializer.JSON{}, Exchange: "events"})
	ctx, cancel := context.WithCancel(context.Background())

	d := p.NewDispatcher(ctx, "orders.created")
	cancel()

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("dispatcher never stopped after context cancellation")
	}
	assert.NotNil(d.Publish())
}

func TestDispatcherClosingPublishChannelStopsTheLoop(t *testing.T) {
	p := New(nil, nil, Options{Serializer: serializer.JSON{}, Exchange: "events"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := p.NewDispatcher(ctx, "orders.created")
	close(d.in)

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("dispatcher never stopped after its input channel was closed")
	}
}
