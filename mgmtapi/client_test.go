package mgmtapi

import (
	"context"
	lib "net/http"
	"net/http/httptest"
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

func TestNewClientRequiresBaseURL(t *testing.T) {
	assert := tdd.New(t)
	_, err := NewClient("", "/", "guest", "guest")
	assert.Error(err)
}

func TestBindingsDecodesResponse(t *testing.T) {
	assert := tdd.New(t)

	srv := httptest.NewServer(lib.HandlerFunc(func(w lib.ResponseWriter, r *lib.Request) {
		assert.Equal("/api/queues/%2F/tasks/bindings", r.URL.EscapedPath())
		user, pass, ok := r.BasicAuth()
		assert.True(ok)
		assert.Equal("guest", user)
		assert.Equal("guest", pass)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"source":"warren.tasks","destination":"tasks","destination_type":"queue","routing_key":"jobs.#"}]`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "/", "guest", "guest")
	assert.NoError(err)

	bindings, err := c.Bindings(context.Background(), "tasks")
	assert.NoError(err)
	assert.Len(bindings, 1)
	assert.Equal("jobs.#", bindings[0].RoutingKey)
}

func TestPingFailsOnErrorStatus(t *testing.T) {
	assert := tdd.New(t)
	srv := httptest.NewServer(lib.HandlerFunc(func(w lib.ResponseWriter, r *lib.Request) {
		w.WriteHeader(lib.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "", "guest", "wrong")
	assert.NoError(err)
	assert.Error(c.Ping(context.Background()))
}
