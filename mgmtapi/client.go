// Package mgmtapi is a small client for the RabbitMQ HTTP management
// API, used by broker.Broker to diff a queue's existing bindings
// against the desired set and by cmd/warrend to verify connectivity at
// startup.
package mgmtapi

import (
	"context"
	"encoding/json"
	"fmt"
	lib "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/warrenq/warren/errors"
)

// Client talks to a single RabbitMQ management API endpoint.
type Client struct {
	baseURL  string
	vhost    string
	username string
	password string
	hc       *lib.Client
}

// Option adjusts the internal behavior of a Client instance.
type Option func(c *Client) error

// WithTimeout bounds every request issued by the client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		c.hc.Timeout = timeout
		return nil
	}
}

// WithRoundTripper overrides the client's transport, useful for tests.
func WithRoundTripper(rt lib.RoundTripper) Option {
	return func(c *Client) error {
		c.hc.Transport = rt
		return nil
	}
}

// NewClient returns a management API client for baseURL (e.g.
// "http://localhost:15672") authenticating as username/password against
// vhost ("/" when empty).
func NewClient(baseURL, vhost, username, password string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.ConfigurationError(errors.New("mgmtapi: base url is required"))
	}
	if vhost == "" {
		vhost = "/"
	}
	c := &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		vhost:    vhost,
		username: username,
		password: password,
		hc:       &lib.Client{Transport: lib.DefaultTransport, Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Binding mirrors the subset of the management API's binding
// representation BindQueue needs to compute a diff.
type Binding struct {
	Source          string `json:"source"`
	Destination     string `json:"destination"`
	DestinationType string `json:"destination_type"`
	RoutingKey      string `json:"routing_key"`
}

// Bindings returns every binding currently registered for queue.
func (c *Client) Bindings(ctx context.Context, queue string) ([]Binding, error) {
	path := fmt.Sprintf("/api/queues/%s/%s/bindings", url.PathEscape(c.vhost), url.PathEscape(queue))
	var out []Binding
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping verifies the management API is reachable and the configured
// credentials are accepted, by requesting the cluster overview.
func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, "/api/overview", new(map[string]interface{}))
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := lib.NewRequestWithContext(ctx, lib.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.ConnectionError(errors.Wrap(err, "build management api request"))
	}
	req.SetBasicAuth(c.username, c.password)
	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.ConnectionError(errors.Wrap(err, "call management api"))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.ConnectionError(errors.Errorf("management api returned status %d for %s", resp.StatusCode, path))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.ConnectionError(errors.Wrap(err, "decode management api response"))
	}
	return nil
}
