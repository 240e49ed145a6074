package amqp

import (
	"crypto/tls"

	xlog "github.com/warrenq/warren/log"
)

// Option instances allow to adjust the settings and behavior of a
// session (and the publisher/consumer built on top of it).
type Option func(s *session) error

// WithLogger sets the logger instance used to report internal events.
// When not provided, a discard (no-op) logger is used.
func WithLogger(ll xlog.Logger) Option {
	return func(s *session) error {
		if ll != nil {
			s.log = ll
		}
		return nil
	}
}

// WithName sets an identifier for the session instance, used as a
// prefix when generating queue names and consumer tags. If not set,
// a random name is generated.
func WithName(name string) Option {
	return func(s *session) error {
		s.name = name
		return nil
	}
}

// WithTLS enables encrypted connections (AMQPS) using the provided
// TLS configuration. A nil value is a no-op, allowing callers to pass
// a possibly-unset configuration unconditionally.
func WithTLS(conf *tls.Config) Option {
	return func(s *session) error {
		if conf != nil {
			s.tlsConf = conf
		}
		return nil
	}
}

// WithTopology registers the broker topology (exchanges, queues and
// bindings) the session must ensure on every successful connection.
func WithTopology(tp Topology) Option {
	return func(s *session) error {
		s.topology = tp
		return nil
	}
}

// WithPrefetch adjusts the "quality of service" settings used by the
// session's channel. "count" limits the number of unacknowledged
// deliveries in flight; "size" limits the total body bytes for
// unacknowledged deliveries. A "size" value of 0 disables the byte
// limit.
func WithPrefetch(count, size int) Option {
	return func(s *session) error {
		s.prefetchCount = count
		s.prefetchSize = size
		return nil
	}
}
