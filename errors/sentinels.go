package errors

// Kind classifies the broad category a domain error belongs to, so
// callers can branch on failure class without string matching.
type Kind string

const (
	// KindConfiguration marks startup-time misconfiguration: bad URIs,
	// missing required settings, invalid TLS material. A declared
	// queue/exchange that conflicts with an existing one on the broker
	// is KindPrecondition instead.
	KindConfiguration Kind = "configuration"

	// KindConnection marks broker connectivity failures: dial errors,
	// unexpected channel/connection closes, reconnect exhaustion.
	KindConnection Kind = "connection"

	// KindPrecondition marks a broker-reported 406 precondition-failed
	// reply, typically a topology mismatch against an existing entity.
	KindPrecondition Kind = "precondition"

	// KindPublish marks a failure to deliver or confirm an outgoing
	// message.
	KindPublish Kind = "publish"

	// KindHandler marks an error returned by user handler code while
	// processing a delivery.
	KindHandler Kind = "handler"

	// KindSerialization marks a failure to encode or decode a message
	// body using the configured serializer.
	KindSerialization Kind = "serialization"
)

// DomainError carries a Kind alongside the usual wrapped cause, letting
// callers use Is/As against a Kind value instead of a specific message.
// It captures its own stack trace so it can stand as the root of an
// error chain without needing a further WithStack/New wrapper, which
// would otherwise hide it from errors.As (Error.Unwrap only walks
// `prev`, not the unexported root cause).
type DomainError struct {
	kind   Kind
	cause  error
	frames []StackFrame
}

// Kind classifying this error.
func (e *DomainError) Kind() Kind { return e.kind }

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.cause == nil {
		return string(e.kind)
	}
	return string(e.kind) + ": " + e.cause.Error()
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *DomainError) Unwrap() error { return e.cause }

// StackTrace satisfies HasStack.
func (e *DomainError) StackTrace() []StackFrame { return e.frames }

// Is reports equality based on Kind alone, so `errors.Is(err,
// ConfigurationError(nil))` matches any configuration error regardless
// of its wrapped cause or message.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if As(target, &other) {
		return other.kind == e.kind
	}
	return false
}

func newDomainError(kind Kind, cause error) error {
	return &DomainError{kind: kind, cause: cause, frames: getStack(2)}
}

// ConfigurationError wraps cause as a startup/configuration failure.
func ConfigurationError(cause error) error { return newDomainError(KindConfiguration, cause) }

// ConnectionError wraps cause as a broker connectivity failure.
func ConnectionError(cause error) error { return newDomainError(KindConnection, cause) }

// PreconditionError wraps cause as a broker precondition-failed reply.
func PreconditionError(cause error) error { return newDomainError(KindPrecondition, cause) }

// PublishError wraps cause as a publish/confirm failure.
func PublishError(cause error) error { return newDomainError(KindPublish, cause) }

// HandlerError wraps cause as a user handler failure.
func HandlerError(cause error) error { return newDomainError(KindHandler, cause) }

// SerializationError wraps cause as an encode/decode failure.
func SerializationError(cause error) error { return newDomainError(KindSerialization, cause) }

// IsKind reports whether err carries the given Kind anywhere in its
// chain.
func IsKind(err error, kind Kind) bool {
	var de *DomainError
	if As(err, &de) {
		return de.kind == kind
	}
	return false
}
