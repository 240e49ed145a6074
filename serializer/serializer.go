// Package serializer converts between application-level message values
// and the byte payload carried over AMQP.
package serializer

import (
	"encoding/json"

	"github.com/warrenq/warren/errors"
)

// Serializer encodes and decodes message bodies for a given content type.
type Serializer interface {
	// ContentType returned to set on outgoing message properties, and
	// matched against incoming message properties to pick a decoder.
	ContentType() string

	// Encode marshals v into a byte payload.
	Encode(v interface{}) ([]byte, error)

	// Decode unmarshals a byte payload into v, which must be a pointer.
	Decode(body []byte, v interface{}) error
}

// JSON serializes message bodies as JSON, the default for this package.
type JSON struct{}

// ContentType implements Serializer.
func (JSON) ContentType() string { return "application/json" }

// Encode implements Serializer.
func (JSON) Encode(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.SerializationError(errors.Wrap(err, "encode json body"))
	}
	return b, nil
}

// Decode implements Serializer.
func (JSON) Decode(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return errors.SerializationError(errors.Wrap(err, "decode json body"))
	}
	return nil
}

// Identity passes the body through unchanged; v must be a *[]byte.
type Identity struct{}

// ContentType implements Serializer.
func (Identity) ContentType() string { return "application/octet-stream" }

// Encode implements Serializer.
func (Identity) Encode(v interface{}) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, errors.SerializationError(errors.New("identity serializer requires a []byte value"))
	}
	return b, nil
}

// Decode implements Serializer.
func (Identity) Decode(body []byte, v interface{}) error {
	ptr, ok := v.(*[]byte)
	if !ok {
		return errors.SerializationError(errors.New("identity serializer requires a *[]byte target"))
	}
	*ptr = body
	return nil
}

// Default returns the package's default serializer, JSON.
func Default() Serializer {
	return JSON{}
}
