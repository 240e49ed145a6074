package errors

import (
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

func TestDomainErrorKind(t *testing.T) {
	assert := tdd.New(t)

	err := ConfigurationError(New("missing broker uri"))
	assert.True(IsKind(err, KindConfiguration))
	assert.False(IsKind(err, KindPublish))

	var de *DomainError
	assert.True(As(err, &de))
	assert.Equal(KindConfiguration, de.Kind())
	assert.NotEmpty(de.StackTrace())

	wrapped := Wrap(PublishError(New("confirm timed out")), "publish message")
	assert.True(IsKind(wrapped, KindPublish))
	assert.False(IsKind(wrapped, KindConnection))
}

func TestDomainErrorIsMatchesByKindOnly(t *testing.T) {
	assert := tdd.New(t)
	a := HandlerError(New("boom"))
	b := HandlerError(New("different message"))
	assert.True(Is(a, b))
	assert.False(Is(a, ConnectionError(New("boom"))))
}
