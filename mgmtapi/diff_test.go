package mgmtapi

import (
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

func TestRoutingKeyDiff(t *testing.T) {
	assert := tdd.New(t)

	existing := []Binding{
		{Source: "warren.tasks", Destination: "tasks", DestinationType: "queue", RoutingKey: "a"},
		{Source: "warren.tasks", Destination: "tasks", DestinationType: "queue", RoutingKey: "b"},
		{Source: "other.exchange", Destination: "tasks", DestinationType: "queue", RoutingKey: "c"},
	}

	toBind, toUnbind := RoutingKeyDiff(existing, "warren.tasks", []string{"b", "d"})
	assert.ElementsMatch([]string{"d"}, toBind)
	assert.ElementsMatch([]string{"a"}, toUnbind)
}

func TestRoutingKeyDiffNoExisting(t *testing.T) {
	assert := tdd.New(t)
	toBind, toUnbind := RoutingKeyDiff(nil, "warren.tasks", []string{"x", "y"})
	assert.ElementsMatch([]string{"x", "y"}, toBind)
	assert.Empty(toUnbind)
}
