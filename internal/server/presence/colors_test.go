package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorForDeterministic(t *testing.T) {
	c1 := ColorFor("alice")
	c2 := ColorFor("alice")
	assert.Equal(t, c1, c2, "color must be stable across reconnects")
	assert.Contains(t, palette, c1)
}

func TestColorForSpreadsUsers(t *testing.T) {
	// Не строгая гарантия, но базовая проверка, что разные userId
	// не сваливаются в один цвет.
	seen := make(map[string]bool)
	for _, id := range []string{"alice", "bob", "carol", "dave", "erin", "frank"} {
		seen[ColorFor(id)] = true
	}
	assert.Greater(t, len(seen), 2)
}
