package eviction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRUEvictsHeadOfSequence(t *testing.T) {
	l := NewEvictionPolicy()

	l.OnPut("a")
	l.OnPut("b")
	l.OnPut("c")
	l.OnGet("a")

	assert.Equal(t, []string{"b", "c", "a"}, l.Keys())
	assert.Equal(t, "b", l.Evict())
	assert.Equal(t, "c", l.Evict())
	assert.Equal(t, "a", l.Evict())
	assert.Equal(t, "", l.Evict())
	assert.Equal(t, 0, l.Len())
}

func TestLRUOnPutExistingKeyMovesIt(t *testing.T) {
	l := NewEvictionPolicy()

	l.OnPut("a")
	l.OnPut("b")
	l.OnPut("a")

	assert.Equal(t, []string{"b", "a"}, l.Keys())
	assert.Equal(t, 2, l.Len())
}

func TestLRURemove(t *testing.T) {
	l := NewEvictionPolicy()

	l.OnPut("a")
	l.OnPut("b")
	l.OnPut("c")
	l.Remove("b")
	l.Remove("missing")
	l.OnGet("missing")

	assert.Equal(t, []string{"a", "c"}, l.Keys())

	l.Remove("a")
	l.Remove("c")
	assert.Empty(t, l.Keys())

	l.OnPut("d")
	assert.Equal(t, []string{"d"}, l.Keys())
}

func TestLRUReset(t *testing.T) {
	l := NewEvictionPolicy()

	l.OnPut("a")
	l.Reset()

	assert.Equal(t, 0, l.Len())
	assert.Equal(t, "", l.Evict())
}
