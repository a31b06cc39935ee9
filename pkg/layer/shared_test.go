package layer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShared_HandlesSeeEveryChange(t *testing.T) {
	s := NewShared("a", "b")
	held := s

	s.Append("c")
	assert.True(t, held.Remove("a"))
	assert.False(t, held.Remove("zz"))
	assert.Equal(t, []string{"b", "c"}, s.Items())

	items := s.Items()
	items[0] = "mutated"
	assert.Equal(t, "b", s.Items()[0], "readers get copies")

	s.Replace("x")
	assert.Equal(t, 1, held.Len())
	assert.True(t, held.Contains("x"))
}

func TestIndexSet_NoDuplicates(t *testing.T) {
	s := NewIndexSet(3, 1, 3)
	assert.Equal(t, []int{3, 1}, s.Items())

	assert.False(t, s.Add(1))
	assert.True(t, s.Add(7))
	assert.Equal(t, []int{3, 1, 7}, s.Items())

	s.Replace(2, 2, 4)
	assert.Equal(t, []int{2, 4}, s.Items())
}

func TestListeners(t *testing.T) {
	var l Listeners[int]
	var got []int

	first := l.Add(func(v int) { got = append(got, v) })
	var second Token
	second = l.Add(func(v int) {
		got = append(got, v*10)
		// Unsubscribing while firing only affects the next dispatch.
		require.NoError(t, l.Remove(second))
	})

	l.Fire(1)
	l.Fire(2)
	assert.Equal(t, []int{1, 10, 2}, got)
	assert.Equal(t, 1, l.Len())

	require.NoError(t, l.Remove(first))
	assert.ErrorIs(t, l.Remove(first), ErrListenerNotRegistered)
	assert.ErrorIs(t, l.Remove(Token(99)), ErrListenerNotRegistered)
	assert.Zero(t, l.Len())
}
