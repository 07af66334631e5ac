package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStackPushPop(t *testing.T) {
	s := NewStack()
	s.Push(int64(1))
	s.Push(int64(2))

	v, err := s.Pop()
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	assert.Equal(t, 1, s.Len())
}

func TestStackPopUnderflow(t *testing.T) {
	s := NewStack()
	_, err := s.Pop()
	assert.Error(t, err)
}

func TestStackTailDoesNotRemove(t *testing.T) {
	s := NewStack()
	s.Push(int64(1))
	s.Push(int64(2))
	s.Push(int64(3))

	tail, err := s.Tail(2)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(2), int64(3)}, tail)
	assert.Equal(t, 3, s.Len())
}

func TestStackTailOutOfRange(t *testing.T) {
	s := NewStack()
	s.Push(int64(1))
	_, err := s.Tail(5)
	assert.Error(t, err)
}
