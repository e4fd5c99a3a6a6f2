package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyharness/internal/suite"
	"storyharness/pkg/model"
)

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(nil)
	s := m.Create("a", nil, make(chan model.Event, 1))
	m.Create("b", nil, nil)

	got, ok := m.Get("a")
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Len(t, m.List(), 2)

	require.NoError(t, m.Delete("a"))
	_, ok = m.Get("a")
	assert.False(t, ok)
	assert.NoError(t, m.Delete("a"))

	select {
	case <-s.Done():
	default:
		t.Fatal("session not closed")
	}
}

func TestSessionRunGuard(t *testing.T) {
	s := New("x", nil, nil)
	require.NoError(t, s.Begin())
	assert.True(t, s.Running())
	assert.ErrorIs(t, s.Begin(), ErrBusy)

	_, ok := s.Results()
	assert.False(t, ok)
	s.End(suite.Results{Tests: []suite.TestResult{{}}})
	res, ok := s.Results()
	require.True(t, ok)
	assert.Len(t, res.Tests, 1)
	assert.False(t, s.Running())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Error(t, s.Begin())
}
