package fixture

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestBuiltinStories(t *testing.T) {
	s := NewStore("")
	n, err := s.Count("stories")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	data, err := s.Load("stories.json")
	require.NoError(t, err)
	assert.Equal(t, "React", gjson.GetBytes(data, "hits.0.title").String())
}

func TestDirectoryOverridesBuiltin(t *testing.T) {
	s := NewStore("testdata")
	n, err := s.Count("stories")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// falls back to builtin when the directory lacks the file
	n, err = s.Count("empty")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLoadErrors(t *testing.T) {
	s := NewStore("testdata")

	_, err := s.Load("missing")
	assert.True(t, errors.Is(err, ErrUnknownFixture))

	_, err = s.Load("../go")
	assert.True(t, errors.Is(err, ErrUnknownFixture))

	_, err = s.Load("broken")
	assert.ErrorContains(t, err, "not valid JSON")
}

func TestStoriesParsesHits(t *testing.T) {
	stories, err := NewStore("").Stories("stories")
	require.NoError(t, err)
	require.Len(t, stories, 3)
	assert.Equal(t, "React", stories[0].Title)
	assert.Equal(t, "Jordan Walke", stories[0].Author)
	assert.Equal(t, 3, stories[0].NumComments)
	assert.Equal(t, 25, stories[0].Points)

	assert.Empty(t, ParseStories([]byte(`{"hits":[]}`)))
}
