package assert

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	testify "github.com/stretchr/testify/assert"

	"storyharness/pkg/model"
)

func row(title, author, comments, points string) model.Element {
	return model.Element{
		Text:    title + " " + author,
		Visible: true,
		Fields:  []string{title, author, comments, points},
	}
}

func TestCountAndVisible(t *testing.T) {
	els := []model.Element{{Text: "a", Visible: true}, {Text: "b", Visible: true}}
	testify.NoError(t, Count(".item", els, 2))

	err := Count(".item", els, 20)
	var af *model.AssertionFailure
	require.True(t, errors.As(err, &af))
	testify.Equal(t, 20, af.Expected)
	testify.Equal(t, 2, af.Actual)

	testify.NoError(t, Visible("footer", els))
	testify.Error(t, Visible("footer", nil))
	testify.Error(t, Visible("footer", []model.Element{{Visible: false}}))
}

func TestContains(t *testing.T) {
	els := []model.Element{{Text: "Cypress story #1", Visible: true}, {Text: "React", Visible: true}}
	testify.NoError(t, FirstContains(".item", els, "Cypress"))
	testify.Error(t, FirstContains(".item", els, "React"))
	testify.Error(t, FirstContains(".item", nil, "React"))
	testify.NoError(t, AnyVisibleContaining("button", els, "React"))
	testify.Error(t, AnyVisibleContaining("button", els, "Vue"))
	testify.NoError(t, NoneContaining("button", els, "Vue"))
	testify.Error(t, NoneContaining("button", els, "React"))
}

func TestStorageEquals(t *testing.T) {
	testify.NoError(t, StorageEquals("search", "Cypress", true, "Cypress"))
	testify.Error(t, StorageEquals("search", "Cypres", true, "Cypress"))
	testify.Error(t, StorageEquals("search", "", false, "Cypress"))
}

func TestOrderedLexicographicAndNumeric(t *testing.T) {
	els := []model.Element{
		row("Cypress", "Brian Mann", "20", "7"),
		row("Event-driven architecture", "Wlad Paiva", "1", "1"),
		row("React", "Jordan Walke", "3", "25"),
	}
	testify.NoError(t, Ordered(els, FieldTitle, Ascending))
	testify.Error(t, Ordered(els, FieldTitle, Descending))
	testify.Error(t, Ordered(els, FieldAuthor, Ascending))

	byComments := []model.Element{els[1], els[2], els[0]} // 1, 3, 20
	testify.NoError(t, Ordered(byComments, FieldComments, Ascending))
	// "20" < "3" lexicographically, numeric order must not be fooled
	testify.Error(t, Ordered([]model.Element{els[0], els[2]}, FieldComments, Ascending))
	testify.NoError(t, Ordered([]model.Element{els[0], els[2]}, FieldComments, Descending))

	testify.Error(t, Ordered([]model.Element{row("a", "b", "x", "1"), row("c", "d", "2", "1")}, FieldComments, Ascending))
	testify.Error(t, Ordered([]model.Element{{Text: "short"}, {Text: "rows"}}, FieldPoints, Ascending))
}

func TestFieldBySortLabel(t *testing.T) {
	f, ok := FieldBySortLabel("Points")
	require.True(t, ok)
	testify.True(t, f.Numeric())
	_, ok = FieldBySortLabel("Date")
	testify.False(t, ok)
}

func TestRow(t *testing.T) {
	s := model.Story{ObjectID: "2", Title: "React", Author: "Jordan Walke", NumComments: 3, Points: 25}
	els := []model.Element{row("React", "Jordan Walke", "3", "25")}
	testify.NoError(t, Row(els, 0, s))
	testify.Error(t, Row(els, 1, s))

	s.Points = 26
	testify.Error(t, Row(els, 0, s))
	testify.Equal(t, Descending, Ascending.Reverse())
}
