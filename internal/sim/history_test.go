package sim

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestLastSearchesEvictsOldest(t *testing.T) {
	l := NewLastSearches()
	l.Record("React")
	for i := 1; i <= 6; i++ {
		l.Record(fmt.Sprintf("term%d", i))
	}
	// React and term1 fell off; term6 is current
	assert.Equal(t, []string{"term1", "term2", "term3", "term4", "term5"}, l.Terms())
	assert.Equal(t, "term6", l.Current())

	l.Record("term7")
	assert.Equal(t, []string{"term2", "term3", "term4", "term5", "term6"}, l.Terms())
}

func TestLastSearchesRevisit(t *testing.T) {
	l := NewLastSearches()
	l.Record("React")
	l.Record("Cypress")
	assert.Equal(t, []string{"React"}, l.Terms())

	// clicking the React button makes it current and lists Cypress
	l.Record("React")
	assert.Equal(t, []string{"Cypress"}, l.Terms())

	// repeating the current search changes nothing
	l.Record("React")
	assert.Equal(t, []string{"Cypress"}, l.Terms())
}

func TestLastSearchesProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := NewLastSearches()
		terms := rapid.SliceOf(rapid.SampledFrom([]string{"a", "b", "c", "d", "e", "f", "g", "h"})).Draw(t, "terms")
		for _, term := range terms {
			l.Record(term)

			got := l.Terms()
			if len(got) > MaxLastSearches {
				t.Fatalf("%d last searches, limit is %d", len(got), MaxLastSearches)
			}
			if l.Current() != term {
				t.Fatalf("current %q, want %q", l.Current(), term)
			}
			seen := map[string]bool{}
			for _, g := range got {
				if g == term {
					t.Fatalf("current term %q listed as a last search", term)
				}
				if seen[g] {
					t.Fatalf("duplicate last search %q in %v", g, got)
				}
				seen[g] = true
			}
		}
	})
}
