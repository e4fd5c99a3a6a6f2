package scenarios

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"testing"

	tassert "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyharness/internal/assert"
	"storyharness/internal/config"
	"storyharness/internal/driver"
	"storyharness/internal/harness"
	"storyharness/internal/logger"
	"storyharness/internal/suite"
	"storyharness/pkg/model"
	"storyharness/pkg/rulespec"
)

func newHarness(t *testing.T) *harness.Harness {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Harness.WaitTimeoutMS = 2000
	cfg.Harness.AssertTimeoutMS = 300
	cfg.Harness.PollIntervalMS = 10
	h, err := harness.New(cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func catalogFor(t *testing.T, h *harness.Harness) *suite.Node {
	t.Helper()
	stories, err := h.Fixtures().Stories("stories")
	require.NoError(t, err)
	return Catalog(Options{
		Stories:        stories,
		Words:          []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot"},
		AscendingFirst: true,
	})
}

func reportFailures(t *testing.T, res suite.Results) {
	t.Helper()
	for _, f := range res.Failures {
		for _, err := range f.Errors {
			t.Errorf("[%s] %v", f.TestID, err)
		}
	}
}

func TestCatalogPassesAgainstSimulatedClient(t *testing.T) {
	h := newHarness(t)
	root := catalogFor(t, h)

	res := (&suite.Runner{Factory: h.Factory()}).Run(context.Background(), root)
	reportFailures(t, res)

	passed, failed, skipped := res.Counts()
	tassert.Equal(t, len(root.Scenarios()), passed)
	tassert.Zero(t, failed)
	tassert.Zero(t, skipped)
}

func TestCatalogScenarioNames(t *testing.T) {
	var names []string
	for _, id := range Catalog(Options{}).Scenarios() {
		names = append(names, id.String())
	}
	tassert.Contains(t, names, "Hacker Stories/hitting the real API/Search/shows the footer")
	tassert.Contains(t, names, "Hacker Stories/hitting the real API/Last searches/shows a max of 5 buttons for the last searched terms")
	tassert.Contains(t, names, "Hacker Stories/Mocking the API/shows only 2 stories after dismissing the first story")
	tassert.Contains(t, names, "Hacker Stories/List of stories/Order by/orders by points")
	tassert.Len(t, names, 14)
}

func TestRenderedDataSkippedWithoutStories(t *testing.T) {
	h := newHarness(t)
	var f suite.RegexFilters
	require.NoError(t, f.MustMatch.Set("rendered stories"))

	res := (&suite.Runner{Factory: h.Factory(), Filter: f.AsFilter}).Run(context.Background(), Catalog(Options{}))
	tassert.True(t, res.OK())
	var reasons []string
	for _, r := range res.Tests {
		reasons = append(reasons, r.SkipReason)
	}
	tassert.Contains(t, reasons, "fixture stories not provided")
}

func TestErrorScenariosDoNotReachBackend(t *testing.T) {
	h := newHarness(t)
	var f suite.RegexFilters
	require.NoError(t, f.MustMatch.Set("/Errors/"))

	res := (&suite.Runner{Factory: h.Factory(), Filter: f.AsFilter}).Run(context.Background(), catalogFor(t, h))
	reportFailures(t, res)
	passed, _, _ := res.Counts()
	tassert.Equal(t, 2, passed)
	tassert.Zero(t, h.Backend().Requests())
}

func TestTimeoutAbortsOnlyCurrentScenario(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Harness.WaitTimeoutMS = 50
	h, err := harness.New(cfg, logger.NewNop())
	require.NoError(t, err)
	defer h.Close()

	ranSibling := false
	root := suite.Describe("root",
		suite.It("waits for a label that never fires", func(t *suite.T) {
			d, ctx := t.Driver(), t.Context()
			t.Require(d.Intercept("never", searchQuery("nothing", "9"), rulespec.Passthrough()))
			t.Require(d.Visit(ctx, "/"))
			_, err := d.Await(ctx, "never")
			t.Require(err)
		}),
		suite.It("sibling", func(t *suite.T) {
			ranSibling = true
			t.Require(t.Driver().Visit(t.Context(), "/"))
		}),
	)
	res := (&suite.Runner{Factory: h.Factory()}).Run(context.Background(), root)
	tassert.True(t, ranSibling)
	require.Len(t, res.Failures, 1)
	tassert.True(t, errors.Is(res.Failures[0].Errors[0], model.ErrTimeout))
	tassert.True(t, strings.HasSuffix(res.Failures[0].TestID.String(), "never fires"))
}

func TestRandomTermsAreDistinct(t *testing.T) {
	o := Options{}.withDefaults()
	terms := o.randomTerms(MaxLastSearches + 1)
	require.Len(t, terms, MaxLastSearches+1)
	seen := map[string]bool{}
	for _, term := range terms {
		tassert.False(t, seen[term])
		tassert.NotEqual(t, o.InitialTerm, term)
		tassert.NotEqual(t, o.NewTerm, term)
		seen[term] = true
	}

	o.Words = []string{"one", "two", "React"}
	fixed := o.randomTerms(3)
	tassert.Equal(t, []string{"one", "two", "Kubernetes"}, fixed)
}

func TestBuiltinStoriesAreUnorderedInEveryColumn(t *testing.T) {
	h := newHarness(t)
	stories, err := h.Fixtures().Stories("stories")
	require.NoError(t, err)
	els := make([]model.Element, 0, len(stories))
	for _, s := range stories {
		els = append(els, model.Element{Visible: true, Fields: []string{
			s.Title, s.Author, strconv.Itoa(s.NumComments), strconv.Itoa(s.Points),
		}})
	}
	for _, label := range []string{"Title", "Author", "Comments", "Points"} {
		field, ok := assert.FieldBySortLabel(label)
		require.True(t, ok)
		tassert.Error(t, assert.Ordered(els, field, assert.Ascending), label)
		tassert.Error(t, assert.Ordered(els, field, assert.Descending), label)
	}
}

func TestOrderByRejectsPreorderedList(t *testing.T) {
	h := newHarness(t)
	byAuthor := []model.Story{
		{ObjectID: "1", Title: "b", Author: "a", NumComments: 2, Points: 9},
		{ObjectID: "2", Title: "c", Author: "b", NumComments: 1, Points: 3},
		{ObjectID: "3", Title: "a", Author: "c", NumComments: 3, Points: 5},
	}
	root := suite.Describe("root", suite.It("orders by author", func(t *suite.T) {
		d, ctx := t.Driver(), t.Context()
		t.Require(d.InterceptPattern(LabelMockAPI, http.MethodGet, "**/search**", rulespec.Body(200, storiesBody(byAuthor))))
		t.Require(d.Visit(ctx, "/"))
		_, err := d.Await(ctx, LabelMockAPI)
		t.Require(err)
		orderBy(Options{AscendingFirst: true}, "Author")(t)
	}))

	res := (&suite.Runner{Factory: h.Factory()}).Run(context.Background(), root)
	require.Len(t, res.Failures, 1)
	tassert.Contains(t, res.Failures[0].Errors[0].Error(), "already ordered by author")
}

func TestMockedScenariosCountEverySearchRequest(t *testing.T) {
	h := newHarness(t)
	var before, after int64
	var exchanges int
	root := suite.Describe("root", suite.It("refetches another term", func(t *suite.T) {
		d, ctx := t.Driver(), t.Context()
		before = d.MatchedRequests()
		exchanges = len(d.Exchanges())
		t.Require(d.ClearSearch(ctx))
		t.Require(d.Type(ctx, "Cypress"))
		t.Require(d.Submit(ctx, driver.ByEnter))
		t.Require(d.ExpectCount(ctx, driver.SelItem, 3))
		after = d.MatchedRequests()
	})).BeforeEach(visitMocked(Options{}.withDefaults()))

	res := (&suite.Runner{Factory: h.Factory()}).Run(context.Background(), root)
	reportFailures(t, res)
	tassert.Equal(t, before+1, after)
	tassert.Equal(t, 1, exchanges)
	tassert.Zero(t, h.Backend().Requests())
}

func storiesBody(stories []model.Story) []byte {
	body, _ := json.Marshal(map[string]any{"hits": stories, "page": 0, "nbPages": 1})
	return body
}
