// Package scenarios 是 Hacker Stories 客户端的端到端场景目录。
package scenarios

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"

	"storyharness/internal/assert"
	"storyharness/internal/driver"
	"storyharness/internal/suite"
	"storyharness/pkg/model"
	"storyharness/pkg/rulespec"
)

const (
	FooterText   = "Icons made by Freepik from www.flaticon.com"
	ErrorMessage = "Something went wrong ..."

	// MaxLastSearches 最近搜索按钮上限
	MaxLastSearches = 5
	// PageSize 每页故事数
	PageSize = 20
)

// 场景中使用的拦截标签
const (
	LabelInitial     model.Label = "getStories"
	LabelNextStories model.Label = "getNextStories"
	LabelTypes       model.Label = "getTypes"
	LabelNewTerm     model.Label = "getNewTerm"
	LabelSearch      model.Label = "search"
	LabelLastSearch  model.Label = "lastSearch"
	LabelRandomTerms model.Label = "randomTerms"
	LabelServerError model.Label = "serverError"
	LabelNetError    model.Label = "netError"
	LabelMockAPI     model.Label = "mockApi"
	LabelAnySearch   model.Label = "anySearch"
)

var defaultWords = []string{
	"Kubernetes", "Rust", "Python", "Golang", "Docker", "GraphQL",
	"TypeScript", "Linux", "Postgres", "Redis", "Vue", "Svelte",
}

// Options 场景目录参数
type Options struct {
	InitialTerm string
	NewTerm     string
	// Words 用于“最多 5 个按钮”场景的候选词，不足 6 个时用默认词表补足
	Words []string
	// Fixture 模拟 API 使用的夹具名
	Fixture string
	// Stories 夹具中的故事，按夹具顺序
	Stories []model.Story
	// AscendingFirst 要求排序按钮第一次点击为升序；真实页面的首次方向不固定
	AscendingFirst bool
}

func (o Options) withDefaults() Options {
	if o.InitialTerm == "" {
		o.InitialTerm = "React"
	}
	if o.NewTerm == "" {
		o.NewTerm = "Cypress"
	}
	if o.Fixture == "" {
		o.Fixture = "stories"
	}
	return o
}

// storyCount 模拟 API 返回的故事数，未提供时按内置夹具计
func (o Options) storyCount() int {
	if len(o.Stories) == 0 {
		return 3
	}
	return len(o.Stories)
}

// randomTerms 取 n 个与初始词、新词都不同的随机词
func (o Options) randomTerms(n int) []string {
	seen := map[string]bool{o.InitialTerm: true, o.NewTerm: true}
	var pool []string
	for _, w := range append(append([]string{}, o.Words...), defaultWords...) {
		if !seen[w] {
			seen[w] = true
			pool = append(pool, w)
		}
	}
	if len(o.Words) == 0 {
		rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	}
	if len(pool) > n {
		pool = pool[:n]
	}
	return pool
}

func searchQuery(term, page string) rulespec.Matcher {
	return rulespec.Matcher{
		Method: http.MethodGet,
		Path:   "**/search",
		Query:  map[string]string{"query": term, "page": page},
	}
}

// Catalog 构建完整的场景树
func Catalog(opts Options) *suite.Node {
	o := opts.withDefaults()
	return suite.Describe("Hacker Stories",
		suite.Describe("hitting the real API",
			searchGroup(o),
			lastSearchesGroup(o),
			errorsGroup(o),
		),
		suite.Describe("Mocking the API",
			suite.It("shows only 2 stories after dismissing the first story", dismissFirst(o)),
		).BeforeEach(visitMocked(o)),
		suite.Describe("List of stories",
			suite.It("shows the right data for all rendered stories", renderedData(o)),
			suite.Describe("Order by",
				suite.It("orders by title", orderBy(o, "Title")),
				suite.It("orders by author", orderBy(o, "Author")),
				suite.It("orders by comments", orderBy(o, "Comments")),
				suite.It("orders by points", orderBy(o, "Points")),
			),
		).BeforeEach(visitMocked(o)),
	)
}

// visitAndClear 打开首页，等待初始搜索完成后清空搜索框
func visitAndClear(o Options) func(*suite.T) {
	return func(t *suite.T) {
		d, ctx := t.Driver(), t.Context()
		t.Require(d.Intercept(LabelInitial, searchQuery(o.InitialTerm, "0"), rulespec.Passthrough()))
		t.Require(d.Visit(ctx, "/"))
		_, err := d.Await(ctx, LabelInitial)
		t.Require(err)
		t.Require(d.ClearSearch(ctx))
	}
}

// visitMocked 用夹具替换初始搜索
func visitMocked(o Options) func(*suite.T) {
	return func(t *suite.T) {
		d, ctx := t.Driver(), t.Context()
		// 先注册的兜底拦截优先级最低，用于统计初始搜索之外的任何搜索请求
		t.Require(d.InterceptPattern(LabelAnySearch, http.MethodGet, "**/search**", rulespec.Fixture(o.Fixture)))
		pattern := fmt.Sprintf("**/search?query=%s&page=0", o.InitialTerm)
		t.Require(d.InterceptPattern(LabelMockAPI, http.MethodGet, pattern, rulespec.Fixture(o.Fixture)))
		t.Require(d.Visit(ctx, "/"))
		_, err := d.Await(ctx, LabelMockAPI)
		t.Require(err)
	}
}

// exactlyOnce 标签恰好完成一次且请求参数为 term/page
func exactlyOnce(t *suite.T, d *driver.Driver, label model.Label, term, page string) {
	var hits []model.Exchange
	for _, ex := range d.Exchanges() {
		if ex.Label == label {
			hits = append(hits, ex)
		}
	}
	if len(hits) != 1 {
		t.Errorf("expected exactly one %s exchange, got %d", label, len(hits))
		return
	}
	if q := hits[0].Query; q["query"] != term || q["page"] != page {
		t.Errorf("%s exchange had query=%q page=%q, want query=%q page=%q", label, q["query"], q["page"], term, page)
	}
}

func searchGroup(o Options) *suite.Node {
	return suite.Describe("Search",
		suite.It("shows the footer", func(t *suite.T) {
			d, ctx := t.Driver(), t.Context()
			t.Require(d.ExpectVisibleContaining(ctx, driver.SelFooter, FooterText))
		}),

		suite.It(`shows 20 stories, then the next 20 after clicking "More"`, func(t *suite.T) {
			d, ctx := t.Driver(), t.Context()
			t.Require(d.Intercept(LabelNextStories, searchQuery(o.InitialTerm, "1"), rulespec.Passthrough()))

			t.Require(d.ExpectCount(ctx, driver.SelItem, PageSize))
			t.Require(d.ClickText(ctx, driver.SelButton, "More"))
			_, err := d.Await(ctx, LabelNextStories)
			t.Require(err)
			t.Require(d.ExpectCount(ctx, driver.SelItem, 2*PageSize))
		}),

		suite.It("types and hits ENTER", submitNewTerm(o, LabelTypes, driver.ByEnter)),
		suite.It("types and clicks the submit button", submitNewTerm(o, LabelNewTerm, driver.ByButton)),
	).BeforeEach(visitAndClear(o))
}

func submitNewTerm(o Options, label model.Label, mode driver.SubmitMode) func(*suite.T) {
	return func(t *suite.T) {
		d, ctx := t.Driver(), t.Context()
		t.Require(d.Intercept(label, searchQuery(o.NewTerm, "0"), rulespec.Passthrough()))

		t.Require(d.Type(ctx, o.NewTerm))
		t.Require(d.Submit(ctx, mode))
		_, err := d.Await(ctx, label)
		t.Require(err)

		t.Check(d.ExpectCount(ctx, driver.SelItem, PageSize))
		t.Check(d.ExpectFirstContains(ctx, driver.SelItem, o.NewTerm))
		t.Check(d.ExpectVisibleContaining(ctx, driver.SelButton, o.InitialTerm))
		t.Check(d.ExpectStorage(ctx, driver.StorageSearchKey, o.NewTerm))
		exactlyOnce(t, d, label, o.NewTerm, "0")
	}
}

func lastSearchesGroup(o Options) *suite.Node {
	return suite.Describe("Last searches",
		suite.It("searches via the last searched term", func(t *suite.T) {
			d, ctx := t.Driver(), t.Context()
			t.Require(d.Intercept(LabelSearch, searchQuery(o.NewTerm, "0"), rulespec.Passthrough()))
			t.Require(d.Intercept(LabelLastSearch, searchQuery(o.InitialTerm, "0"), rulespec.Passthrough()))

			t.Require(d.Type(ctx, o.NewTerm))
			t.Require(d.Submit(ctx, driver.ByEnter))
			_, err := d.Await(ctx, LabelSearch)
			t.Require(err)

			t.Require(d.ExpectVisibleContaining(ctx, driver.SelButton, o.InitialTerm))
			t.Require(d.ClickText(ctx, driver.SelButton, o.InitialTerm))
			_, err = d.Await(ctx, LabelLastSearch)
			t.Require(err)

			t.Check(d.ExpectCount(ctx, driver.SelItem, PageSize))
			t.Check(d.ExpectFirstContains(ctx, driver.SelItem, o.InitialTerm))
			t.Check(d.ExpectVisibleContaining(ctx, driver.SelButton, o.NewTerm))
			t.Check(d.ExpectStorage(ctx, driver.StorageSearchKey, o.InitialTerm))
		}),

		suite.It("shows a max of 5 buttons for the last searched terms", func(t *suite.T) {
			d, ctx := t.Driver(), t.Context()
			// only page is constrained so every random term resolves the same label
			t.Require(d.Intercept(LabelRandomTerms, rulespec.Matcher{
				Method: http.MethodGet,
				Path:   "**/search",
				Query:  map[string]string{"page": "0"},
			}, rulespec.Passthrough()))

			terms := o.randomTerms(MaxLastSearches + 1)
			if len(terms) < MaxLastSearches+1 {
				t.Errorf("need %d distinct terms, got %d", MaxLastSearches+1, len(terms))
				t.FailNow()
			}
			for _, term := range terms {
				t.Require(d.ClearSearch(ctx))
				t.Require(d.Type(ctx, term))
				t.Require(d.Submit(ctx, driver.ByEnter))
				ex, err := d.Await(ctx, LabelRandomTerms)
				t.Require(err)
				if ex.Query["query"] != term {
					t.Errorf("awaited exchange for %q, got %q", term, ex.Query["query"])
				}
				t.Debug("searched %q (seq %d)", term, ex.Seq)
			}

			t.Check(d.ExpectCount(ctx, driver.SelLastSearches, MaxLastSearches))
			// the initial term was the oldest and is evicted
			t.Check(d.ExpectNoneContaining(ctx, driver.SelLastSearches, o.InitialTerm))
			t.Check(d.ExpectStorage(ctx, driver.StorageSearchKey, terms[len(terms)-1]))
		}),
	).BeforeEach(visitAndClear(o))
}

func errorsGroup(o Options) *suite.Node {
	return suite.Describe("Errors",
		suite.It(`shows "Something went wrong ..." in case of a server error`,
			failedInitialSearch(LabelServerError, rulespec.Status(http.StatusInternalServerError), model.Exchange.ServerError)),
		suite.It(`shows "Something went wrong ..." in case of a network error`,
			failedInitialSearch(LabelNetError, rulespec.NetworkFailure(), model.Exchange.NetworkError)),
	)
}

func failedInitialSearch(label model.Label, p rulespec.Policy, kind func(model.Exchange) bool) func(*suite.T) {
	return func(t *suite.T) {
		d, ctx := t.Driver(), t.Context()
		t.Require(d.InterceptPattern(label, http.MethodGet, "**/search**", p))
		t.Require(d.Visit(ctx, "/"))
		ex, err := d.Await(ctx, label)
		t.Require(err)
		if !kind(ex) {
			t.Errorf("%s exchange: outcome %s status %d error %q", label, ex.Outcome, ex.StatusCode, ex.Error)
		}
		t.Require(d.ExpectVisibleContaining(ctx, driver.SelParagraph, ErrorMessage))
		t.Check(d.ExpectCount(ctx, driver.SelItem, 0))
	}
}

func dismissFirst(o Options) func(*suite.T) {
	return func(t *suite.T) {
		d, ctx := t.Driver(), t.Context()
		n := o.storyCount()
		t.Require(d.ExpectCount(ctx, driver.SelItem, n))
		before := d.MatchedRequests()

		t.Require(d.ClickNth(ctx, driver.SelDismiss, 0))
		t.Require(d.ExpectCount(ctx, driver.SelItem, n-1))
		noNewRequests(t, d, before, "dismiss")
	}
}

func renderedData(o Options) func(*suite.T) {
	return func(t *suite.T) {
		if len(o.Stories) == 0 {
			t.Skip("fixture stories not provided")
		}
		d, ctx := t.Driver(), t.Context()
		t.Require(d.ExpectCount(ctx, driver.SelItem, len(o.Stories)))
		t.Require(d.Expect(ctx, func(ctx context.Context, p driver.Page) error {
			els, err := p.Query(ctx, driver.SelItem)
			if err != nil {
				return err
			}
			for i, s := range o.Stories {
				if err := assert.Row(els, i, s); err != nil {
					return err
				}
			}
			return nil
		}))
	}
}

// orderBy 第一次点击后按某一方向有序，第二次点击反转，且不发起新请求
func orderBy(o Options, label string) func(*suite.T) {
	return func(t *suite.T) {
		field, ok := assert.FieldBySortLabel(label)
		if !ok {
			t.Errorf("unknown sort label %q", label)
			t.FailNow()
		}
		d, ctx := t.Driver(), t.Context()
		t.Require(d.ExpectCount(ctx, driver.SelItem, o.storyCount()))
		initial, err := d.Snapshot(ctx, driver.SelItem)
		t.Require(err)
		if assert.Ordered(initial, field, assert.Ascending) == nil || assert.Ordered(initial, field, assert.Descending) == nil {
			t.Errorf("list is already ordered by %s before sorting; use a fixture that is not", field)
			t.FailNow()
		}
		before := d.MatchedRequests()

		t.Require(d.ClickText(ctx, driver.SelButton, label))
		first := assert.Ascending
		if o.AscendingFirst {
			t.Require(d.ExpectOrdered(ctx, field, first))
		} else {
			t.Require(d.Expect(ctx, func(ctx context.Context, p driver.Page) error {
				els, err := p.Query(ctx, driver.SelItem)
				if err != nil {
					return err
				}
				if err := assert.Ordered(els, field, assert.Ascending); err == nil {
					first = assert.Ascending
					return nil
				}
				if err := assert.Ordered(els, field, assert.Descending); err != nil {
					return err
				}
				first = assert.Descending
				return nil
			}))
		}

		t.Require(d.ClickText(ctx, driver.SelButton, label))
		t.Require(d.ExpectOrdered(ctx, field, first.Reverse()))
		t.Debug("%s sorted %s then %s", field, first, first.Reverse())
		noNewRequests(t, d, before, "sorting")
	}
}

// noNewRequests 自 before 以来没有新的搜索请求被拦截
func noNewRequests(t *suite.T, d *driver.Driver, before int64, action string) {
	if after := d.MatchedRequests(); after != before {
		t.Errorf("%s issued %d network requests", action, after-before)
	}
}
