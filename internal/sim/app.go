// Package sim 是被测 Hacker Stories 客户端的进程内替身。
//
// 它实现 driver.Page，维护一个简化的 DOM 模型，并通过注入的 http.Client
// 发起搜索请求，使整套场景无需浏览器即可运行。
package sim

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"storyharness/internal/fixture"
	"storyharness/pkg/model"
)

const (
	StorageKey   = "search"
	FooterText   = "Icons made by Freepik from www.flaticon.com"
	ErrorMessage = "Something went wrong ..."
)

// Sort keys，与列表头按钮文本一致
const (
	SortNone     = ""
	SortTitle    = "Title"
	SortAuthor   = "Author"
	SortComments = "Comments"
	SortPoints   = "Points"
)

type button struct {
	text    string
	group   string // submit, last-search, sort, dismiss, more
	enabled bool
	onClick func(ctx context.Context) error
}

// App 页面替身
type App struct {
	mu          sync.Mutex
	client      *http.Client
	apiBase     string
	initialTerm string
	storage     map[string]string

	loaded   bool
	input    string
	term     string
	page     int
	stories  []model.Story
	isError  bool
	sortKey  string
	reverse  bool
	searches *LastSearches
}

// NewApp 创建页面替身；client 的传输通常是拦截传输
func NewApp(client *http.Client, apiBase, initialTerm string) *App {
	if !strings.HasSuffix(apiBase, "/") {
		apiBase += "/"
	}
	return &App{
		client:      client,
		apiBase:     apiBase,
		initialTerm: initialTerm,
		storage:     make(map[string]string),
	}
}

// Navigate 加载页面：从存储恢复搜索词并请求第一页
func (a *App) Navigate(ctx context.Context, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	term, ok := a.storage[StorageKey]
	if !ok {
		term = a.initialTerm
	}
	a.loaded = true
	a.input = term
	a.stories = nil
	a.isError = false
	a.sortKey = SortNone
	a.reverse = false
	a.searches = NewLastSearches()
	a.search(ctx, term, 0)
	return nil
}

// Clear 清空输入框
func (a *App) Clear(_ context.Context, selector string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireInput(selector); err != nil {
		return err
	}
	a.input = ""
	return nil
}

// Type 在输入框末尾追加文本
func (a *App) Type(_ context.Context, selector, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireInput(selector); err != nil {
		return err
	}
	a.input += text
	return nil
}

// PressEnter 在输入框中回车，提交表单
func (a *App) PressEnter(ctx context.Context, selector string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireInput(selector); err != nil {
		return err
	}
	a.submit(ctx)
	return nil
}

// Click 点击 selector 匹配的第 index 个元素
func (a *App) Click(ctx context.Context, selector string, index int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loaded {
		return fmt.Errorf("page not loaded")
	}
	bs := a.buttonsFor(selector)
	if index < 0 || index >= len(bs) {
		return fmt.Errorf("no element %s at index %d (found %d)", selector, index, len(bs))
	}
	return a.press(ctx, bs[index])
}

// ClickText 点击 selector 匹配且文本包含 text 的第一个元素
func (a *App) ClickText(ctx context.Context, selector, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loaded {
		return fmt.Errorf("page not loaded")
	}
	for _, b := range a.buttonsFor(selector) {
		if strings.Contains(b.text, text) {
			return a.press(ctx, b)
		}
	}
	return fmt.Errorf("no element %s containing %q", selector, text)
}

// Query 返回 selector 匹配元素的快照
func (a *App) Query(_ context.Context, selector string) ([]model.Element, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loaded {
		return nil, nil
	}
	switch selector {
	case "#search":
		return []model.Element{{Text: a.input, Visible: true}}, nil
	case ".item":
		rows := a.visibleStories()
		out := make([]model.Element, 0, len(rows))
		for _, s := range rows {
			fields := []string{s.Title, s.Author, strconv.Itoa(s.NumComments), strconv.Itoa(s.Points)}
			out = append(out, model.Element{Text: strings.Join(fields, " "), Visible: true, Fields: fields})
		}
		return out, nil
	case "p":
		if a.isError {
			return []model.Element{{Text: ErrorMessage, Visible: true}}, nil
		}
		return nil, nil
	case "footer":
		return []model.Element{{Text: FooterText, Visible: true}}, nil
	}
	bs := a.buttonsFor(selector)
	if bs == nil {
		return nil, nil
	}
	out := make([]model.Element, 0, len(bs))
	for _, b := range bs {
		out = append(out, model.Element{Text: b.text, Visible: true})
	}
	return out, nil
}

// Storage 读取 localStorage
func (a *App) Storage(_ context.Context, key string) (string, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.storage[key]
	return v, ok, nil
}

// Close 无资源需要释放
func (a *App) Close() error { return nil }

func (a *App) requireInput(selector string) error {
	if !a.loaded {
		return fmt.Errorf("page not loaded")
	}
	if selector != "#search" {
		return fmt.Errorf("%s is not an input", selector)
	}
	return nil
}

func (a *App) press(ctx context.Context, b button) error {
	if !b.enabled {
		return nil
	}
	return b.onClick(ctx)
}

func (a *App) submit(ctx context.Context) {
	term := a.input
	if term == "" {
		return
	}
	a.storage[StorageKey] = term
	a.search(ctx, term, 0)
}

// buttonsFor 按 DOM 顺序返回 selector 匹配的按钮
func (a *App) buttonsFor(selector string) []button {
	all := a.buttons()
	var group string
	switch selector {
	case "button":
		return all
	case ".button-small":
		group = "dismiss"
	case ".last-searches button":
		group = "last-search"
	default:
		return nil
	}
	var out []button
	for _, b := range all {
		if b.group == group {
			out = append(out, b)
		}
	}
	return out
}

func (a *App) buttons() []button {
	out := []button{{
		text:    "Submit",
		group:   "submit",
		enabled: a.input != "",
		onClick: func(ctx context.Context) error { a.submit(ctx); return nil },
	}}
	for _, t := range a.searches.Terms() {
		t := t
		out = append(out, button{text: t, group: "last-search", enabled: true, onClick: func(ctx context.Context) error {
			a.input = t
			a.storage[StorageKey] = t
			a.search(ctx, t, 0)
			return nil
		}})
	}
	if a.isError {
		return out
	}
	for _, key := range []string{SortTitle, SortAuthor, SortComments, SortPoints} {
		key := key
		out = append(out, button{text: key, group: "sort", enabled: true, onClick: func(context.Context) error {
			if a.sortKey == key {
				a.reverse = !a.reverse
			} else {
				a.sortKey = key
				a.reverse = false
			}
			return nil
		}})
	}
	for _, s := range a.visibleStories() {
		id := s.ObjectID
		out = append(out, button{text: "Dismiss", group: "dismiss", enabled: true, onClick: func(context.Context) error {
			a.dismiss(id)
			return nil
		}})
	}
	out = append(out, button{text: "More", group: "more", enabled: true, onClick: func(ctx context.Context) error {
		a.search(ctx, a.term, a.page+1)
		return nil
	}})
	return out
}

func (a *App) dismiss(objectID string) {
	out := a.stories[:0]
	for _, s := range a.stories {
		if s.ObjectID != objectID {
			out = append(out, s)
		}
	}
	a.stories = out
}

// visibleStories 按当前排序返回列表，排序只在客户端进行
func (a *App) visibleStories() []model.Story {
	rows := make([]model.Story, len(a.stories))
	copy(rows, a.stories)
	var less func(i, j int) bool
	switch a.sortKey {
	case SortTitle:
		less = func(i, j int) bool { return rows[i].Title < rows[j].Title }
	case SortAuthor:
		less = func(i, j int) bool { return rows[i].Author < rows[j].Author }
	case SortComments:
		less = func(i, j int) bool { return rows[i].NumComments < rows[j].NumComments }
	case SortPoints:
		less = func(i, j int) bool { return rows[i].Points < rows[j].Points }
	default:
		return rows
	}
	sort.SliceStable(rows, less)
	if a.reverse {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	return rows
}

// search 请求一页数据；page 为 0 时替换列表，否则追加
func (a *App) search(ctx context.Context, term string, page int) {
	a.searches.Record(term)
	a.term = term
	a.page = page

	body, err := a.fetch(ctx, term, page)
	if err != nil {
		a.isError = true
		if page == 0 {
			a.stories = nil
		}
		return
	}
	a.isError = false
	hits := fixture.ParseStories(body)
	if page == 0 {
		a.stories = hits
	} else {
		a.stories = append(a.stories, hits...)
	}
}

func (a *App) fetch(ctx context.Context, term string, page int) ([]byte, error) {
	u := a.apiBase + "search?query=" + url.QueryEscape(term) + "&page=" + strconv.Itoa(page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("search: status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("search: invalid JSON body")
	}
	return body, nil
}
