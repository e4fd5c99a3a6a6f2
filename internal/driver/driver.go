// Package driver 按场景驱动页面：导航、输入、提交、等待标签交换、断言。
package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storyharness/internal/assert"
	"storyharness/internal/handler"
	"storyharness/internal/logger"
	"storyharness/pkg/model"
	"storyharness/pkg/rulespec"
)

// State 场景驱动状态
type State int

const (
	Idle State = iota
	Navigated
	InputReady
	Submitted
	Settled
	Asserted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Navigated:
		return "Navigated"
	case InputReady:
		return "InputReady"
	case Submitted:
		return "Submitted"
	case Settled:
		return "Settled"
	case Asserted:
		return "Asserted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// SubmitMode 提交搜索的方式
type SubmitMode int

const (
	ByEnter SubmitMode = iota
	ByButton
)

// Options 驱动选项
type Options struct {
	BaseURL       string
	WaitTimeout   time.Duration
	AssertTimeout time.Duration
	PollInterval  time.Duration
	Logger        logger.Logger
}

// Factory 每个场景调用一次，返回全新的驱动
type Factory func(ctx context.Context) (*Driver, error)

// Driver 单个场景独占的页面驱动，不可并发使用
type Driver struct {
	page     Page
	handler  *handler.Handler
	opts     Options
	state    State
	history  []State
	failures []error
	log      logger.Logger
}

// New 创建驱动
func New(page Page, h *handler.Handler, opts Options) *Driver {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 5 * time.Second
	}
	if opts.AssertTimeout <= 0 {
		opts.AssertTimeout = 4 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Driver{
		page:    page,
		handler: h,
		opts:    opts,
		state:   Idle,
		history: []State{Idle},
		log:     opts.Logger,
	}
}

// State 当前状态
func (d *Driver) State() State { return d.state }

// History 经历过的状态序列
func (d *Driver) History() []State {
	out := make([]State, len(d.history))
	copy(out, d.history)
	return out
}

// Page 底层页面
func (d *Driver) Page() Page { return d.page }

func (d *Driver) transition(to State) {
	if d.state == to {
		return
	}
	d.log.Debug("状态切换", "from", d.state.String(), "to", to.String())
	d.state = to
	d.history = append(d.history, to)
}

func (d *Driver) record(err error) error {
	if err != nil {
		d.failures = append(d.failures, err)
	}
	return err
}

// Intercept 注册拦截
func (d *Driver) Intercept(label model.Label, m rulespec.Matcher, p rulespec.Policy) error {
	_, err := d.handler.Registry().Register(label, m, p)
	if err != nil {
		return d.record(err)
	}
	d.log.Debug("注册拦截", "label", string(label), "matcher", m.String(), "kind", string(p.Kind))
	return nil
}

// InterceptPattern 以 URL 模式注册拦截，例如 `**/search?query=React&page=0`
func (d *Driver) InterceptPattern(label model.Label, method, pattern string, p rulespec.Policy) error {
	m, err := rulespec.ParsePattern(method, pattern)
	if err != nil {
		return d.record(err)
	}
	return d.Intercept(label, m, p)
}

// Visit 导航到 BaseURL 下的路径
func (d *Driver) Visit(ctx context.Context, path string) error {
	url := strings.TrimSuffix(d.opts.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
	if err := d.page.Navigate(ctx, url); err != nil {
		return d.record(fmt.Errorf("visit %s: %w", url, err))
	}
	d.transition(Navigated)
	return nil
}

// ClearSearch 清空搜索框
func (d *Driver) ClearSearch(ctx context.Context) error {
	if err := d.page.Clear(ctx, SelSearch); err != nil {
		return d.record(fmt.Errorf("clear %s: %w", SelSearch, err))
	}
	d.transition(InputReady)
	return nil
}

// Type 在搜索框输入
func (d *Driver) Type(ctx context.Context, text string) error {
	if err := d.page.Type(ctx, SelSearch, text); err != nil {
		return d.record(fmt.Errorf("type into %s: %w", SelSearch, err))
	}
	d.transition(InputReady)
	return nil
}

// Submit 回车或点击 Submit 提交搜索
func (d *Driver) Submit(ctx context.Context, mode SubmitMode) error {
	var err error
	switch mode {
	case ByButton:
		err = d.page.ClickText(ctx, SelButton, "Submit")
	default:
		err = d.page.PressEnter(ctx, SelSearch)
	}
	if err != nil {
		return d.record(fmt.Errorf("submit: %w", err))
	}
	d.transition(Submitted)
	return nil
}

// ClickText 点击包含文本的元素，等同 cy.contains(text).click()
func (d *Driver) ClickText(ctx context.Context, selector, text string) error {
	if err := d.page.ClickText(ctx, selector, text); err != nil {
		return d.record(fmt.Errorf("click %s containing %q: %w", selector, text, err))
	}
	d.transition(Submitted)
	return nil
}

// ClickNth 点击 selector 匹配的第 n 个元素
func (d *Driver) ClickNth(ctx context.Context, selector string, n int) error {
	if err := d.page.Click(ctx, selector, n); err != nil {
		return d.record(fmt.Errorf("click %s[%d]: %w", selector, n, err))
	}
	d.transition(Submitted)
	return nil
}

// Await 等待标签对应的下一次交换完成；超时只中止当前步骤
func (d *Driver) Await(ctx context.Context, label model.Label) (model.Exchange, error) {
	ex, err := d.handler.Waiter().Await(ctx, label, d.opts.WaitTimeout)
	if err != nil {
		d.log.Warn("等待交换失败", "label", string(label), "error", err.Error())
		return ex, d.record(err)
	}
	d.transition(Settled)
	return ex, nil
}

// Check 读取页面并返回断言结果
type Check func(ctx context.Context, p Page) error

// Expect 反复执行检查直到通过或断言超时，返回最后一次失败
func (d *Driver) Expect(ctx context.Context, check Check) error {
	deadline := time.Now().Add(d.opts.AssertTimeout)
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	var last error
	for {
		last = check(ctx, d.page)
		if last == nil {
			d.transition(Asserted)
			return nil
		}
		var af *model.AssertionFailure
		if !errors.As(last, &af) {
			// page errors are not retried
			break
		}
		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			last = fmt.Errorf("%w (last: %v)", ctx.Err(), last)
			d.transition(Asserted)
			return d.record(last)
		}
	}
	d.transition(Asserted)
	return d.record(last)
}

// ExpectCount selector 匹配元素数为 n
func (d *Driver) ExpectCount(ctx context.Context, selector string, n int) error {
	return d.Expect(ctx, func(ctx context.Context, p Page) error {
		els, err := p.Query(ctx, selector)
		if err != nil {
			return err
		}
		return assert.Count(selector, els, n)
	})
}

// ExpectFirstContains 第一个元素包含文本
func (d *Driver) ExpectFirstContains(ctx context.Context, selector, text string) error {
	return d.Expect(ctx, func(ctx context.Context, p Page) error {
		els, err := p.Query(ctx, selector)
		if err != nil {
			return err
		}
		return assert.FirstContains(selector, els, text)
	})
}

// ExpectVisibleContaining 存在包含文本的可见元素
func (d *Driver) ExpectVisibleContaining(ctx context.Context, selector, text string) error {
	return d.Expect(ctx, func(ctx context.Context, p Page) error {
		els, err := p.Query(ctx, selector)
		if err != nil {
			return err
		}
		return assert.AnyVisibleContaining(selector, els, text)
	})
}

// ExpectNoneContaining 不存在包含文本的元素
func (d *Driver) ExpectNoneContaining(ctx context.Context, selector, text string) error {
	return d.Expect(ctx, func(ctx context.Context, p Page) error {
		els, err := p.Query(ctx, selector)
		if err != nil {
			return err
		}
		return assert.NoneContaining(selector, els, text)
	})
}

// ExpectStorage 持久化存储值等于 want
func (d *Driver) ExpectStorage(ctx context.Context, key, want string) error {
	return d.Expect(ctx, func(ctx context.Context, p Page) error {
		got, ok, err := p.Storage(ctx, key)
		if err != nil {
			return err
		}
		return assert.StorageEquals(key, got, ok, want)
	})
}

// ExpectOrdered 列表按列与方向排序
func (d *Driver) ExpectOrdered(ctx context.Context, field assert.Field, dir assert.Direction) error {
	return d.Expect(ctx, func(ctx context.Context, p Page) error {
		els, err := p.Query(ctx, SelItem)
		if err != nil {
			return err
		}
		return assert.Ordered(els, field, dir)
	})
}

// Snapshot 读取一次 selector 的当前快照
func (d *Driver) Snapshot(ctx context.Context, selector string) ([]model.Element, error) {
	return d.page.Query(ctx, selector)
}

// Exchanges 本场景已完成的交换，按完成顺序
func (d *Driver) Exchanges() []model.Exchange {
	return d.handler.Waiter().Completed()
}

// MatchedRequests 本场景命中任一拦截的请求数，在请求发出时计数
func (d *Driver) MatchedRequests() int64 {
	return d.handler.Registry().Stats().Matched
}

// Failures 已记录的失败
func (d *Driver) Failures() []error {
	out := make([]error, len(d.failures))
	copy(out, d.failures)
	return out
}

// Finish 结束场景：总是进入 Asserted，返回累计的失败
func (d *Driver) Finish() error {
	d.transition(Asserted)
	return errors.Join(d.failures...)
}

// Close 释放页面并丢弃本场景的拦截与交换
func (d *Driver) Close() error {
	d.handler.Registry().Reset()
	d.handler.Waiter().Reset()
	return d.page.Close()
}
