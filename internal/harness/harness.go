// Package harness 按配置组装拦截注册表、等待器、分发器与页面，为每个场景生成全新的驱动。
package harness

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"storyharness/internal/cdp"
	"storyharness/internal/config"
	"storyharness/internal/driver"
	"storyharness/internal/fixture"
	"storyharness/internal/handler"
	"storyharness/internal/logger"
	"storyharness/internal/rules"
	"storyharness/internal/sim"
	"storyharness/internal/transport"
	"storyharness/internal/waiter"
	"storyharness/pkg/model"
)

const (
	ModeSim = "sim"
	ModeCDP = "cdp"
)

// Harness 场景运行所需的共享资源
type Harness struct {
	cfg      *config.Config
	log      logger.Logger
	fixtures *fixture.Store
	recorder handler.Recorder
	events   chan model.Event
	session  model.SessionID
	backend  *sim.Backend
}

// Option 可选项
type Option func(*Harness)

// WithRecorder 已完成的交换写入 recorder
func WithRecorder(r handler.Recorder) Option {
	return func(h *Harness) { h.recorder = r }
}

// WithEvents 交换事件发送到 ch（非阻塞）
func WithEvents(ch chan model.Event) Option {
	return func(h *Harness) { h.events = ch }
}

// WithSession 事件中携带的会话 ID
func WithSession(id model.SessionID) Option {
	return func(h *Harness) { h.session = id }
}

// New 创建 Harness；sim 模式同时启动本地桩 API
func New(cfg *config.Config, l logger.Logger, opts ...Option) (*Harness, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if l == nil {
		l = logger.NewNop()
	}
	h := &Harness{
		cfg:      cfg,
		log:      l,
		fixtures: fixture.NewStore(cfg.Harness.FixturesDir),
	}
	for _, opt := range opts {
		opt(h)
	}
	if cfg.Harness.Mode == ModeSim && cfg.Harness.APIBase == "" {
		h.backend = sim.NewBackend()
		h.log.Info("桩 API 已启动", "apiBase", h.backend.APIBase())
	}
	return h, nil
}

// Config 当前配置
func (h *Harness) Config() *config.Config { return h.cfg }

// Fixtures 夹具仓库
func (h *Harness) Fixtures() *fixture.Store { return h.fixtures }

// Backend 本地桩 API；cdp 模式或配置了 apiBase 时为 nil
func (h *Harness) Backend() *sim.Backend { return h.backend }

// Close 释放共享资源
func (h *Harness) Close() error {
	if h.backend != nil {
		h.backend.Close()
	}
	return nil
}

// Factory 返回按模式创建驱动的工厂
func (h *Harness) Factory() driver.Factory {
	return func(ctx context.Context) (*driver.Driver, error) {
		hd := h.newHandler()
		switch h.cfg.Harness.Mode {
		case ModeCDP:
			return h.cdpDriver(ctx, hd)
		default:
			return h.simDriver(hd), nil
		}
	}
}

func (h *Harness) newHandler() *handler.Handler {
	return handler.New(handler.Config{
		Registry: rules.New(),
		Fixtures: h.fixtures,
		Waiter:   waiter.New(h.cfg.Harness.WaitTimeout()),
		Events:   h.events,
		Recorder: h.recorder,
		Session:  h.session,
		Logger:   h.log,
	})
}

func (h *Harness) driverOptions() driver.Options {
	return driver.Options{
		BaseURL:       h.cfg.Harness.BaseURL,
		WaitTimeout:   h.cfg.Harness.WaitTimeout(),
		AssertTimeout: h.cfg.Harness.AssertTimeout(),
		PollInterval:  h.cfg.Harness.PollInterval(),
		Logger:        h.log,
	}
}

func (h *Harness) simDriver(hd *handler.Handler) *driver.Driver {
	client := transport.NewInterceptor(hd, nil).Client()
	app := sim.NewApp(client, h.apiBase(), h.cfg.Harness.InitialTerm)
	return driver.New(app, hd, h.driverOptions())
}

func (h *Harness) apiBase() string {
	if h.backend != nil {
		return h.backend.APIBase()
	}
	return h.cfg.Harness.APIBase
}

// cdpDriver 每个场景新建一个浏览器页面目标，并清空被测站点的 localStorage
func (h *Harness) cdpDriver(ctx context.Context, hd *handler.Handler) (*driver.Driver, error) {
	m := cdp.New(h.cfg.Harness.DevToolsURL, hd, h.log)
	if err := m.AttachNew(ctx); err != nil {
		return nil, err
	}
	if origin := originOf(h.cfg.Harness.BaseURL); origin != "" {
		if err := m.ClearStorage(ctx, origin); err != nil {
			h.log.Warn("清空 localStorage 失败", "origin", origin, "error", err.Error())
		}
	}
	if err := m.Enable(ctx); err != nil {
		_ = m.Detach(ctx)
		return nil, fmt.Errorf("enable interception: %w", err)
	}
	page := cdp.NewPage(m.Client(), func() error { return m.Detach(context.Background()) })
	return driver.New(page, hd, h.driverOptions()), nil
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + u.Host
}
