package cdp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/storage"
	"github.com/mafredri/cdp/rpcc"

	adapter "storyharness/internal/adapter/cdp"
	"storyharness/internal/handler"
	"storyharness/internal/logger"
	"storyharness/pkg/model"
	"storyharness/pkg/traffic"
)

// ErrNotAttached 尚未附加到页面目标
var ErrNotAttached = errors.New("not attached")

type pendingExchange struct {
	req *traffic.Request
	dec handler.Decision
}

// Manager 管理单个页面目标的 DevTools 连接与 Fetch 拦截
type Manager struct {
	devtoolsURL      string
	dt               *devtool.DevTools
	target           *devtool.Target
	ownsTarget       bool
	conn             *rpcc.Conn
	client           *cdp.Client
	ctx              context.Context
	cancel           context.CancelFunc
	handler          *handler.Handler
	processTimeoutMS int
	log              logger.Logger

	mu      sync.Mutex
	enabled bool
	pending map[fetch.RequestID]pendingExchange
}

// New 创建管理器
func New(devtoolsURL string, h *handler.Handler, l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		devtoolsURL:      devtoolsURL,
		dt:               devtool.New(devtoolsURL),
		handler:          h,
		processTimeoutMS: 3000,
		log:              l,
		pending:          make(map[fetch.RequestID]pendingExchange),
	}
}

// SetProcessTimeout 设置单次拦截处理超时
func (m *Manager) SetProcessTimeout(timeoutMS int) {
	m.processTimeoutMS = timeoutMS
}

// AttachNew 新建一个页面目标并附加，Detach 时关闭该目标
func (m *Manager) AttachNew(ctx context.Context) error {
	t, err := m.dt.Create(ctx)
	if err != nil {
		return fmt.Errorf("create target: %w", err)
	}
	m.ownsTarget = true
	return m.attach(ctx, t)
}

// AttachTarget 附加到指定目标；target 为空时选择第一个页面
func (m *Manager) AttachTarget(ctx context.Context, target string) error {
	targets, err := m.dt.List(ctx)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}
	var sel *devtool.Target
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		if target == "" || t.ID == target {
			sel = t
			break
		}
	}
	if sel == nil {
		return fmt.Errorf("no page target %q", target)
	}
	return m.attach(ctx, sel)
}

func (m *Manager) attach(ctx context.Context, t *devtool.Target) error {
	conn, err := rpcc.DialContext(ctx, t.WebSocketDebuggerURL)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.WebSocketDebuggerURL, err)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.target = t
	m.conn = conn
	m.client = cdp.NewClient(conn)
	m.log.Info("已附加页面目标", "target", t.ID, "url", t.URL)
	return nil
}

// Client 返回底层 CDP 客户端
func (m *Manager) Client() *cdp.Client { return m.client }

// ClearStorage 清空 origin 的 localStorage
func (m *Manager) ClearStorage(ctx context.Context, origin string) error {
	if m.client == nil {
		return ErrNotAttached
	}
	return m.client.Storage.ClearDataForOrigin(ctx, storage.NewClearDataForOriginArgs(origin, "local_storage"))
}

// Enable 启用请求与响应两个阶段的拦截
func (m *Manager) Enable(ctx context.Context) error {
	if m.client == nil {
		return ErrNotAttached
	}
	if err := m.client.Network.Enable(ctx, nil); err != nil {
		return fmt.Errorf("network enable: %w", err)
	}
	p := "*"
	patterns := []fetch.RequestPattern{
		{URLPattern: &p, RequestStage: fetch.RequestStageRequest},
		{URLPattern: &p, RequestStage: fetch.RequestStageResponse},
	}
	if err := m.client.Fetch.Enable(ctx, &fetch.EnableArgs{Patterns: patterns}); err != nil {
		return fmt.Errorf("fetch enable: %w", err)
	}
	rp, err := m.client.Fetch.RequestPaused(m.ctx)
	if err != nil {
		return fmt.Errorf("subscribe request paused: %w", err)
	}
	m.mu.Lock()
	m.enabled = true
	m.mu.Unlock()
	go m.consume(rp)
	return nil
}

// Disable 停止拦截
func (m *Manager) Disable(ctx context.Context) error {
	if m.client == nil {
		return ErrNotAttached
	}
	m.mu.Lock()
	m.enabled = false
	m.mu.Unlock()
	return m.client.Fetch.Disable(ctx)
}

// Detach 断开连接；由 AttachNew 创建的目标同时关闭
func (m *Manager) Detach(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	var errs []error
	if m.conn != nil {
		errs = append(errs, m.conn.Close())
	}
	if m.ownsTarget && m.target != nil {
		errs = append(errs, m.dt.Close(ctx, m.target))
	}
	return errors.Join(errs...)
}

func (m *Manager) isEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// consume 持续接收拦截事件，每个事件单独处理
func (m *Manager) consume(rp fetch.RequestPausedClient) {
	defer rp.Close()
	for {
		ev, err := rp.Recv()
		if err != nil {
			if m.isEnabled() && m.ctx.Err() == nil {
				m.log.Err(err, "接收拦截事件失败")
			}
			return
		}
		go m.handle(ev)
	}
}

// handle 处理一次暂停事件
func (m *Manager) handle(ev *fetch.RequestPausedReply) {
	to := m.processTimeoutMS
	if to <= 0 {
		to = 3000
	}
	ctx, cancel := context.WithTimeout(m.ctx, time.Duration(to)*time.Millisecond)
	defer cancel()

	if adapter.IsResponseStage(ev) {
		m.handleResponse(ctx, ev)
		return
	}
	m.handleRequest(ctx, ev)
}

func (m *Manager) handleRequest(ctx context.Context, ev *fetch.RequestPausedReply) {
	req := adapter.ToNeutralRequest(ev)
	dec := m.handler.Decide(ctx, req)

	switch {
	case dec.Response != nil:
		args := &fetch.FulfillRequestArgs{
			RequestID:       ev.RequestID,
			ResponseCode:    dec.Response.StatusCode,
			ResponseHeaders: adapter.ToHeaderEntries(dec.Response.Headers),
			Body:            dec.Response.Body,
		}
		err := m.client.Fetch.FulfillRequest(ctx, args)
		if err != nil {
			m.log.Err(err, "返回模拟响应失败", "url", req.URL)
		}
		m.handler.Complete(req, dec, dec.Response.StatusCode, dec.Response.Body, err)

	case dec.Outcome == model.OutcomeFailed:
		err := m.client.Fetch.FailRequest(ctx, &fetch.FailRequestArgs{RequestID: ev.RequestID, ErrorReason: network.ErrorReasonFailed})
		if err != nil {
			m.log.Err(err, "强制网络错误失败", "url", req.URL)
		}
		reason := errors.New(string(network.ErrorReasonFailed))
		if dec.Err != nil {
			reason = fmt.Errorf("%w: %v", reason, dec.Err)
		}
		m.handler.Complete(req, dec, 0, nil, reason)

	default:
		if dec.Interception != nil {
			m.mu.Lock()
			m.pending[ev.RequestID] = pendingExchange{req: req, dec: dec}
			m.mu.Unlock()
		}
		if err := m.client.Fetch.ContinueRequest(ctx, &fetch.ContinueRequestArgs{RequestID: ev.RequestID}); err != nil {
			m.log.Err(err, "放行请求失败", "url", req.URL)
		}
	}
}

func (m *Manager) handleResponse(ctx context.Context, ev *fetch.RequestPausedReply) {
	m.mu.Lock()
	p, ok := m.pending[ev.RequestID]
	delete(m.pending, ev.RequestID)
	m.mu.Unlock()

	if ev.ResponseErrorReason != nil {
		if ok {
			m.handler.Complete(p.req, p.dec, 0, nil, errors.New(string(*ev.ResponseErrorReason)))
		}
		_ = m.client.Fetch.FailRequest(ctx, &fetch.FailRequestArgs{RequestID: ev.RequestID, ErrorReason: *ev.ResponseErrorReason})
		return
	}

	if ok {
		body, err := m.responseBody(ctx, ev.RequestID)
		if err != nil {
			m.log.Warn("读取响应体失败", "url", p.req.URL, "error", err.Error())
		}
		m.handler.Complete(p.req, p.dec, adapter.StatusCode(ev), body, nil)
	}
	if err := m.client.Fetch.ContinueResponse(ctx, &fetch.ContinueResponseArgs{RequestID: ev.RequestID}); err != nil {
		m.log.Err(err, "放行响应失败", "url", ev.Request.URL)
	}
}

func (m *Manager) responseBody(ctx context.Context, id fetch.RequestID) ([]byte, error) {
	reply, err := m.client.Fetch.GetResponseBody(ctx, &fetch.GetResponseBodyArgs{RequestID: id})
	if err != nil {
		return nil, err
	}
	if reply.Base64Encoded {
		return base64.StdEncoding.DecodeString(reply.Body)
	}
	return []byte(reply.Body), nil
}
