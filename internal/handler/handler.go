package handler

import (
	"context"
	"net/http"
	"time"

	"storyharness/internal/fixture"
	"storyharness/internal/logger"
	"storyharness/internal/rules"
	"storyharness/internal/waiter"
	"storyharness/pkg/model"
	"storyharness/pkg/rulespec"
	"storyharness/pkg/traffic"
)

// Recorder 持久化已完成的交换，可选
type Recorder interface {
	RecordExchange(ex model.Exchange)
}

// Handler 拦截分发器：匹配规则、生成响应、解析等待标签、发送事件。
// 与具体传输无关，CDP 与 http.RoundTripper 都通过它决策。
type Handler struct {
	registry *rules.Registry
	fixtures *fixture.Store
	waiter   *waiter.Waiter
	events   chan model.Event
	recorder Recorder
	session  model.SessionID
	log      logger.Logger
}

// Config 配置选项
type Config struct {
	Registry *rules.Registry
	Fixtures *fixture.Store
	Waiter   *waiter.Waiter
	Events   chan model.Event
	Recorder Recorder
	Session  model.SessionID
	Logger   logger.Logger
}

// Decision 对一次请求的处理决定
type Decision struct {
	Interception *rulespec.Interception // 未命中时为 nil
	Outcome      model.Outcome
	Response     *traffic.Response // 仅 OutcomeFulfilled 有值
	Err          error             // 生成响应失败的原因，此时按网络错误处理
	Started      time.Time
}

// Label 命中的标签，未命中时为空
func (d Decision) Label() model.Label {
	if d.Interception == nil {
		return ""
	}
	return d.Interception.Label
}

// New 创建拦截分发器
func New(cfg Config) *Handler {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	return &Handler{
		registry: cfg.Registry,
		fixtures: cfg.Fixtures,
		waiter:   cfg.Waiter,
		events:   cfg.Events,
		recorder: cfg.Recorder,
		session:  cfg.Session,
		log:      l,
	}
}

// Registry 返回拦截注册表
func (h *Handler) Registry() *rules.Registry { return h.registry }

// Waiter 返回等待器
func (h *Handler) Waiter() *waiter.Waiter { return h.waiter }

// Decide 根据注册表决定如何处理请求；策略中的延迟在此等待
func (h *Handler) Decide(ctx context.Context, req *traffic.Request) Decision {
	dec := Decision{Outcome: model.OutcomePassed, Started: time.Now()}
	it := h.registry.Match(req)
	if it == nil {
		h.log.Debug("请求未命中拦截，直接放行", "method", req.Method, "url", req.URL)
		return dec
	}
	dec.Interception = it
	p := it.Policy

	if p.DelayMS > 0 {
		t := time.NewTimer(time.Duration(p.DelayMS) * time.Millisecond)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			dec.Outcome = model.OutcomeFailed
			dec.Err = ctx.Err()
			return dec
		}
	}

	switch p.Kind {
	case rulespec.KindPassthrough:
		dec.Outcome = model.OutcomePassed
	case rulespec.KindNetworkFailure:
		dec.Outcome = model.OutcomeFailed
	case rulespec.KindBody, rulespec.KindStatus:
		dec.Outcome = model.OutcomeFulfilled
		dec.Response = buildResponse(req, p.StatusCode, p.Headers, p.Body)
	case rulespec.KindFixture:
		body, err := h.fixtures.Load(p.Fixture)
		if err != nil {
			h.log.Err(err, "加载夹具失败，按网络错误处理", "label", string(it.Label), "fixture", p.Fixture)
			dec.Outcome = model.OutcomeFailed
			dec.Err = err
			return dec
		}
		dec.Outcome = model.OutcomeFulfilled
		dec.Response = buildResponse(req, p.StatusCode, p.Headers, body)
	}
	h.log.Debug("请求命中拦截", "label", string(it.Label), "kind", string(p.Kind), "url", req.URL)
	return dec
}

// Complete 交换结束（收到响应或确定失败）后调用，解析等待标签并发送事件
func (h *Handler) Complete(req *traffic.Request, dec Decision, statusCode int, body []byte, transportErr error) model.Exchange {
	ex := model.Exchange{
		Label:      dec.Label(),
		Method:     req.Method,
		URL:        req.URL,
		Query:      req.Query,
		StatusCode: statusCode,
		Body:       body,
		Outcome:    dec.Outcome,
		Started:    dec.Started,
		Finished:   time.Now(),
	}
	if transportErr != nil {
		ex.Outcome = model.OutcomeFailed
		ex.StatusCode = 0
		ex.Error = transportErr.Error()
	} else if dec.Err != nil {
		ex.Error = dec.Err.Error()
	}

	if ex.Label != "" && h.waiter != nil {
		ex = h.waiter.Resolve(ex)
		h.log.Info("交换已完成", "label", string(ex.Label), "seq", ex.Seq, "status", ex.StatusCode, "outcome", string(ex.Outcome))
	}
	if h.recorder != nil {
		h.recorder.RecordExchange(ex)
	}
	h.sendEvent(ex)
	return ex
}

// sendEvent 非阻塞发送事件，自动添加时间戳
func (h *Handler) sendEvent(ex model.Exchange) {
	if h.events == nil {
		return
	}
	evt := model.Event{
		Type:       string(ex.Outcome),
		Session:    h.session,
		URL:        ex.URL,
		Method:     ex.Method,
		StatusCode: ex.StatusCode,
		Timestamp:  time.Now().UnixMilli(),
	}
	if ex.Label != "" {
		l := ex.Label
		evt.Label = &l
	}
	select {
	case h.events <- evt:
	default:
	}
}

// buildResponse 构造模拟响应。浏览器对 Fetch.fulfillRequest 的响应同样做 CORS 校验，
// 策略未指定 Access-Control-Allow-Origin 时按请求的 Origin 放行
func buildResponse(req *traffic.Request, status int, headers map[string]string, body []byte) *traffic.Response {
	res := traffic.NewResponse()
	if status != 0 {
		res.StatusCode = status
	}
	for k, v := range headers {
		res.Headers.Set(k, v)
	}
	if len(body) > 0 && res.Headers.Get("content-type") == "" {
		res.Headers.Set("Content-Type", "application/json; charset=utf-8")
	}
	if res.Headers.Get("access-control-allow-origin") == "" {
		if origin := req.Headers.Get("origin"); origin != "" && origin != "null" {
			res.Headers.Set("Access-Control-Allow-Origin", origin)
			res.Headers.Set("Access-Control-Allow-Credentials", "true")
			res.Headers.Set("Vary", "Origin")
		} else {
			res.Headers.Set("Access-Control-Allow-Origin", "*")
		}
	}
	res.Body = body
	if res.StatusCode == 0 {
		res.StatusCode = http.StatusOK
	}
	return res
}
