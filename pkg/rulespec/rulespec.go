// Package rulespec 描述拦截规则：请求匹配条件与响应策略。
package rulespec

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"storyharness/pkg/model"
)

// Matcher 请求匹配条件
//
// Path 是对 URL 路径的 glob：`**` 匹配任意字符（含 `/`），`*` 只在单个路径段内匹配。
// Query 中列出的每个键必须与请求参数完全相等，未列出的键不参与匹配。
type Matcher struct {
	Method string            `json:"method" yaml:"method"`
	Path   string            `json:"path" yaml:"path"`
	Query  map[string]string `json:"query" yaml:"query"`
}

// ParsePattern 从类似 `**/search?query=React&page=0` 的模式构造 Matcher
func ParsePattern(method, pattern string) (Matcher, error) {
	m := Matcher{Method: strings.ToUpper(method)}
	path, rawQuery, hasQuery := strings.Cut(pattern, "?")
	m.Path = path
	if hasQuery && rawQuery != "" {
		values, err := url.ParseQuery(rawQuery)
		if err != nil {
			return Matcher{}, fmt.Errorf("parse pattern query %q: %w", rawQuery, err)
		}
		m.Query = make(map[string]string, len(values))
		for k, v := range values {
			if len(v) > 0 {
				m.Query[k] = v[0]
			}
		}
	}
	return m, nil
}

// MustParsePattern 同 ParsePattern，出错时 panic，仅用于字面量
func MustParsePattern(method, pattern string) Matcher {
	m, err := ParsePattern(method, pattern)
	if err != nil {
		panic(err)
	}
	return m
}

// String 返回可读形式
func (m Matcher) String() string {
	if len(m.Query) == 0 {
		return m.Method + " " + m.Path
	}
	q := url.Values{}
	for k, v := range m.Query {
		q.Set(k, v)
	}
	return m.Method + " " + m.Path + "?" + q.Encode()
}

// PolicyKind 响应策略类型
type PolicyKind string

const (
	KindPassthrough    PolicyKind = "passthrough"
	KindBody           PolicyKind = "body"
	KindFixture        PolicyKind = "fixture"
	KindStatus         PolicyKind = "status"
	KindNetworkFailure PolicyKind = "network_failure"
)

// Policy 响应策略（标签联合），只有与 Kind 对应的字段有意义
type Policy struct {
	Kind       PolicyKind        `json:"kind" yaml:"kind"`
	StatusCode int               `json:"statusCode,omitempty" yaml:"statusCode,omitempty"`
	Body       []byte            `json:"body,omitempty" yaml:"body,omitempty"`
	Fixture    string            `json:"fixture,omitempty" yaml:"fixture,omitempty"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	DelayMS    int               `json:"delayMS,omitempty" yaml:"delayMS,omitempty"`
}

// Passthrough 放行到真实网络，仅观察
func Passthrough() Policy { return Policy{Kind: KindPassthrough} }

// Body 返回字面 JSON 响应体
func Body(status int, body []byte) Policy {
	return Policy{Kind: KindBody, StatusCode: status, Body: body}
}

// Fixture 返回夹具文件内容，状态码 200
func Fixture(name string) Policy {
	return Policy{Kind: KindFixture, StatusCode: http.StatusOK, Fixture: name}
}

// Status 返回指定状态码、空响应体
func Status(code int) Policy { return Policy{Kind: KindStatus, StatusCode: code} }

// NetworkFailure 强制传输层失败，不返回任何响应
func NetworkFailure() Policy { return Policy{Kind: KindNetworkFailure} }

// WithDelay 设置响应前延迟
func (p Policy) WithDelay(ms int) Policy {
	p.DelayMS = ms
	return p
}

// WithHeader 追加响应头
func (p Policy) WithHeader(k, v string) Policy {
	h := make(map[string]string, len(p.Headers)+1)
	for hk, hv := range p.Headers {
		h[hk] = hv
	}
	h[k] = v
	p.Headers = h
	return p
}

// Mocked 策略是否会阻止请求到达真实网络
func (p Policy) Mocked() bool {
	return p.Kind != KindPassthrough && p.Kind != ""
}

// Validate 校验策略字段
func (p Policy) Validate() error {
	switch p.Kind {
	case KindPassthrough, KindNetworkFailure:
		return nil
	case KindBody, KindStatus:
		if p.StatusCode < 100 || p.StatusCode > 599 {
			return fmt.Errorf("invalid status code %d", p.StatusCode)
		}
		return nil
	case KindFixture:
		if p.Fixture == "" {
			return fmt.Errorf("fixture policy without fixture name")
		}
		return nil
	default:
		return fmt.Errorf("unknown policy kind %q", p.Kind)
	}
}

// Interception 一条已注册的拦截记录
type Interception struct {
	Label   model.Label `json:"label"`
	Matcher Matcher     `json:"matcher"`
	Policy  Policy      `json:"policy"`
	order   int64
}

// NewInterception 构造带注册序号的拦截记录
func NewInterception(label model.Label, m Matcher, p Policy, order int64) *Interception {
	return &Interception{Label: label, Matcher: m, Policy: p, order: order}
}

// Order 注册序号，越大越晚注册
func (i *Interception) Order() int64 { return i.order }
