package traffic

import (
	"net/http"
	"net/url"
	"strings"
)

// Header 封装通用的头部操作
type Header map[string]string

// Get 获取指定 Header 的值（大小写不敏感）
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(key)]
}

// Set 设置指定 Header 的值（自动转换为小写）
func (h Header) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Request 中立的请求模型，与具体传输（CDP、http.RoundTripper）无关
type Request struct {
	ID      string            // 事务唯一ID
	URL     string            // 完整URL
	Path    string            // URL 路径
	Method  string            // HTTP方法
	Headers Header            // 请求头
	Query   map[string]string // 预解析的查询参数，同名参数取第一个
}

// Response 中立的响应模型
type Response struct {
	StatusCode int    // 状态码
	Headers    Header // 响应头
	Body       []byte // 响应体数据
}

// NewRequest 根据方法与URL创建请求对象，并解析路径与查询参数
func NewRequest(id, method, rawURL string) *Request {
	req := &Request{
		ID:      id,
		URL:     rawURL,
		Method:  strings.ToUpper(method),
		Headers: make(Header),
		Query:   make(map[string]string),
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		req.Path = rawURL
		return req
	}
	req.Path = u.Path
	for k, vals := range u.Query() {
		if len(vals) > 0 {
			req.Query[k] = vals[0]
		}
	}
	return req
}

// NewResponse 创建初始化响应对象
func NewResponse() *Response {
	return &Response{
		StatusCode: http.StatusOK,
		Headers:    make(Header),
	}
}
