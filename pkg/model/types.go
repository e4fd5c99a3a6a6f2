package model

import "time"

type SessionID string
type Label string

// Outcome 拦截交换的最终结果
type Outcome string

const (
	OutcomeFulfilled Outcome = "fulfilled" // 由规则直接返回响应
	OutcomeFailed    Outcome = "failed"    // 强制网络错误，无响应
	OutcomePassed    Outcome = "passed"    // 放行到真实网络
)

// Exchange 一次已完成（已解析）的拦截交换记录
type Exchange struct {
	Seq        int64             `json:"seq"` // 按完成顺序递增
	Label      Label             `json:"label"`
	Method     string            `json:"method"`
	URL        string            `json:"url"`
	Query      map[string]string `json:"query"`
	StatusCode int               `json:"statusCode"`
	Body       []byte            `json:"-"`
	Outcome    Outcome           `json:"outcome"`
	Error      string            `json:"error,omitempty"`
	Started    time.Time         `json:"started"`
	Finished   time.Time         `json:"finished"`
}

// ServerError 是否为 5xx 响应
func (e Exchange) ServerError() bool {
	return e.StatusCode >= 500
}

// NetworkError 是否为传输层失败
func (e Exchange) NetworkError() bool {
	return e.Outcome == OutcomeFailed
}

// Event 拦截过程中发出的事件
type Event struct {
	Type       string    `json:"type"`
	Session    SessionID `json:"session"`
	Label      *Label    `json:"label"`
	URL        string    `json:"url"`
	Method     string    `json:"method"`
	StatusCode int       `json:"statusCode"`
	Timestamp  int64     `json:"timestamp"`
}

// RegistryStats 拦截注册表统计
type RegistryStats struct {
	Total   int64           `json:"total"`
	Matched int64           `json:"matched"`
	ByLabel map[Label]int64 `json:"byLabel"`
}

// Element 页面元素快照
type Element struct {
	Text    string   `json:"text"`
	Visible bool     `json:"visible"`
	Fields  []string `json:"fields"` // 行内各列文本，例如 title/author/comments/points
}

// Story 搜索接口返回的单条记录
type Story struct {
	ObjectID    string `json:"objectID"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Author      string `json:"author"`
	NumComments int    `json:"num_comments"`
	Points      int    `json:"points"`
}
