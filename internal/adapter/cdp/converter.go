package cdp

import (
	"encoding/json"
	"sort"

	"storyharness/pkg/traffic"

	"github.com/mafredri/cdp/protocol/fetch"
)

// ToNeutralRequest 将 CDP 暂停事件转换为中立 Request 模型
func ToNeutralRequest(ev *fetch.RequestPausedReply) *traffic.Request {
	req := traffic.NewRequest(string(ev.RequestID), ev.Request.Method, ev.Request.URL)

	var headers map[string]string
	if len(ev.Request.Headers) > 0 {
		if err := json.Unmarshal(ev.Request.Headers, &headers); err == nil {
			for k, v := range headers {
				req.Headers.Set(k, v)
			}
		}
	}
	return req
}

// StatusCode 响应阶段的状态码，请求阶段返回 0
func StatusCode(ev *fetch.RequestPausedReply) int {
	if ev.ResponseStatusCode != nil {
		return *ev.ResponseStatusCode
	}
	return 0
}

// IsResponseStage 是否处于响应阶段
func IsResponseStage(ev *fetch.RequestPausedReply) bool {
	return ev.ResponseStatusCode != nil || ev.ResponseErrorReason != nil
}

// ToHeaderEntries 将中立 Header 转换为 CDP Header 条目，按名称排序保证输出稳定
func ToHeaderEntries(h traffic.Header) []fetch.HeaderEntry {
	entries := make([]fetch.HeaderEntry, 0, len(h))
	for k, v := range h {
		entries = append(entries, fetch.HeaderEntry{Name: k, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}
