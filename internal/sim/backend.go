package sim

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"

	"github.com/tidwall/sjson"
)

const (
	HitsPerPage = 20
	totalPages  = 50
)

// Backend 进程内的搜索接口替身，按 query/page 生成确定性的结果
type Backend struct {
	server   *httptest.Server
	requests atomic.Int64
}

// NewBackend 启动替身服务
func NewBackend() *Backend {
	b := &Backend{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/search", b.search)
	b.server = httptest.NewServer(mux)
	return b
}

// APIBase 搜索接口前缀，以 / 结尾
func (b *Backend) APIBase() string { return b.server.URL + "/api/v1/" }

// Requests 真实到达替身服务的请求数
func (b *Backend) Requests() int64 { return b.requests.Load() }

// Close 关闭服务
func (b *Backend) Close() { b.server.Close() }

func (b *Backend) search(w http.ResponseWriter, r *http.Request) {
	b.requests.Add(1)
	query := r.URL.Query().Get("query")
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 0 {
		page = 0
	}

	body, err := Page(query, page)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(body)
}

// Page 生成一页搜索结果 JSON
func Page(query string, page int) ([]byte, error) {
	body := []byte(`{"hits":[]}`)
	var err error
	for i := 0; i < HitsPerPage; i++ {
		n := page*HitsPerPage + i + 1
		hit := map[string]any{
			"objectID":     fmt.Sprintf("%s-%d", query, n),
			"title":        fmt.Sprintf("%s story #%d", query, n),
			"url":          fmt.Sprintf("https://example.com/%d", n),
			"author":       fmt.Sprintf("author%02d", (n*7)%HitsPerPage),
			"num_comments": (n * 13) % 97,
			"points":       (n * 31) % 211,
		}
		if body, err = sjson.SetBytes(body, "hits.-1", hit); err != nil {
			return nil, err
		}
	}
	for path, v := range map[string]any{
		"query":       query,
		"page":        page,
		"nbPages":     totalPages,
		"hitsPerPage": HitsPerPage,
	} {
		if body, err = sjson.SetBytes(body, path, v); err != nil {
			return nil, err
		}
	}
	return body, nil
}
