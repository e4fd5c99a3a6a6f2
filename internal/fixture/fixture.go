// Package fixture 加载拦截响应使用的 JSON 夹具。
package fixture

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"storyharness/pkg/model"
)

//go:embed builtin/*.json
var builtin embed.FS

// ErrUnknownFixture 目录与内置夹具中都找不到
var ErrUnknownFixture = errors.New("unknown fixture")

// Store 夹具仓库：先查目录，再查内置夹具，读取后缓存
type Store struct {
	dir   string
	mu    sync.RWMutex
	cache map[string][]byte
}

// NewStore 创建夹具仓库，dir 可为空
func NewStore(dir string) *Store {
	return &Store{dir: dir, cache: make(map[string][]byte)}
}

// Load 按名称读取夹具，名称可带或不带 .json 后缀
func (s *Store) Load(name string) ([]byte, error) {
	name = strings.TrimSuffix(name, ".json")
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFixture, name)
	}

	s.mu.RLock()
	data, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return data, nil
	}

	data, err := s.read(name)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("fixture %q is not valid JSON", name)
	}

	s.mu.Lock()
	s.cache[name] = data
	s.mu.Unlock()
	return data, nil
}

// Count 返回夹具中 hits 数组长度
func (s *Store) Count(name string) (int, error) {
	data, err := s.Load(name)
	if err != nil {
		return 0, err
	}
	return int(gjson.GetBytes(data, "hits.#").Int()), nil
}

// Stories 解析夹具中的故事列表
func (s *Store) Stories(name string) ([]model.Story, error) {
	data, err := s.Load(name)
	if err != nil {
		return nil, err
	}
	return ParseStories(data), nil
}

// ParseStories 解析搜索 API 响应体中的 hits
func ParseStories(body []byte) []model.Story {
	var out []model.Story
	gjson.GetBytes(body, "hits").ForEach(func(_, hit gjson.Result) bool {
		out = append(out, model.Story{
			ObjectID:    hit.Get("objectID").String(),
			Title:       hit.Get("title").String(),
			URL:         hit.Get("url").String(),
			Author:      hit.Get("author").String(),
			NumComments: int(hit.Get("num_comments").Int()),
			Points:      int(hit.Get("points").Int()),
		})
		return true
	})
	return out
}

func (s *Store) read(name string) ([]byte, error) {
	if s.dir != "" {
		data, err := os.ReadFile(filepath.Join(s.dir, name+".json"))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read fixture %q: %w", name, err)
		}
	}
	data, err := builtin.ReadFile("builtin/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFixture, name)
	}
	return data, nil
}
