package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"storyharness/pkg/model"
	"storyharness/pkg/rulespec"
	"storyharness/pkg/traffic"
)

// ErrDuplicateLabel 同一注册表内标签重复
var ErrDuplicateLabel = errors.New("duplicate interception label")

// Registry 拦截注册表
//
// 多条拦截同时匹配一个请求时，最后注册的一条生效。
type Registry struct {
	mu      sync.RWMutex
	items   []*rulespec.Interception
	byLabel map[model.Label]*rulespec.Interception
	seq     int64
	total   int64
	matched int64
	hits    map[model.Label]int64
}

// New 创建空注册表
func New() *Registry {
	return &Registry{
		byLabel: make(map[model.Label]*rulespec.Interception),
		hits:    make(map[model.Label]int64),
	}
}

// Register 注册拦截并返回其标签；label 为空时自动生成
func (r *Registry) Register(label model.Label, m rulespec.Matcher, p rulespec.Policy) (model.Label, error) {
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("register %q: %w", label, err)
	}
	if _, err := compileGlob(m.Path); err != nil {
		return "", fmt.Errorf("register %q: bad path glob %q: %w", label, m.Path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	if label == "" {
		label = model.Label(fmt.Sprintf("intercept-%d", r.seq))
	}
	if _, ok := r.byLabel[label]; ok {
		return "", fmt.Errorf("%w: @%s", ErrDuplicateLabel, label)
	}
	m.Method = strings.ToUpper(m.Method)
	it := rulespec.NewInterception(label, m, p, r.seq)
	r.items = append(r.items, it)
	r.byLabel[label] = it
	return label, nil
}

// Match 返回命中的拦截；无匹配时返回 nil
func (r *Registry) Match(req *traffic.Request) *rulespec.Interception {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	var chosen *rulespec.Interception
	for _, it := range r.items {
		if !matchRequest(req, it.Matcher) {
			continue
		}
		if chosen == nil || it.Order() > chosen.Order() {
			chosen = it
		}
	}
	if chosen == nil {
		return nil
	}
	r.matched++
	r.hits[chosen.Label]++
	return chosen
}

// Lookup 按标签查找
func (r *Registry) Lookup(label model.Label) (*rulespec.Interception, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.byLabel[label]
	return it, ok
}

// List 按注册顺序返回全部拦截
func (r *Registry) List() []*rulespec.Interception {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*rulespec.Interception, len(r.items))
	copy(out, r.items)
	return out
}

// Reset 场景结束时丢弃全部拦截与统计
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
	r.byLabel = make(map[model.Label]*rulespec.Interception)
	r.hits = make(map[model.Label]int64)
	r.total = 0
	r.matched = 0
}

// Stats 获取统计信息
func (r *Registry) Stats() model.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	by := make(map[model.Label]int64, len(r.hits))
	for k, v := range r.hits {
		by[k] = v
	}
	return model.RegistryStats{Total: r.total, Matched: r.matched, ByLabel: by}
}

func matchRequest(req *traffic.Request, m rulespec.Matcher) bool {
	if m.Method != "" && !strings.EqualFold(req.Method, m.Method) {
		return false
	}
	if m.Path != "" && !glob(req.Path, m.Path) {
		return false
	}
	for k, v := range m.Query {
		got, ok := req.Query[k]
		if !ok || got != v {
			return false
		}
	}
	return true
}

var globCache sync.Map // pattern -> *regexp.Regexp

// glob `**` 匹配任意字符，`*` 不跨越 `/`
func glob(s, pattern string) bool {
	re, err := compileGlob(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func compileGlob(pattern string) (*regexp.Regexp, error) {
	if v, ok := globCache.Load(pattern); ok {
		return v.(*regexp.Regexp), nil
	}
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c == '*' {
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				b.WriteString(".*")
				i++
				continue
			}
			b.WriteString("[^/]*")
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(c)))
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, err
	}
	globCache.Store(pattern, re)
	return re, nil
}
