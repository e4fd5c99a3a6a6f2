package sim

// MaxLastSearches 最近搜索按钮的上限
const MaxLastSearches = 5

// LastSearches 最近搜索词：去重、有界、按提交先后排列（最旧在前），不含当前词。
// 超出上限时淘汰最旧的词。
type LastSearches struct {
	current string
	terms   []string
	limit   int
}

// NewLastSearches 创建空的最近搜索列表
func NewLastSearches() *LastSearches {
	return &LastSearches{limit: MaxLastSearches}
}

// Record 记录一次实际执行的搜索
func (l *LastSearches) Record(term string) {
	if term == l.current {
		return
	}
	if l.current != "" {
		l.terms = remove(l.terms, l.current)
		l.terms = append(l.terms, l.current)
		if len(l.terms) > l.limit {
			l.terms = l.terms[len(l.terms)-l.limit:]
		}
	}
	l.terms = remove(l.terms, term)
	l.current = term
}

// Terms 供渲染的按钮文本，最旧在前
func (l *LastSearches) Terms() []string {
	out := make([]string, len(l.terms))
	copy(out, l.terms)
	return out
}

// Current 当前搜索词
func (l *LastSearches) Current() string { return l.current }

func remove(terms []string, t string) []string {
	out := terms[:0]
	for _, x := range terms {
		if x != t {
			out = append(out, x)
		}
	}
	return out
}
