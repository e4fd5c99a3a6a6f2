package suite

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter 决定是否运行某个场景
type Filter func(TestID) bool

type RegexFilters struct {
	MustMatch    RegexList
	MustNotMatch RegexList
}

func (r RegexFilters) AsFilter(id TestID) bool {
	name := id.String()
	return (!r.MustMatch.IsDefined() || r.MustMatch.AnyMatch(name)) &&
		!r.MustNotMatch.AnyMatch(name)
}

// Describe 过滤条件的可读描述，未设置时为空
func (r RegexFilters) Describe() []string {
	var out []string
	if r.MustMatch.IsDefined() {
		out = append(out, fmt.Sprintf("skip any not matching %s", r.MustMatch))
	}
	if r.MustNotMatch.IsDefined() {
		out = append(out, fmt.Sprintf("skip any matching %s", r.MustNotMatch))
	}
	return out
}

// RegexList 实现 pflag.Value，可重复指定
type RegexList struct {
	patterns []*regexp.Regexp
}

func (r RegexList) String() string {
	var ss []string
	for _, p := range r.patterns {
		ss = append(ss, `"`+p.String()+`"`)
	}
	return strings.Join(ss, " or ")
}

// Set is called by the command line parser
func (r *RegexList) Set(value string) error {
	rx, err := regexp.Compile(value)
	if err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	r.patterns = append(r.patterns, rx)
	return nil
}

func (r *RegexList) Type() string { return "regex" }

func (r RegexList) IsDefined() bool {
	return len(r.patterns) != 0
}

func (r RegexList) AnyMatch(s string) bool {
	for _, p := range r.patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
