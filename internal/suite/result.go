package suite

import (
	"fmt"
	"strings"
	"time"
)

// TestID 场景在树中的路径
type TestID struct {
	Path []string
}

func (t TestID) String() string {
	return strings.Join(t.Path, "/")
}

func (t TestID) child(name string) TestID {
	path := make([]string, 0, len(t.Path)+1)
	path = append(path, t.Path...)
	return TestID{Path: append(path, name)}
}

// TestResult 单个场景的结果
type TestResult struct {
	TestID     TestID
	Errors     []error
	Skipped    bool
	SkipReason string
	Duration   time.Duration
}

// Failed 是否失败
func (r TestResult) Failed() bool {
	return !r.Skipped && len(r.Errors) > 0
}

// Results 一次运行的全部结果
type Results struct {
	Tests    []TestResult
	Failures []TestResult
}

func (r Results) OK() bool {
	return len(r.Failures) == 0
}

// Counts 返回通过、失败、跳过的数量
func (r Results) Counts() (passed, failed, skipped int) {
	for _, t := range r.Tests {
		switch {
		case t.Skipped:
			skipped++
		case t.Failed():
			failed++
		default:
			passed++
		}
	}
	return
}

type TestFailure struct {
	ID  TestID
	Err error
}

func (f TestFailure) Error() string {
	return fmt.Sprintf("[%s]: %s", f.ID, f.Err)
}

func (f TestFailure) Unwrap() error { return f.Err }
