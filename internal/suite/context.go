package suite

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"storyharness/internal/driver"
)

const excludedByFilter = "excluded by filter parameters"

type environment struct {
	ctx        context.Context
	factory    driver.Factory
	results    Results
	testLogger TestLogger
	filter     Filter
	timeout    time.Duration
}

// Runner 顺序执行场景树
type Runner struct {
	Factory driver.Factory
	Filter  Filter
	Logger  TestLogger
	// Timeout 单个场景的总时限，0 表示不限
	Timeout time.Duration
}

// Run 执行 root 下的全部场景并返回结果
func (r *Runner) Run(ctx context.Context, root *Node) Results {
	testLogger := r.Logger
	if testLogger == nil {
		testLogger = nullTestLogger{}
	}
	env := &environment{
		ctx:        ctx,
		factory:    r.Factory,
		testLogger: testLogger,
		filter:     r.Filter,
		timeout:    r.Timeout,
	}
	env.visit(root, TestID{}, nil, "")
	return env.results
}

func (env *environment) visit(n *Node, parent TestID, before []func(*T), skipReason string) {
	id := parent.child(n.name)
	if n.skipped && skipReason == "" {
		skipReason = n.skipReason
		if skipReason == "" {
			skipReason = "skipped"
		}
	}
	steps := append(append([]func(*T){}, before...), n.before...)

	if !n.leaf {
		for _, c := range n.children {
			env.visit(c, id, steps, skipReason)
		}
		return
	}

	env.testLogger.TestStarted(id)
	if skipReason == "" && n.action == nil {
		skipReason = "pending"
	}
	if skipReason == "" && env.filter != nil && !env.filter(id) {
		skipReason = excludedByFilter
	}
	if skipReason != "" {
		env.results.Tests = append(env.results.Tests, TestResult{TestID: id, Skipped: true, SkipReason: skipReason})
		env.testLogger.TestSkipped(id, skipReason)
		return
	}

	t := &T{env: env, id: id}
	t.run(append(steps, n.action))
	if t.skipped {
		env.testLogger.TestSkipped(id, t.skipReason)
	} else {
		env.testLogger.TestFinished(id, t.failed, t.debugLogger.Output())
	}
}

// T 单个场景的运行上下文，实现 testify 的 require.TestingT
type T struct {
	env         *environment
	id          TestID
	ctx         context.Context
	drv         *driver.Driver
	debugLogger CapturingLogger
	failed      bool
	skipped     bool
	skipReason  string
	errors      []error
}

func (t *T) run(steps []func(*T)) {
	start := time.Now()
	ctx := t.env.ctx
	cancel := func() {}
	if t.env.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.env.timeout)
	}
	t.ctx = ctx

	defer func() {
		if r := recover(); r != nil && !t.skipped {
			t.failed = true
			var addError error
			if _, ok := r.(*T); ok {
				if len(t.errors) == 0 {
					addError = errors.New("scenario failed with no failure message")
				}
			} else {
				addError = fmt.Errorf("unexpected panic in scenario: %+v\n%s", r, string(debug.Stack()))
			}
			if addError != nil {
				t.errors = append(t.errors, addError)
				t.env.testLogger.TestError(t.id, addError)
			}
		}
		t.closeDriver()
		cancel()

		result := TestResult{
			TestID:     t.id,
			Errors:     t.errors,
			Skipped:    t.skipped,
			SkipReason: t.skipReason,
			Duration:   time.Since(start),
		}
		t.env.results.Tests = append(t.env.results.Tests, result)
		if t.failed && !t.skipped {
			t.env.results.Failures = append(t.env.results.Failures, result)
		}
	}()

	for _, step := range steps {
		step(t)
	}
}

// closeDriver 驱动总是走到 Asserted；未经 Require/Check 上报的驱动失败在此补记
func (t *T) closeDriver() {
	if t.drv == nil {
		return
	}
	if err := t.drv.Finish(); err != nil && !t.failed && !t.skipped {
		t.fail(err)
	}
	if err := t.drv.Close(); err != nil {
		t.Debug("close driver: %v", err)
	}
	t.drv = nil
}

// ID 场景路径
func (t *T) ID() TestID { return t.id }

// Context 场景上下文
func (t *T) Context() context.Context { return t.ctx }

// Driver 返回本场景的驱动，首次调用时创建
func (t *T) Driver() *driver.Driver {
	if t.drv != nil {
		return t.drv
	}
	if t.env.factory == nil {
		t.Errorf("no driver factory configured")
		t.FailNow()
	}
	d, err := t.env.factory(t.ctx)
	if err != nil {
		t.Errorf("create driver: %v", err)
		t.FailNow()
	}
	t.drv = d
	return d
}

func (t *T) fail(err error) {
	t.failed = true
	t.errors = append(t.errors, err)
	t.env.testLogger.TestError(t.id, err)
}

func (t *T) Errorf(format string, args ...any) {
	t.fail(fmt.Errorf(format, args...))
}

func (t *T) FailNow() {
	panic(t)
}

// Require err 非空时记录并中止场景
func (t *T) Require(err error) {
	if err != nil {
		t.fail(err)
		t.FailNow()
	}
}

// Check err 非空时记录，场景继续
func (t *T) Check(err error) bool {
	if err != nil {
		t.fail(err)
		return false
	}
	return true
}

func (t *T) Skip(reason string) {
	t.skipped = true
	t.skipReason = reason
	panic(t)
}

func (t *T) Failed() bool { return t.failed }

func (t *T) Errors() []error {
	return append([]error(nil), t.errors...)
}

func (t *T) Debug(message string, args ...any) {
	t.debugLogger.Printf(message, args...)
}
