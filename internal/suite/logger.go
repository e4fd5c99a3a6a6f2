package suite

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// TestLogger 接收场景生命周期通知
type TestLogger interface {
	TestStarted(id TestID)
	TestError(id TestID, err error)
	TestFinished(id TestID, failed bool, debugOutput CapturedOutput)
	TestSkipped(id TestID, reason string)
}

type nullTestLogger struct{}

func (n nullTestLogger) TestStarted(TestID)                        {}
func (n nullTestLogger) TestError(TestID, error)                   {}
func (n nullTestLogger) TestFinished(TestID, bool, CapturedOutput) {}
func (n nullTestLogger) TestSkipped(TestID, string)                {}

type CapturedMessage struct {
	Time    time.Time
	Message string
}

type CapturedOutput []CapturedMessage

// CapturingLogger 缓存场景内的调试输出，结束时按需打印
type CapturingLogger struct {
	output []CapturedMessage
	lock   sync.Mutex
}

func (l *CapturingLogger) Printf(message string, args ...any) {
	l.lock.Lock()
	l.output = append(l.output, CapturedMessage{Time: time.Now(), Message: fmt.Sprintf(message, args...)})
	l.lock.Unlock()
}

func (l *CapturingLogger) Output() CapturedOutput {
	l.lock.Lock()
	ret := append([]CapturedMessage(nil), l.output...)
	l.lock.Unlock()
	return ret
}

func (output CapturedOutput) Dump(dest io.Writer, prefix string) {
	for _, m := range output {
		fmt.Fprintf(dest, "%s[%s] %s\n",
			prefix,
			m.Time.Format(timestampFormat),
			m.Message,
		)
	}
}

// ConsoleTestLogger 彩色控制台输出
type ConsoleTestLogger struct {
	Out                  io.Writer
	DebugOutputOnFailure bool
	DebugOutputOnSuccess bool

	pass *color.Color
	fail *color.Color
	skip *color.Color
}

// NewConsoleTestLogger 创建控制台日志；out 为 nil 时写 color.Output
func NewConsoleTestLogger(out io.Writer) *ConsoleTestLogger {
	if out == nil {
		out = color.Output
	}
	return &ConsoleTestLogger{
		Out:                  out,
		DebugOutputOnFailure: true,
		pass:                 color.New(color.FgGreen, color.Bold),
		fail:                 color.New(color.FgRed, color.Bold),
		skip:                 color.New(color.FgYellow),
	}
}

func (c *ConsoleTestLogger) TestStarted(id TestID) {
	fmt.Fprintf(c.Out, "[%s]\n", id)
}

func (c *ConsoleTestLogger) TestError(id TestID, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		fmt.Fprintf(c.Out, "  %s\n", line)
	}
}

func (c *ConsoleTestLogger) TestFinished(id TestID, failed bool, debugOutput CapturedOutput) {
	if failed {
		c.fail.Fprintf(c.Out, "  FAIL: %s\n", id)
	} else {
		c.pass.Fprintf(c.Out, "  PASS: %s\n", id)
	}
	if len(debugOutput) > 0 &&
		((failed && c.DebugOutputOnFailure) || (!failed && c.DebugOutputOnSuccess)) {
		debugOutput.Dump(c.Out, "    DEBUG ")
	}
}

func (c *ConsoleTestLogger) TestSkipped(id TestID, reason string) {
	if reason == "" {
		c.skip.Fprintf(c.Out, "  SKIP: %s\n", id)
	} else {
		c.skip.Fprintf(c.Out, "  SKIP: %s (%s)\n", id, reason)
	}
}

// Summary 打印汇总行
func (c *ConsoleTestLogger) Summary(r Results) {
	passed, failed, skipped := r.Counts()
	line := fmt.Sprintf("%d passed, %d failed, %d skipped", passed, failed, skipped)
	if r.OK() {
		c.pass.Fprintln(c.Out, line)
		return
	}
	c.fail.Fprintln(c.Out, line)
	for _, f := range r.Failures {
		for _, err := range f.Errors {
			fmt.Fprintf(c.Out, "  %s\n", TestFailure{ID: f.TestID, Err: err})
		}
	}
}
