package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout 等待超时的哨兵错误，TimeoutError 通过 Is 与之匹配
var ErrTimeout = errors.New("timed out")

// TimeoutError 等待某个标签的交换超时
type TimeoutError struct {
	Label Label
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for @%s", e.After, e.Label)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// AssertionFailure 页面或存储状态与期望不符
type AssertionFailure struct {
	Check    string
	Expected any
	Actual   any
}

func (e *AssertionFailure) Error() string {
	return fmt.Sprintf("%s: expected %v, got %v", e.Check, e.Expected, e.Actual)
}
