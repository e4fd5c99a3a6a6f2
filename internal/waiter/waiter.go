// Package waiter 按标签等待拦截交换完成。
//
// 每个标签维护一个已完成交换的队列，Await 每次消费其中一个，
// 因此同一标签可以按请求次数重复等待。序号按交换完成的先后分配，与注册顺序无关。
package waiter

import (
	"context"
	"sync"
	"time"

	"storyharness/pkg/model"
)

const DefaultTimeout = 5 * time.Second

type slot struct {
	done     []model.Exchange
	consumed int
}

// Waiter 标签到已完成交换的映射，由拦截分发器填充
type Waiter struct {
	mu      sync.Mutex
	seq     int64
	slots   map[model.Label]*slot
	log     []model.Exchange
	changed chan struct{}
	timeout time.Duration
}

// New 创建等待器，timeout<=0 时使用 DefaultTimeout
func New(timeout time.Duration) *Waiter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Waiter{
		slots:   make(map[model.Label]*slot),
		changed: make(chan struct{}),
		timeout: timeout,
	}
}

// Resolve 记录一次已完成的交换并唤醒等待者，返回带序号的记录
func (w *Waiter) Resolve(ex model.Exchange) model.Exchange {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	ex.Seq = w.seq
	if ex.Finished.IsZero() {
		ex.Finished = time.Now()
	}
	s, ok := w.slots[ex.Label]
	if !ok {
		s = &slot{}
		w.slots[ex.Label] = s
	}
	s.done = append(s.done, ex)
	w.log = append(w.log, ex)

	close(w.changed)
	w.changed = make(chan struct{})
	return ex
}

// Await 等待标签的下一次交换完成；timeout<=0 使用默认超时
func (w *Waiter) Await(ctx context.Context, label model.Label, timeout time.Duration) (model.Exchange, error) {
	if timeout <= 0 {
		timeout = w.timeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		w.mu.Lock()
		if s, ok := w.slots[label]; ok && s.consumed < len(s.done) {
			ex := s.done[s.consumed]
			s.consumed++
			w.mu.Unlock()
			return ex, nil
		}
		changed := w.changed
		w.mu.Unlock()

		select {
		case <-changed:
		case <-timer.C:
			return model.Exchange{}, &model.TimeoutError{Label: label, After: timeout}
		case <-ctx.Done():
			return model.Exchange{}, ctx.Err()
		}
	}
}

// Pending 已完成但尚未被 Await 消费的交换数
func (w *Waiter) Pending(label model.Label) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.slots[label]
	if !ok {
		return 0
	}
	return len(s.done) - s.consumed
}

// Completed 按完成顺序返回全部交换
func (w *Waiter) Completed() []model.Exchange {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]model.Exchange, len(w.log))
	copy(out, w.log)
	return out
}

// Reset 丢弃全部记录，场景之间调用
func (w *Waiter) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.slots = make(map[model.Label]*slot)
	w.log = nil
	close(w.changed)
	w.changed = make(chan struct{})
}
