package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/input"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"

	"storyharness/pkg/model"
)

const readyPollInterval = 50 * time.Millisecond

// Page 通过 DevTools 协议操作真实浏览器页面
type Page struct {
	client *cdp.Client
	closer func() error
}

// NewPage 基于已附加的客户端创建页面；closer 在 Close 时调用
func NewPage(client *cdp.Client, closer func() error) *Page {
	return &Page{client: client, closer: closer}
}

// Navigate 导航并等待 document.readyState 为 complete
func (p *Page) Navigate(ctx context.Context, url string) error {
	reply, err := p.client.Page.Navigate(ctx, page.NewNavigateArgs(url))
	if err != nil {
		return err
	}
	if reply.ErrorText != nil && *reply.ErrorText != "" {
		return fmt.Errorf("navigate %s: %s", url, *reply.ErrorText)
	}
	for {
		var state string
		if err := p.eval(ctx, `document.readyState`, &state); err == nil && state == "complete" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyPollInterval):
		}
	}
}

// Clear 用原生 setter 清空输入框并触发 input 事件，受控组件才能感知
func (p *Page) Clear(ctx context.Context, selector string) error {
	return p.eval(ctx, fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) throw new Error('no element ' + %[1]s);
		const setter = Object.getOwnPropertyDescriptor(HTMLInputElement.prototype, 'value').set;
		setter.call(el, '');
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.focus();
	})()`, quote(selector)), nil)
}

// Type 聚焦后插入文本
func (p *Page) Type(ctx context.Context, selector, text string) error {
	if err := p.focus(ctx, selector); err != nil {
		return err
	}
	return p.client.Input.InsertText(ctx, input.NewInsertTextArgs(text))
}

// PressEnter 聚焦后发送回车按键
func (p *Page) PressEnter(ctx context.Context, selector string) error {
	if err := p.focus(ctx, selector); err != nil {
		return err
	}
	down := input.NewDispatchKeyEventArgs("keyDown").
		SetKey("Enter").
		SetCode("Enter").
		SetWindowsVirtualKeyCode(13).
		SetText("\r")
	if err := p.client.Input.DispatchKeyEvent(ctx, down); err != nil {
		return err
	}
	up := input.NewDispatchKeyEventArgs("keyUp").
		SetKey("Enter").
		SetCode("Enter").
		SetWindowsVirtualKeyCode(13)
	return p.client.Input.DispatchKeyEvent(ctx, up)
}

// Click 点击 selector 匹配的第 index 个元素
func (p *Page) Click(ctx context.Context, selector string, index int) error {
	return p.eval(ctx, fmt.Sprintf(`(() => {
		const els = document.querySelectorAll(%s);
		if (els.length <= %d) throw new Error('no element ' + %[1]s + ' at index %[2]d');
		els[%[2]d].click();
	})()`, quote(selector), index), nil)
}

// ClickText 点击 selector 匹配且文本包含 text 的第一个元素
func (p *Page) ClickText(ctx context.Context, selector, text string) error {
	return p.eval(ctx, fmt.Sprintf(`(() => {
		const el = [...document.querySelectorAll(%s)].find(e => e.innerText.includes(%s));
		if (!el) throw new Error('no element ' + %[1]s + ' containing ' + %[2]s);
		el.click();
	})()`, quote(selector), quote(text)), nil)
}

// Query 返回元素快照；行内列取自直接子元素的文本
func (p *Page) Query(ctx context.Context, selector string) ([]model.Element, error) {
	var out []model.Element
	err := p.eval(ctx, fmt.Sprintf(`[...document.querySelectorAll(%s)].map(el => {
		const style = window.getComputedStyle(el);
		const visible = style.visibility !== 'hidden' && style.display !== 'none' &&
			!!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
		return {
			text: el.innerText || el.value || '',
			visible: visible,
			fields: [...el.children].map(c => c.innerText.trim()),
		};
	})`, quote(selector)), &out)
	return out, err
}

// Storage 读取 localStorage
func (p *Page) Storage(ctx context.Context, key string) (string, bool, error) {
	var v *string
	if err := p.eval(ctx, fmt.Sprintf(`localStorage.getItem(%s)`, quote(key)), &v); err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

// Close 释放连接与目标
func (p *Page) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

func (p *Page) focus(ctx context.Context, selector string) error {
	return p.eval(ctx, fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) throw new Error('no element ' + %[1]s);
		el.focus();
	})()`, quote(selector)), nil)
}

func (p *Page) eval(ctx context.Context, expr string, out any) error {
	args := runtime.NewEvaluateArgs(expr).SetReturnByValue(true).SetAwaitPromise(true)
	reply, err := p.client.Runtime.Evaluate(ctx, args)
	if err != nil {
		return err
	}
	if d := reply.ExceptionDetails; d != nil {
		msg := d.Text
		if d.Exception != nil && d.Exception.Description != nil {
			msg = *d.Exception.Description
		}
		return fmt.Errorf("evaluate: %s", msg)
	}
	if out == nil || len(reply.Result.Value) == 0 {
		return nil
	}
	return json.Unmarshal(reply.Result.Value, out)
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
