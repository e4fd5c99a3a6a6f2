// Package transport 将进程内页面的 HTTP 流量接入拦截分发器。
package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"storyharness/internal/handler"
	"storyharness/pkg/model"
	"storyharness/pkg/traffic"
)

// ErrNetwork 强制网络错误时 RoundTrip 返回的错误
var ErrNetwork = errors.New("net::ERR_FAILED")

// Interceptor 实现 http.RoundTripper：命中 mock 策略的请求不会到达 Next
type Interceptor struct {
	Handler *handler.Handler
	Next    http.RoundTripper
}

// NewInterceptor 创建拦截传输，next 为空时使用 http.DefaultTransport
func NewInterceptor(h *handler.Handler, next http.RoundTripper) *Interceptor {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Interceptor{Handler: h, Next: next}
}

// Client 返回使用该传输的 http.Client
func (t *Interceptor) Client() *http.Client {
	return &http.Client{Transport: t}
}

// RoundTrip 实现 http.RoundTripper
func (t *Interceptor) RoundTrip(r *http.Request) (*http.Response, error) {
	req := traffic.NewRequest(uuid.NewString(), r.Method, r.URL.String())
	for k := range r.Header {
		req.Headers.Set(k, r.Header.Get(k))
	}

	dec := t.Handler.Decide(r.Context(), req)
	switch dec.Outcome {
	case model.OutcomeFulfilled:
		res := dec.Response
		t.Handler.Complete(req, dec, res.StatusCode, res.Body, nil)
		return toHTTPResponse(r, res), nil

	case model.OutcomeFailed:
		err := ErrNetwork
		if dec.Err != nil {
			err = fmt.Errorf("%w: %v", ErrNetwork, dec.Err)
		}
		t.Handler.Complete(req, dec, 0, nil, err)
		return nil, err

	default:
		resp, err := t.Next.RoundTrip(r)
		if err != nil {
			t.Handler.Complete(req, dec, 0, nil, err)
			return nil, err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.Handler.Complete(req, dec, 0, nil, err)
			return nil, err
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))
		t.Handler.Complete(req, dec, resp.StatusCode, body, nil)
		return resp, nil
	}
}

func toHTTPResponse(r *http.Request, res *traffic.Response) *http.Response {
	h := make(http.Header, len(res.Headers))
	for k, v := range res.Headers {
		h.Set(k, v)
	}
	h.Set("Content-Length", strconv.Itoa(len(res.Body)))
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", res.StatusCode, http.StatusText(res.StatusCode)),
		StatusCode:    res.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(res.Body)),
		ContentLength: int64(len(res.Body)),
		Request:       r,
	}
}
