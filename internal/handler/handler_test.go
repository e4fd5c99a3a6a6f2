package handler

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyharness/internal/fixture"
	"storyharness/internal/rules"
	"storyharness/internal/waiter"
	"storyharness/pkg/model"
	"storyharness/pkg/rulespec"
	"storyharness/pkg/traffic"
)

const search = "http://127.0.0.1/api/v1/search?query=React&page=0"

type memRecorder struct {
	mu  sync.Mutex
	got []model.Exchange
}

func (r *memRecorder) RecordExchange(ex model.Exchange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, ex)
}

func newHandler(events chan model.Event, rec Recorder) *Handler {
	return New(Config{
		Registry: rules.New(),
		Fixtures: fixture.NewStore(""),
		Waiter:   waiter.New(time.Second),
		Events:   events,
		Recorder: rec,
		Session:  "s1",
	})
}

func register(t *testing.T, h *Handler, label model.Label, p rulespec.Policy) {
	t.Helper()
	_, err := h.Registry().Register(label, rulespec.MustParsePattern(http.MethodGet, "**/search?query=React"), p)
	require.NoError(t, err)
}

func TestDecideUnmatchedPassesThrough(t *testing.T) {
	h := newHandler(nil, nil)
	dec := h.Decide(context.Background(), traffic.NewRequest("1", http.MethodGet, search))
	assert.Nil(t, dec.Interception)
	assert.Equal(t, model.OutcomePassed, dec.Outcome)
	assert.Empty(t, dec.Label())
}

func TestDecidePolicies(t *testing.T) {
	cases := []struct {
		name    string
		policy  rulespec.Policy
		outcome model.Outcome
		status  int
	}{
		{"passthrough", rulespec.Passthrough(), model.OutcomePassed, 0},
		{"body", rulespec.Body(201, []byte(`{"hits":[]}`)), model.OutcomeFulfilled, 201},
		{"status", rulespec.Status(500), model.OutcomeFulfilled, 500},
		{"fixture", rulespec.Fixture("stories"), model.OutcomeFulfilled, 200},
		{"network", rulespec.NetworkFailure(), model.OutcomeFailed, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := newHandler(nil, nil)
			register(t, h, "x", c.policy)
			dec := h.Decide(context.Background(), traffic.NewRequest("1", http.MethodGet, search))
			require.NotNil(t, dec.Interception)
			assert.Equal(t, c.outcome, dec.Outcome)
			if c.status == 0 {
				assert.Nil(t, dec.Response)
				return
			}
			require.NotNil(t, dec.Response)
			assert.Equal(t, c.status, dec.Response.StatusCode)
		})
	}
}

func TestDecideFixtureBodyAndContentType(t *testing.T) {
	h := newHandler(nil, nil)
	register(t, h, "mockApi", rulespec.Fixture("stories"))
	dec := h.Decide(context.Background(), traffic.NewRequest("1", http.MethodGet, search))
	require.NotNil(t, dec.Response)
	assert.Contains(t, string(dec.Response.Body), "Jordan Walke")
	assert.Contains(t, dec.Response.Headers.Get("content-type"), "application/json")
}

func TestDecideMockedResponsesAllowCrossOrigin(t *testing.T) {
	policies := map[string]rulespec.Policy{
		"body":    rulespec.Body(200, []byte(`{"hits":[]}`)),
		"fixture": rulespec.Fixture("stories"),
		"status":  rulespec.Status(500),
	}
	for name, p := range policies {
		t.Run(name, func(t *testing.T) {
			h := newHandler(nil, nil)
			register(t, h, "mockApi", p)
			req := traffic.NewRequest("1", http.MethodGet, "https://hn.algolia.com/api/v1/search?query=React&page=0")
			req.Headers.Set("Origin", "http://localhost:3000")

			dec := h.Decide(context.Background(), req)
			require.NotNil(t, dec.Response)
			assert.Equal(t, "http://localhost:3000", dec.Response.Headers.Get("access-control-allow-origin"))
			assert.Equal(t, "true", dec.Response.Headers.Get("access-control-allow-credentials"))
		})
	}
}

func TestDecideKeepsPolicyCORSHeaders(t *testing.T) {
	h := newHandler(nil, nil)
	register(t, h, "mockApi", rulespec.Fixture("stories").WithHeader("Access-Control-Allow-Origin", "https://example.com"))
	req := traffic.NewRequest("1", http.MethodGet, search)
	req.Headers.Set("Origin", "http://localhost:3000")

	dec := h.Decide(context.Background(), req)
	require.NotNil(t, dec.Response)
	assert.Equal(t, "https://example.com", dec.Response.Headers.Get("access-control-allow-origin"))
	assert.Empty(t, dec.Response.Headers.Get("access-control-allow-credentials"))

	other := newHandler(nil, nil)
	register(t, other, "mockApi", rulespec.Fixture("stories"))
	dec = other.Decide(context.Background(), traffic.NewRequest("2", http.MethodGet, search))
	assert.Equal(t, "*", dec.Response.Headers.Get("access-control-allow-origin"))
}

func TestDecideUnknownFixtureFails(t *testing.T) {
	h := newHandler(nil, nil)
	register(t, h, "mockApi", rulespec.Fixture("nope"))
	dec := h.Decide(context.Background(), traffic.NewRequest("1", http.MethodGet, search))
	assert.Equal(t, model.OutcomeFailed, dec.Outcome)
	assert.ErrorIs(t, dec.Err, fixture.ErrUnknownFixture)
}

func TestDecideDelayHonoursContext(t *testing.T) {
	h := newHandler(nil, nil)
	register(t, h, "slow", rulespec.Status(200).WithDelay(60_000))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	dec := h.Decide(ctx, traffic.NewRequest("1", http.MethodGet, search))
	assert.Equal(t, model.OutcomeFailed, dec.Outcome)
	assert.ErrorIs(t, dec.Err, context.DeadlineExceeded)
}

func TestCompleteResolvesWaiterRecordsAndEmits(t *testing.T) {
	events := make(chan model.Event, 4)
	rec := &memRecorder{}
	h := newHandler(events, rec)
	register(t, h, "getStories", rulespec.Passthrough())

	req := traffic.NewRequest("1", http.MethodGet, search)
	dec := h.Decide(context.Background(), req)
	ex := h.Complete(req, dec, 200, []byte(`{}`), nil)
	assert.Equal(t, int64(1), ex.Seq)
	assert.Equal(t, "React", ex.Query["query"])

	got, err := h.Waiter().Await(context.Background(), "getStories", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 200, got.StatusCode)

	// unlabelled exchanges are recorded but never reach the waiter
	other := traffic.NewRequest("2", http.MethodGet, "http://127.0.0.1/logo.svg")
	h.Complete(other, h.Decide(context.Background(), other), 200, nil, nil)
	assert.Len(t, h.Waiter().Completed(), 1)
	assert.Len(t, rec.got, 2)

	ev := <-events
	require.NotNil(t, ev.Label)
	assert.Equal(t, model.Label("getStories"), *ev.Label)
	assert.Equal(t, model.SessionID("s1"), ev.Session)
	ev = <-events
	assert.Nil(t, ev.Label)
}

func TestCompleteTransportErrorMarksFailed(t *testing.T) {
	h := newHandler(nil, nil)
	register(t, h, "netError", rulespec.Passthrough())
	req := traffic.NewRequest("1", http.MethodGet, search)
	ex := h.Complete(req, h.Decide(context.Background(), req), 200, nil, assert.AnError)
	assert.Equal(t, model.OutcomeFailed, ex.Outcome)
	assert.Zero(t, ex.StatusCode)
	assert.True(t, ex.NetworkError())
}

func TestSendEventNeverBlocks(t *testing.T) {
	events := make(chan model.Event)
	h := newHandler(events, nil)
	req := traffic.NewRequest("1", http.MethodGet, search)
	done := make(chan struct{})
	go func() {
		h.Complete(req, h.Decide(context.Background(), req), 200, nil, nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Complete blocked on a full event channel")
	}
}
