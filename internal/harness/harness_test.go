package harness

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyharness/internal/config"
	"storyharness/internal/driver"
	"storyharness/internal/logger"
	"storyharness/pkg/model"
	"storyharness/pkg/rulespec"
)

type memRecorder struct {
	mu  sync.Mutex
	got []model.Exchange
}

func (r *memRecorder) RecordExchange(ex model.Exchange) {
	r.mu.Lock()
	r.got = append(r.got, ex)
	r.mu.Unlock()
}

func TestOriginOf(t *testing.T) {
	cases := map[string]string{
		"http://localhost:3000/":      "http://localhost:3000",
		"HTTPS://example.com/app?x=1": "https://example.com",
		"http://127.0.0.1:5173/a/b/c": "http://127.0.0.1:5173",
		"not a url":                   "",
		"":                            "",
	}
	for in, want := range cases {
		assert.Equal(t, want, originOf(in), in)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Harness.Mode = "browser"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestSimFactoryUsesLocalBackend(t *testing.T) {
	cfg := config.NewConfig()
	rec := &memRecorder{}
	events := make(chan model.Event, 16)
	h, err := New(cfg, logger.NewNop(), WithRecorder(rec), WithEvents(events), WithSession("s-1"))
	require.NoError(t, err)
	defer h.Close()
	require.NotNil(t, h.Backend())

	ctx := context.Background()
	d, err := h.Factory()(ctx)
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Intercept("getStories", rulespec.MustParsePattern("GET", "**/search?query=React&page=0"), rulespec.Passthrough()))
	require.NoError(t, d.Visit(ctx, "/"))
	ex, err := d.Await(ctx, "getStories")
	require.NoError(t, err)
	assert.Equal(t, 200, ex.StatusCode)
	assert.Equal(t, int64(1), h.Backend().Requests())
	require.NoError(t, d.ExpectCount(ctx, driver.SelItem, 20))

	rec.mu.Lock()
	assert.Len(t, rec.got, 1)
	rec.mu.Unlock()
	select {
	case evt := <-events:
		assert.Equal(t, model.SessionID("s-1"), evt.Session)
		require.NotNil(t, evt.Label)
		assert.Equal(t, model.Label("getStories"), *evt.Label)
	default:
		t.Fatal("no event emitted")
	}
}

func TestFactoryIsolatesScenarios(t *testing.T) {
	h, err := New(nil, nil)
	require.NoError(t, err)
	defer h.Close()

	ctx := context.Background()
	first, err := h.Factory()(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Intercept("getStories", rulespec.MustParsePattern("GET", "**/search**"), rulespec.Passthrough()))
	require.NoError(t, first.Close())

	second, err := h.Factory()(ctx)
	require.NoError(t, err)
	defer second.Close()
	assert.NoError(t, second.Intercept("getStories", rulespec.MustParsePattern("GET", "**/search**"), rulespec.Passthrough()))
}

func TestExternalAPIBaseSkipsBackend(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Harness.APIBase = "https://hn.algolia.com/api/v1"
	h, err := New(cfg, nil)
	require.NoError(t, err)
	defer h.Close()
	assert.Nil(t, h.Backend())
	assert.Equal(t, cfg.Harness.APIBase, h.apiBase())
}

func TestCDPFactoryFailsWithoutBrowser(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Harness.Mode = ModeCDP
	cfg.Harness.DevToolsURL = "http://127.0.0.1:1"
	h, err := New(cfg, nil)
	require.NoError(t, err)
	defer h.Close()
	assert.Nil(t, h.Backend())

	_, err = h.Factory()(context.Background())
	assert.Error(t, err)
}
