package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyharness/internal/config"
	"storyharness/internal/storage"
	"storyharness/internal/suite"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.NewConfig()
	cfg.Harness.WaitTimeoutMS = 2000
	cfg.Harness.AssertTimeoutMS = 300
	cfg.Harness.PollIntervalMS = 10
	cfg.Sqlite.Dsn = filepath.Join(t.TempDir(), "svc.sqlite3")
	return cfg
}

func TestRunSuiteRecordsJournal(t *testing.T) {
	cfg := testConfig(t)
	j, err := storage.Open(cfg.Sqlite, nil)
	require.NoError(t, err)
	defer j.Close()

	s := New(nil, j)
	id, err := s.StartSession(cfg)
	require.NoError(t, err)
	events, err := s.SubscribeEvents(id)
	require.NoError(t, err)

	var f suite.RegexFilters
	require.NoError(t, f.MustMatch.Set("Mocking the API"))
	res, err := s.RunSuite(context.Background(), id, f.AsFilter, nil)
	require.NoError(t, err)
	for _, fail := range res.Failures {
		t.Errorf("[%s] %v", fail.TestID, fail.Errors)
	}
	passed, _, skipped := res.Counts()
	assert.Equal(t, 1, passed)
	assert.Equal(t, len(s.ListScenarios())-1, skipped)

	select {
	case ev := <-events:
		require.NotNil(t, ev.Label)
		assert.Equal(t, "mockApi", string(*ev.Label))
		assert.Equal(t, id, ev.Session)
	default:
		t.Fatal("no event published")
	}

	ctx := context.Background()
	run, err := j.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Passed)
	exchanges, err := j.Exchanges(ctx, id)
	require.NoError(t, err)
	require.Len(t, exchanges, 1)
	assert.Equal(t, "mockApi", exchanges[0].Label)
	assert.Equal(t, 200, exchanges[0].StatusCode)

	require.NoError(t, s.StopSession(id))
	assert.ErrorIs(t, s.StopSession(id), ErrSessionNotFound)
	_, err = s.RunSuite(ctx, id, nil, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStartSessionRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Harness.Mode = "browser"
	_, err := New(nil, nil).StartSession(cfg)
	assert.Error(t, err)
}

func TestListScenarios(t *testing.T) {
	names := New(nil, nil).ListScenarios()
	assert.Len(t, names, 14)
	assert.Equal(t, "Hacker Stories/hitting the real API/Search/shows the footer", names[0])
}
