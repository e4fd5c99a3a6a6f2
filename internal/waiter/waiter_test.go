package waiter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyharness/pkg/model"
)

func TestAwaitAlreadyResolved(t *testing.T) {
	w := New(time.Second)
	w.Resolve(model.Exchange{Label: "getTypes", StatusCode: 200})

	ex, err := w.Await(context.Background(), "getTypes", 0)
	require.NoError(t, err)
	assert.Equal(t, 200, ex.StatusCode)
	assert.Equal(t, int64(1), ex.Seq)
	assert.Zero(t, w.Pending("getTypes"))
}

func TestAwaitBlocksUntilResolved(t *testing.T) {
	w := New(time.Second)
	go func() {
		time.Sleep(20 * time.Millisecond)
		w.Resolve(model.Exchange{Label: "getNextStories"})
	}()

	ex, err := w.Await(context.Background(), "getNextStories", 0)
	require.NoError(t, err)
	assert.Equal(t, model.Label("getNextStories"), ex.Label)
}

func TestAwaitTimesOut(t *testing.T) {
	w := New(time.Second)
	w.Resolve(model.Exchange{Label: "other"})

	start := time.Now()
	_, err := w.Await(context.Background(), "never", 30*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrTimeout))

	var te *model.TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, model.Label("never"), te.Label)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestAwaitHonoursContext(t *testing.T) {
	w := New(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.Await(ctx, "x", 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSameLabelAwaitedOncePerExchange(t *testing.T) {
	w := New(50 * time.Millisecond)
	for i := 0; i < 6; i++ {
		w.Resolve(model.Exchange{Label: "faker"})
	}
	for i := 0; i < 6; i++ {
		_, err := w.Await(context.Background(), "faker", 0)
		require.NoError(t, err, "await #%d", i)
	}
	_, err := w.Await(context.Background(), "faker", 0)
	assert.ErrorIs(t, err, model.ErrTimeout)
}

func TestResolutionFollowsCompletionOrder(t *testing.T) {
	w := New(time.Second)

	// "first" registered/started first but completes last
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		time.Sleep(40 * time.Millisecond)
		w.Resolve(model.Exchange{Label: "first"})
	}()
	go func() {
		defer wg.Done()
		w.Resolve(model.Exchange{Label: "second"})
	}()

	first, err := w.Await(context.Background(), "first", 0)
	require.NoError(t, err)
	second, err := w.Await(context.Background(), "second", 0)
	require.NoError(t, err)
	wg.Wait()

	assert.Less(t, second.Seq, first.Seq)
	log := w.Completed()
	require.Len(t, log, 2)
	assert.Equal(t, model.Label("second"), log[0].Label)
	assert.Equal(t, model.Label("first"), log[1].Label)
}

func TestReset(t *testing.T) {
	w := New(20 * time.Millisecond)
	w.Resolve(model.Exchange{Label: "a"})
	w.Reset()
	assert.Empty(t, w.Completed())
	_, err := w.Await(context.Background(), "a", 0)
	assert.ErrorIs(t, err, model.ErrTimeout)
}
