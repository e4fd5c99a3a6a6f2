package cdp

import (
	"testing"

	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/stretchr/testify/assert"

	"storyharness/pkg/traffic"
)

func TestToNeutralRequest(t *testing.T) {
	ev := &fetch.RequestPausedReply{
		RequestID: "interception-7",
		Request: network.Request{
			URL:     "https://hn.algolia.com/api/v1/search?query=React&page=0",
			Method:  "GET",
			Headers: network.Headers(`{"Accept":"application/json"}`),
		},
	}
	req := ToNeutralRequest(ev)
	assert.Equal(t, "interception-7", req.ID)
	assert.Equal(t, "/api/v1/search", req.Path)
	assert.Equal(t, map[string]string{"query": "React", "page": "0"}, req.Query)
	assert.Equal(t, "application/json", req.Headers.Get("accept"))
	assert.False(t, IsResponseStage(ev))
	assert.Zero(t, StatusCode(ev))
}

func TestResponseStage(t *testing.T) {
	code := 500
	ev := &fetch.RequestPausedReply{ResponseStatusCode: &code}
	assert.True(t, IsResponseStage(ev))
	assert.Equal(t, 500, StatusCode(ev))
}

func TestToHeaderEntriesSorted(t *testing.T) {
	h := traffic.Header{}
	h.Set("X-B", "2")
	h.Set("Content-Type", "application/json")
	entries := ToHeaderEntries(h)
	assert.Equal(t, []fetch.HeaderEntry{
		{Name: "content-type", Value: "application/json"},
		{Name: "x-b", Value: "2"},
	}, entries)
}
