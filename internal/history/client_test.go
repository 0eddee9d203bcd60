package history

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZRosserMcIntosh/railgun-sub001/internal/store"
)

func TestFetchPageChannel(t *testing.T) {
	t.Parallel()

	var gotPath, gotQuery, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[
			{"id":"m1","senderId":"alice","channelId":"general","envelope":"c1","timestamp":100,"status":"read"},
			{"id":"m2","senderId":"bob","channelId":"general","envelope":"c2","timestamp":200}
		]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	c.SetToken("token-1")

	msgs, err := c.FetchPage(context.Background(), store.ChannelKey("general"), 500, 50)
	require.NoError(t, err)

	assert.Equal(t, "/v1/channels/general/messages", gotPath)
	assert.Equal(t, "before=500&limit=50", gotQuery)
	assert.Equal(t, "Bearer token-1", gotAuth)

	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, int64(100), msgs[0].Timestamp)
	assert.Equal(t, "read", msgs[0].Status)
	assert.Equal(t, "m2", msgs[1].ID)
}

func TestFetchPageDirect(t *testing.T) {
	t.Parallel()

	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"messages":[]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	msgs, err := c.FetchPage(context.Background(), store.DirectKey("bob"), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, "/v1/direct/bob/messages", gotPath)
}

func TestFetchPageServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such channel", http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(server.URL)
	_, err := c.FetchPage(context.Background(), store.ChannelKey("missing"), 0, 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchPageInvalidConversation(t *testing.T) {
	t.Parallel()

	c := NewClient("http://unused.test")
	_, err := c.FetchPage(context.Background(), store.ConversationKey{}, 0, 50)
	require.Error(t, err)

	_, err = c.FetchPage(context.Background(), store.ConversationKey{ChannelID: "general", PeerID: "bob"}, 0, 50)
	require.Error(t, err)
}
