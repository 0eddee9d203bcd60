package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func requireOrdered(t *testing.T, msgs []Message) {
	t.Helper()
	for i := 1; i < len(msgs); i++ {
		require.LessOrEqual(t, msgs[i-1].Timestamp, msgs[i].Timestamp,
			"timeline out of order at index %d", i)
	}
}

func TestIngestIdempotent(t *testing.T) {
	t.Parallel()

	s := New()
	key := ChannelKey("general")

	require.NoError(t, s.Ingest(Message{
		ID: "m1", SenderID: "alice", Conversation: key,
		Content: "first", Timestamp: 100,
	}))
	require.NoError(t, s.Ingest(Message{
		ID: "m1", SenderID: "alice", Conversation: key,
		Content: "first (edited)", Timestamp: 100, Status: StatusRead,
	}))

	msgs := s.Messages(key)
	require.Len(t, msgs, 1)
	require.Equal(t, "first (edited)", msgs[0].Content)
	require.Equal(t, StatusRead, msgs[0].Status)
}

func TestIngestSelfEchoMerge(t *testing.T) {
	t.Parallel()

	s := New()
	key := DirectKey("bob")

	require.NoError(t, s.InsertPending(Message{
		LocalID: "tok-1", SenderID: "alice", Conversation: key,
		Content: "hey", Timestamp: 100,
	}))

	// The push echo arrives before (or instead of) an explicit ack and
	// carries both the server id and the correlation token.
	require.NoError(t, s.Ingest(Message{
		ID: "srv-9", LocalID: "tok-1", SenderID: "alice", Conversation: key,
		Content: "hey", Timestamp: 105,
	}))

	msgs := s.Messages(key)
	require.Len(t, msgs, 1)
	require.Equal(t, "srv-9", msgs[0].ID)
	require.Equal(t, "tok-1", msgs[0].LocalID)
	require.Equal(t, StatusSent, msgs[0].Status)

	// A late ack for the same token rewrites the same record.
	_, ok := s.ReconcileAck("tok-1", "srv-9", StatusSent, 0)
	require.True(t, ok)
	msgs = s.Messages(key)
	require.Len(t, msgs, 1)
}

func TestIngestEchoThenDuplicatePush(t *testing.T) {
	t.Parallel()

	s := New()
	key := ChannelKey("general")

	require.NoError(t, s.InsertPending(Message{
		LocalID: "tok-2", SenderID: "alice", Conversation: key,
		Content: "hi", Timestamp: 50,
	}))
	require.NoError(t, s.Ingest(Message{
		ID: "srv-1", LocalID: "tok-2", Conversation: key, SenderID: "alice",
		Content: "hi", Timestamp: 55,
	}))
	// Redelivered push (at-least-once transport).
	require.NoError(t, s.Ingest(Message{
		ID: "srv-1", LocalID: "tok-2", Conversation: key, SenderID: "alice",
		Content: "hi", Timestamp: 55,
	}))

	require.Len(t, s.Messages(key), 1)
}

func TestOrderInvariant(t *testing.T) {
	t.Parallel()

	s := New()
	key := ChannelKey("ops")

	require.NoError(t, s.Ingest(Message{ID: "c", Conversation: key, SenderID: "u", Timestamp: 30}))
	require.NoError(t, s.InsertPending(Message{LocalID: "t1", Conversation: key, SenderID: "me", Timestamp: 10}))
	requireOrdered(t, s.Messages(key))

	require.NoError(t, s.Ingest(Message{ID: "b", Conversation: key, SenderID: "u", Timestamp: 20}))
	requireOrdered(t, s.Messages(key))

	// Ack adopts a later server timestamp; order must hold afterwards.
	_, ok := s.ReconcileAck("t1", "a", StatusSent, 25)
	require.True(t, ok)
	requireOrdered(t, s.Messages(key))

	_, err := s.MergePage(key, []Message{
		{ID: "z", Conversation: key, SenderID: "u", Timestamp: 5},
		{ID: "y", Conversation: key, SenderID: "u", Timestamp: 15},
	}, true)
	require.NoError(t, err)
	requireOrdered(t, s.Messages(key))
}

func TestMergePageDedup(t *testing.T) {
	t.Parallel()

	s := New()
	key := ChannelKey("general")

	for _, m := range []Message{
		{ID: "m10", Conversation: key, SenderID: "u", Timestamp: 10},
		{ID: "m20", Conversation: key, SenderID: "u", Timestamp: 20},
		{ID: "m30", Conversation: key, SenderID: "u", Timestamp: 30},
	} {
		require.NoError(t, s.Ingest(m))
	}

	added, err := s.MergePage(key, []Message{
		{ID: "m5", Conversation: key, SenderID: "u", Timestamp: 5},
		{ID: "m10", Conversation: key, SenderID: "u", Timestamp: 10},
		{ID: "m15", Conversation: key, SenderID: "u", Timestamp: 15},
	}, true)
	require.NoError(t, err)
	require.Equal(t, 2, added)

	msgs := s.Messages(key)
	timestamps := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		timestamps = append(timestamps, m.Timestamp)
	}
	require.Equal(t, []int64{5, 10, 15, 20, 30}, timestamps)
	require.True(t, s.HasMore(key))

	// A short page flips hasMore off.
	added, err = s.MergePage(key, []Message{
		{ID: "m1", Conversation: key, SenderID: "u", Timestamp: 1},
	}, false)
	require.NoError(t, err)
	require.Equal(t, 1, added)
	require.False(t, s.HasMore(key))
}
