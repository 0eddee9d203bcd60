package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConversationKey(t *testing.T) {
	t.Parallel()

	require.True(t, ChannelKey("c1").Valid())
	require.True(t, DirectKey("u1").Valid())
	require.False(t, ConversationKey{}.Valid())
	require.False(t, ConversationKey{ChannelID: "c1", PeerID: "u1"}.Valid())
	require.Equal(t, "channel:c1", ChannelKey("c1").String())
	require.Equal(t, "peer:u1", DirectKey("u1").String())
}

func TestInsertPendingValidation(t *testing.T) {
	t.Parallel()

	s := New()
	require.Error(t, s.InsertPending(Message{Conversation: ConversationKey{}, LocalID: "t"}))
	require.Error(t, s.InsertPending(Message{Conversation: ChannelKey("c")}))

	// Status and ID are forced regardless of what the caller passes.
	require.NoError(t, s.InsertPending(Message{
		Conversation: ChannelKey("c"), LocalID: "t", ID: "bogus", Status: StatusRead,
	}))
	msgs := s.Messages(ChannelKey("c"))
	require.Len(t, msgs, 1)
	require.Empty(t, msgs[0].ID)
	require.Equal(t, StatusPending, msgs[0].Status)
}

func TestReconcileAckSearchesAllConversations(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.InsertPending(Message{
		LocalID: "tok", Conversation: DirectKey("bob"), SenderID: "me", Timestamp: 10,
	}))
	// Unrelated conversations must not confuse the search.
	require.NoError(t, s.Ingest(Message{ID: "x", Conversation: ChannelKey("general"), SenderID: "u", Timestamp: 5}))

	conv, ok := s.ReconcileAck("tok", "srv-1", StatusDelivered, 12)
	require.True(t, ok)
	require.Equal(t, DirectKey("bob"), conv)

	msgs := s.Messages(DirectKey("bob"))
	require.Len(t, msgs, 1)
	require.Equal(t, "srv-1", msgs[0].ID)
	require.Equal(t, StatusDelivered, msgs[0].Status)
	require.Equal(t, int64(12), msgs[0].Timestamp)
}

func TestReconcileAckEvictedNoop(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.Ingest(Message{ID: "m", Conversation: ChannelKey("c"), SenderID: "u", Timestamp: 1}))

	_, ok := s.ReconcileAck("never-seen", "srv", StatusSent, 0)
	require.False(t, ok)
	_, ok = s.ReconcileAck("", "srv", StatusSent, 0)
	require.False(t, ok)
	require.Len(t, s.Messages(ChannelKey("c")), 1)
}

func TestReconcileFailure(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.InsertPending(Message{
		LocalID: "tok", Conversation: ChannelKey("c"), SenderID: "me", Timestamp: 10,
	}))

	conv, ok := s.ReconcileFailure("tok", "rate limited")
	require.True(t, ok)
	require.Equal(t, ChannelKey("c"), conv)
	_, ok = s.ReconcileFailure("tok-other", "x")
	require.False(t, ok)

	msgs := s.Messages(ChannelKey("c"))
	require.Equal(t, StatusFailed, msgs[0].Status)
	require.Equal(t, "rate limited", msgs[0].Error)
	require.Empty(t, msgs[0].ID)
}

func TestFailStalePending(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.InsertPending(Message{LocalID: "old", Conversation: ChannelKey("c"), SenderID: "me", Timestamp: 10}))
	require.NoError(t, s.InsertPending(Message{LocalID: "new", Conversation: ChannelKey("c"), SenderID: "me", Timestamp: 100}))
	require.NoError(t, s.Ingest(Message{ID: "m", Conversation: ChannelKey("c"), SenderID: "u", Timestamp: 5}))

	failed := s.FailStalePending(50, "send timed out")
	require.Len(t, failed, 1)
	require.Equal(t, "old", failed[0].LocalID)

	msgs := s.Messages(ChannelKey("c"))
	byLocal := map[string]Message{}
	for _, m := range msgs {
		byLocal[m.LocalID] = m
	}
	require.Equal(t, StatusFailed, byLocal["old"].Status)
	require.Equal(t, StatusPending, byLocal["new"].Status)
}

func TestTypingSet(t *testing.T) {
	t.Parallel()

	s := New()
	key := ChannelKey("c")

	s.TypingStart(key, "u1", "alice", 100)
	s.TypingStart(key, "u2", "bob", 110)
	// A start for an already-present user refreshes, not duplicates.
	s.TypingStart(key, "u1", "alice", 120)

	typing := s.Typing(key)
	require.Len(t, typing, 2)
	require.Equal(t, int64(120), typing[0].LastSignalAt)

	s.TypingStop(key, "u2")
	require.Len(t, s.Typing(key), 1)

	s.ExpireTyping(120)
	require.Empty(t, s.Typing(key))

	s.TypingStart(key, "u3", "carol", 200)
	s.ClearTyping()
	require.Empty(t, s.Typing(key))
}

func TestPresence(t *testing.T) {
	t.Parallel()

	s := New()
	s.SetPresence("u1", "online")
	s.SetPresence("u1", "away")
	s.SetPresence("", "online")

	p := s.Presence()
	require.Equal(t, map[string]string{"u1": "away"}, p)

	// The returned map is a copy.
	p["u2"] = "online"
	require.NotContains(t, s.Presence(), "u2")
}

func TestConversationsListing(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.Ingest(Message{ID: "a", Conversation: DirectKey("bob"), SenderID: "u", Timestamp: 1}))
	require.NoError(t, s.Ingest(Message{ID: "b", Conversation: ChannelKey("general"), SenderID: "u", Timestamp: 1}))

	keys := s.Conversations()
	require.Equal(t, []ConversationKey{ChannelKey("general"), DirectKey("bob")}, keys)
}
