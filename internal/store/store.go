// Package store owns the client-side conversation state: one ordered,
// deduplicated message timeline per conversation, plus the ephemeral
// typing and presence sets. It knows nothing about the network; the
// pipelines in internal/chat drive it exclusively through its exported
// operations.
package store

import (
	"fmt"
	"sort"
	"sync"
)

// TypingEntry is one member of a conversation's "currently typing" set.
type TypingEntry struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	LastSignalAt int64  `json:"lastSignalAt"`
}

// Store is the single source of truth for conversation state. All methods
// are safe for concurrent use; reads return copies.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*timeline
	typing        map[string]map[string]TypingEntry
	presence      map[string]string
	keys          map[string]ConversationKey
}

// New creates an empty store.
func New() *Store {
	return &Store{
		conversations: make(map[string]*timeline),
		typing:        make(map[string]map[string]TypingEntry),
		presence:      make(map[string]string),
		keys:          make(map[string]ConversationKey),
	}
}

func (s *Store) conversation(key ConversationKey) *timeline {
	id := key.String()
	t, ok := s.conversations[id]
	if !ok {
		t = newTimeline()
		s.conversations[id] = t
		s.keys[id] = key
	}
	return t
}

// InsertPending inserts an optimistic local record. This is phase one of
// the two-phase send: it is synchronous, local, and always succeeds for a
// well-formed message, so the sender sees their own message immediately.
func (s *Store) InsertPending(msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if msg.LocalID == "" {
		return fmt.Errorf("pending message needs a correlation token")
	}
	msg.ID = ""
	msg.Status = StatusPending

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation(msg.Conversation).insert(msg)
	return nil
}

// Ingest merges an inbound, already-decrypted message into its
// conversation with duplicate suppression against both server ids and
// local correlation tokens.
func (s *Store) Ingest(msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if msg.ID == "" {
		return fmt.Errorf("inbound message needs a server id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation(msg.Conversation).ingest(msg)
	return nil
}

// ReconcileAck rewrites the pending record matching the correlation token:
// it assigns the server id and flips the status. The search spans every
// conversation because no server id existed at insertion time. A token
// with no matching record is a no-op, not an error. On success it returns
// the conversation the record lives in.
func (s *Store) ReconcileAck(localID, serverID string, status Status, timestamp int64) (ConversationKey, bool) {
	if localID == "" {
		return ConversationKey{}, false
	}
	if status == "" {
		status = StatusSent
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.conversations {
		i := t.indexByLocalID(localID)
		if i < 0 {
			continue
		}
		msg := &t.msgs[i]
		msg.ID = serverID
		msg.Status = status
		msg.Error = ""
		if timestamp > 0 {
			msg.Timestamp = timestamp
		}
		t.resort()
		return s.keys[id], true
	}
	return ConversationKey{}, false
}

// ReconcileFailure marks the pending record matching the correlation token
// as failed. Retrying is an explicit caller decision, never automatic.
func (s *Store) ReconcileFailure(localID, reason string) (ConversationKey, bool) {
	if localID == "" {
		return ConversationKey{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.conversations {
		i := t.indexByLocalID(localID)
		if i < 0 {
			continue
		}
		msg := &t.msgs[i]
		msg.Status = StatusFailed
		msg.Error = reason
		return s.keys[id], true
	}
	return ConversationKey{}, false
}

// MergePage merges an older history page into a conversation and records
// whether the server still has older messages. The caller derives hasMore
// from the raw page size, since records dropped before the merge (failed
// decrypts) must not shorten the page's meaning. Returns the number of
// net-new records.
func (s *Store) MergePage(key ConversationKey, page []Message, hasMore bool) (int, error) {
	if !key.Valid() {
		return 0, fmt.Errorf("invalid conversation key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.conversation(key)
	added := t.mergePage(page)
	t.hasMore = hasMore
	return added, nil
}

// FailStalePending marks every pending record inserted at or before the
// cutoff as failed and returns snapshots of the affected records.
func (s *Store) FailStalePending(cutoff int64, reason string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failed []Message
	for _, t := range s.conversations {
		for i := range t.msgs {
			msg := &t.msgs[i]
			if msg.Status != StatusPending || msg.Timestamp > cutoff {
				continue
			}
			msg.Status = StatusFailed
			msg.Error = reason
			failed = append(failed, *msg)
		}
	}
	return failed
}

// Messages returns a copy of the conversation's ordered sequence.
func (s *Store) Messages(key ConversationKey) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.conversations[key.String()]
	if !ok {
		return nil
	}
	return t.snapshot()
}

// HasMore reports whether older history is believed to exist for the
// conversation.
func (s *Store) HasMore(key ConversationKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.conversations[key.String()]
	if !ok {
		return true
	}
	return t.hasMore
}

// Conversations lists every conversation the store has seen, in stable
// order.
func (s *Store) Conversations() []ConversationKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ConversationKey, 0, len(s.keys))
	for _, key := range s.keys {
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// TypingStart adds or refreshes a member of the conversation's typing set.
func (s *Store) TypingStart(key ConversationKey, userID, username string, at int64) {
	if !key.Valid() || userID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := key.String()
	set, ok := s.typing[id]
	if !ok {
		set = make(map[string]TypingEntry)
		s.typing[id] = set
	}
	set[userID] = TypingEntry{UserID: userID, Username: username, LastSignalAt: at}
}

// TypingStop removes a member from the conversation's typing set.
func (s *Store) TypingStop(key ConversationKey, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.typing[key.String()]; ok {
		delete(set, userID)
	}
}

// Typing returns the conversation's typing set sorted by user id.
func (s *Store) Typing(key ConversationKey) []TypingEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.typing[key.String()]
	if !ok {
		return nil
	}
	out := make([]TypingEntry, 0, len(set))
	for _, entry := range set {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// ExpireTyping drops typing entries whose last signal is at or before the
// cutoff. Typing state is advisory; stale entries just disappear.
func (s *Store) ExpireTyping(cutoff int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, set := range s.typing {
		for userID, entry := range set {
			if entry.LastSignalAt <= cutoff {
				delete(set, userID)
			}
		}
	}
}

// ClearTyping drops all typing state. Called on disconnect; the set is
// rebuilt from the event stream after reconnect.
func (s *Store) ClearTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing = make(map[string]map[string]TypingEntry)
}

// SetPresence records a user's presence status.
func (s *Store) SetPresence(userID, status string) {
	if userID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence[userID] = status
}

// Presence returns a copy of the user presence map.
func (s *Store) Presence() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.presence))
	for k, v := range s.presence {
		out[k] = v
	}
	return out
}
