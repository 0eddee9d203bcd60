package store

import "sort"

// timeline is the ordered, deduplicated message sequence for one
// conversation. It is only touched while holding the owning Store's lock.
type timeline struct {
	msgs    []Message
	hasMore bool
}

func newTimeline() *timeline {
	// hasMore starts true: until a history fetch proves otherwise we assume
	// older messages exist on the server.
	return &timeline{hasMore: true}
}

func (t *timeline) resort() {
	sort.SliceStable(t.msgs, func(i, j int) bool {
		return t.msgs[i].Timestamp < t.msgs[j].Timestamp
	})
}

func (t *timeline) insert(msg Message) {
	t.msgs = append(t.msgs, msg)
	t.resort()
}

func (t *timeline) indexByID(id string) int {
	if id == "" {
		return -1
	}
	for i := range t.msgs {
		if t.msgs[i].ID == id {
			return i
		}
	}
	return -1
}

func (t *timeline) indexByLocalID(localID string) int {
	if localID == "" {
		return -1
	}
	for i := range t.msgs {
		if t.msgs[i].LocalID == localID {
			return i
		}
	}
	return -1
}

// ingest applies the three-way dedup check: same server id rewrites the
// existing record, a matching correlation token reconciles the local echo
// in place, anything else is appended. A locally sent message must never
// appear twice no matter whether its confirmation arrives as an ack, a
// push echo, or both.
func (t *timeline) ingest(msg Message) {
	if i := t.indexByID(msg.ID); i >= 0 {
		existing := &t.msgs[i]
		existing.Content = msg.Content
		if msg.Status != "" {
			existing.Status = msg.Status
		}
		if msg.Timestamp > 0 {
			existing.Timestamp = msg.Timestamp
		}
		t.resort()
		return
	}

	if i := t.indexByLocalID(msg.LocalID); i >= 0 {
		existing := &t.msgs[i]
		existing.ID = msg.ID
		if msg.Status != "" {
			existing.Status = msg.Status
		} else if existing.Status == StatusPending {
			existing.Status = StatusSent
		}
		if msg.Timestamp > 0 {
			existing.Timestamp = msg.Timestamp
		}
		t.resort()
		return
	}

	if msg.Status == "" {
		msg.Status = StatusSent
	}
	t.insert(msg)
}

// mergePage folds an older history page into the timeline, skipping
// records whose id is already present (for example because real-time
// ingestion raced the fetch). Returns the number of net-new records.
func (t *timeline) mergePage(page []Message) int {
	added := 0
	for _, msg := range page {
		if msg.ID != "" && t.indexByID(msg.ID) >= 0 {
			continue
		}
		if msg.Status == "" {
			msg.Status = StatusSent
		}
		t.msgs = append(t.msgs, msg)
		added++
	}
	if added > 0 {
		t.resort()
	}
	return added
}

func (t *timeline) snapshot() []Message {
	out := make([]Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}
