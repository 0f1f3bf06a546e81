package batch

// Ring is a bounded append-only buffer of balance events. Once the limit is
// reached the oldest event is dropped. Not safe for concurrent use; the
// store guards it.
type Ring struct {
	events []BalanceEvent
	limit  int
}

// NewRing creates a ring holding at most limit events.
func NewRing(limit int) *Ring {
	if limit <= 0 {
		limit = 100
	}
	return &Ring{limit: limit}
}

// Push appends an event, evicting the oldest when full.
func (r *Ring) Push(e BalanceEvent) {
	if len(r.events) == r.limit {
		copy(r.events, r.events[1:])
		r.events[len(r.events)-1] = e
		return
	}
	r.events = append(r.events, e)
}

// Events returns a copy of the buffered events, oldest first.
func (r *Ring) Events() []BalanceEvent {
	out := make([]BalanceEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of buffered events.
func (r *Ring) Len() int { return len(r.events) }

// Limit returns the ring capacity.
func (r *Ring) Limit() int { return r.limit }
