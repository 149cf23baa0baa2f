package database

import "sync"

// Change announces that a committed transaction wrote to Collections
type Change struct {
	Seq         uint64
	Collections []Collection
}

// Subscription delivers changes on C. Notifications coalesce: a subscriber
// that has not drained C sees a single pending change, never a backlog, and
// publishing never blocks the writer.
type Subscription struct {
	C <-chan Change

	ch     chan Change
	filter map[Collection]bool
	hub    *hub
	once   sync.Once
}

// Close stops delivery and closes C
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s) })
}

func (s *Subscription) wants(cols []Collection) bool {
	if len(s.filter) == 0 {
		return true
	}
	for _, c := range cols {
		if s.filter[c] {
			return true
		}
	}
	return false
}

type hub struct {
	mu   sync.Mutex
	seq  uint64
	subs map[*Subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*Subscription]struct{})}
}

func (h *hub) subscribe(cols []Collection) *Subscription {
	ch := make(chan Change, 1)
	sub := &Subscription{C: ch, ch: ch, hub: h, filter: make(map[Collection]bool, len(cols))}
	for _, c := range cols {
		sub.filter[c] = true
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

func (h *hub) publish(cols []Collection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	change := Change{Seq: h.seq, Collections: cols}
	for sub := range h.subs {
		if !sub.wants(cols) {
			continue
		}
		select {
		case sub.ch <- change:
		default:
			// already has a pending change; the subscriber re-reads anyway
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}
