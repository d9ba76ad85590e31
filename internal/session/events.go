package session

import (
	"bytes"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var jsonit = jsoniter.ConfigCompatibleWithStandardLibrary

// EventHistory is an ordered mapping from event name to an append-only list
// of unix-millisecond timestamps, constructed fresh per session. The
// "commands" list always exists, even when empty.
type EventHistory struct {
	mu     sync.Mutex
	order  []string
	events map[string][]int64
}

// NewEventHistory creates a history seeded with an empty commands list.
func NewEventHistory() *EventHistory {
	h := &EventHistory{events: make(map[string][]int64)}
	h.ensureLocked("commands")
	return h
}

func (h *EventHistory) ensureLocked(name string) {
	if _, ok := h.events[name]; !ok {
		h.order = append(h.order, name)
		h.events[name] = []int64{}
	}
}

// Log appends a timestamp for the named event, creating the list on first
// use.
func (h *EventHistory) Log(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensureLocked(name)
	h.events[name] = append(h.events[name], time.Now().UnixMilli())
}

// Timestamps returns a copy of the named event's timestamp list.
func (h *EventHistory) Timestamps(name string) []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	ts := h.events[name]
	out := make([]int64, len(ts))
	copy(out, ts)
	return out
}

// MarshalJSON renders the history as a JSON object whose keys appear in
// first-logged order.
func (h *EventHistory) MarshalJSON() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range h.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := jsonit.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := jsonit.Marshal(h.events[name])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
