// Package fanout propagates backend-connection status changes to every
// session bound to the same backend connection key. It is a plain observer
// list per key rather than a global event bus, so the scope of each
// broadcast stays explicit.
package fanout

import (
	"log"
	"sync"

	"github.com/llmhub/termmux/internal/logutil"
)

// Status is a backend connection status as reported by the transport.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status is one of the defined constants.
func (s Status) IsValid() bool {
	switch s {
	case StatusConnecting, StatusConnected, StatusDisconnected, StatusError:
		return true
	default:
		return false
	}
}

// Listener receives a status change for a backend connection key.
type Listener func(key string, status Status, message string)

// LastStatus is the most recent status observed for a key. Last write wins.
type LastStatus struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Broadcaster fans a per-key status change out to all subscribed listeners.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Listener
	last   map[string]LastStatus
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[string]map[int]Listener),
		last: make(map[string]LastStatus),
	}
}

// Subscribe registers a listener for the given backend connection key and
// returns a function that removes it.
func (b *Broadcaster) Subscribe(key string, fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[key] == nil {
		b.subs[key] = make(map[int]Listener)
	}
	b.subs[key][id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		if m := b.subs[key]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(b.subs, key)
			}
		}
		b.mu.Unlock()
	}
}

// Broadcast delivers a status change to every listener subscribed to key.
// A broadcast for a key with no subscribers is a no-op beyond recording the
// status; this covers races where the last session for a key is torn down
// while a status frame is in flight.
func (b *Broadcaster) Broadcast(key string, status Status, message string) {
	if !status.IsValid() {
		log.Printf("[fanout] dropping invalid status %q for %s", status, logutil.SanitizeForLog(key))
		return
	}

	b.mu.Lock()
	b.last[key] = LastStatus{Status: status, Message: message}
	// Copy listeners under lock, fire outside it.
	var fns []Listener
	for _, fn := range b.subs[key] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(key, status, message)
	}
}

// Last returns the most recent status broadcast for key, if any.
func (b *Broadcaster) Last(key string) (LastStatus, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ls, ok := b.last[key]
	return ls, ok
}

// SubscriberCount returns the number of live listeners for key.
func (b *Broadcaster) SubscriberCount(key string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[key])
}
