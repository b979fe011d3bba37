package websocket

import (
	"maps"
	"sort"
	"strings"
	"sync"
)

// Subscription is a topic plus the fields identifying the stream.
type Subscription struct {
	Topic  string
	Fields map[string]string
}

// Key returns a stable identity for the subscription.
func (s Subscription) Key() string {
	keys := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(s.Topic)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(s.Fields[k])
	}
	return b.String()
}

// Subscriptions tracks the desired subscriptions so they can be replayed
// after a reconnect.
type Subscriptions struct {
	mu      sync.Mutex
	desired map[string]Subscription
}

// NewSubscriptions creates an empty subscription set.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{
		desired: make(map[string]Subscription),
	}
}

// Add registers a desired subscription.
// Returns true if the subscription was newly added.
func (s *Subscriptions) Add(sub Subscription) bool {
	key := sub.Key()
	s.mu.Lock()
	_, exists := s.desired[key]
	if !exists {
		sub.Fields = maps.Clone(sub.Fields)
		s.desired[key] = sub
	}
	s.mu.Unlock()
	return !exists
}

// Remove deletes a desired subscription and reports whether it existed.
func (s *Subscriptions) Remove(sub Subscription) bool {
	key := sub.Key()
	s.mu.Lock()
	_, ok := s.desired[key]
	delete(s.desired, key)
	s.mu.Unlock()
	return ok
}

// Desired fills dst with the desired subscriptions ordered by key and returns it.
func (s *Subscriptions) Desired(dst []Subscription) []Subscription {
	s.mu.Lock()
	if dst == nil {
		dst = make([]Subscription, 0, len(s.desired))
	} else {
		dst = dst[:0]
	}
	for _, sub := range s.desired {
		dst = append(dst, sub)
	}
	s.mu.Unlock()
	sort.Slice(dst, func(i, j int) bool { return dst[i].Key() < dst[j].Key() })
	return dst
}

// Count returns the number of desired subscriptions.
func (s *Subscriptions) Count() int {
	s.mu.Lock()
	count := len(s.desired)
	s.mu.Unlock()
	return count
}
