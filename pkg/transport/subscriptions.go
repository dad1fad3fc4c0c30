package transport

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// subscription is the record kept for one topic. A topic can hold several
// ids after health-driven resubscription; all of them are released by
// Unsubscribe.
type subscription struct {
	topic        string
	ids          []string
	handler      MessageHandler
	lastReceived time.Time
}

// subscriptionTable maps topics to their records. Not safe for concurrent
// use; the Client guards it with its mutex.
type subscriptionTable struct {
	byTopic map[string]*subscription
	newID   func() string
}

// subscribeRequest is a SUBSCRIBE to be sent.
type subscribeRequest struct {
	id    string
	topic string
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{
		byTopic: make(map[string]*subscription),
		newID:   newSubscriptionID,
	}
}

func newSubscriptionID() string {
	return "sub-" + uuid.NewString()
}

// add registers topic. It returns the request to send and true for a new
// topic; for a known topic only the handler is replaced.
func (t *subscriptionTable) add(topic string, handler MessageHandler, now time.Time) (subscribeRequest, bool) {
	if sub, ok := t.byTopic[topic]; ok {
		sub.handler = handler
		return subscribeRequest{}, false
	}
	id := t.newID()
	t.byTopic[topic] = &subscription{
		topic:        topic,
		ids:          []string{id},
		handler:      handler,
		lastReceived: now,
	}
	return subscribeRequest{id: id, topic: topic}, true
}

// remove drops topic and returns every id it held.
func (t *subscriptionTable) remove(topic string) []string {
	sub, ok := t.byTopic[topic]
	if !ok {
		return nil
	}
	delete(t.byTopic, topic)
	return sub.ids
}

// removeAll drops every topic and returns all ids.
func (t *subscriptionTable) removeAll() []string {
	var ids []string
	for topic, sub := range t.byTopic {
		ids = append(ids, sub.ids...)
		delete(t.byTopic, topic)
	}
	sort.Strings(ids)
	return ids
}

// resubscribe appends a fresh id to topic and restarts its silence clock.
func (t *subscriptionTable) resubscribe(topic string, now time.Time) (subscribeRequest, bool) {
	sub, ok := t.byTopic[topic]
	if !ok {
		return subscribeRequest{}, false
	}
	id := t.newID()
	sub.ids = append(sub.ids, id)
	sub.lastReceived = now
	return subscribeRequest{id: id, topic: topic}, true
}

// beginSession replaces every topic's ids with one fresh id for a new
// session and seeds liveness. Ids from a previous session mean nothing to
// the new one.
func (t *subscriptionTable) beginSession(now time.Time) []subscribeRequest {
	reqs := make([]subscribeRequest, 0, len(t.byTopic))
	for _, topic := range t.topics() {
		sub := t.byTopic[topic]
		id := t.newID()
		sub.ids = []string{id}
		sub.lastReceived = now
		reqs = append(reqs, subscribeRequest{id: id, topic: topic})
	}
	return reqs
}

// touch records a receipt on topic and returns its handler.
func (t *subscriptionTable) touch(topic string, now time.Time) (MessageHandler, bool) {
	sub, ok := t.byTopic[topic]
	if !ok {
		return nil, false
	}
	sub.lastReceived = now
	return sub.handler, true
}

// stale returns topics silent for longer than window, sorted.
func (t *subscriptionTable) stale(now time.Time, window time.Duration) []string {
	var out []string
	for topic, sub := range t.byTopic {
		if now.Sub(sub.lastReceived) > window {
			out = append(out, topic)
		}
	}
	sort.Strings(out)
	return out
}

func (t *subscriptionTable) ids(topic string) []string {
	sub, ok := t.byTopic[topic]
	if !ok {
		return nil
	}
	return append([]string(nil), sub.ids...)
}

func (t *subscriptionTable) topics() []string {
	out := make([]string, 0, len(t.byTopic))
	for topic := range t.byTopic {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

func (t *subscriptionTable) len() int {
	return len(t.byTopic)
}
