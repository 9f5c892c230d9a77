// Package events fans gateway events out to in-process subscribers (the ops
// websocket feed) and, when configured, to a durable Pub/Sub topic.
//
// Two families of events flow through here: domain events drained from the
// clearing-adapter aggregate after each mutation, and flow lifecycle events
// published by the flow engine.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/clearfab/gateway/internal/clearing"
)

// Emitter is the interface components publish through. Both the in-memory
// Bus and the PubSubBus satisfy it.
type Emitter interface {
	Emit(eventType, subject, tenantID string, data map[string]interface{})
}

// Event is the CloudEvents 1.0 envelope used for every gateway event.
type Event struct {
	SpecVersion string                 `json:"specversion"`
	Type        string                 `json:"type"`
	Source      string                 `json:"source"`
	ID          string                 `json:"id"`
	Time        time.Time              `json:"time"`
	Subject     string                 `json:"subject,omitempty"`
	TenantID    string                 `json:"tenantid,omitempty"`
	Data        map[string]interface{} `json:"data"`
}

const eventSource = "/gateway/flows"

// NewEvent builds a CloudEvents 1.0 compliant envelope.
func NewEvent(eventType, subject, tenantID string, data map[string]interface{}) *Event {
	return &Event{
		SpecVersion: "1.0",
		Type:        eventType,
		Source:      eventSource,
		ID:          fmt.Sprintf("ce-%d", time.Now().UnixNano()),
		Time:        time.Now(),
		Subject:     subject,
		TenantID:    tenantID,
		Data:        data,
	}
}

// JSON serializes the event.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Bus is the in-process pub/sub bus. Delivery is non-blocking; a subscriber
// that falls behind loses events rather than stalling the pipeline.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan *Event // eventType -> channels
	allSubs     []chan *Event
	logger      *log.Logger
	bufferSize  int
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string][]chan *Event),
		logger:      log.New(log.Writer(), "[EVENTS] ", log.LstdFlags),
		bufferSize:  100,
	}
}

// Subscribe returns a channel receiving events of the given types, or all
// events when none are named.
func (b *Bus) Subscribe(eventTypes ...string) chan *Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *Event, b.bufferSize)
	if len(eventTypes) == 0 {
		b.allSubs = append(b.allSubs, ch)
	} else {
		for _, et := range eventTypes {
			b.subscribers[et] = append(b.subscribers[et], ch)
		}
	}
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (b *Bus) Unsubscribe(ch chan *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for et, subs := range b.subscribers {
		filtered := make([]chan *Event, 0, len(subs))
		for _, s := range subs {
			if s != ch {
				filtered = append(filtered, s)
			}
		}
		b.subscribers[et] = filtered
	}
	filtered := make([]chan *Event, 0, len(b.allSubs))
	for _, s := range b.allSubs {
		if s != ch {
			filtered = append(filtered, s)
		}
	}
	b.allSubs = filtered
	close(ch)
}

// Publish delivers to all matching subscribers without blocking.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
		}
	}
	for _, ch := range b.allSubs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Emit builds an envelope and publishes it.
func (b *Bus) Emit(eventType, subject, tenantID string, data map[string]interface{}) {
	b.Publish(NewEvent(eventType, subject, tenantID, data))
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.allSubs)
	for _, subs := range b.subscribers {
		count += len(subs)
	}
	return count
}

// EmitDomainEvents publishes a batch of drained aggregate events. The caller
// drains the aggregate right after each mutation and hands the batch here;
// drained events are never replayed.
func EmitDomainEvents(em Emitter, tenantID string, drained []clearing.DomainEvent) {
	for _, ev := range drained {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		var data map[string]interface{}
		if err := json.Unmarshal(payload, &data); err != nil {
			continue
		}
		em.Emit(ev.EventType(), ev.Adapter(), tenantID, data)
	}
}
