// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package events is an in-process publish/subscribe bus. Classification,
// correction and backend health changes are published here so persistence
// and metrics stay off the request path.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Topic names a stream of events.
type Topic string

const (
	TopicPrediction    Topic = "prediction"
	TopicCorrection    Topic = "correction"
	TopicTraining      Topic = "training"
	TopicBackendStatus Topic = "backend_status"
)

// DefaultQueueSize bounds the asynchronous queue.
const DefaultQueueSize = 1000

// Event is one published message.
type Event struct {
	Topic   Topic
	Time    time.Time
	Payload any
}

// Subscription is a handle for a registered subscriber.
type Subscription struct {
	ID       string
	Topic    Topic
	Callback func(*Event)
	Filter   func(*Event) bool
}

// Bus distributes events to subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Topic][]*Subscription
	closed      bool

	queue   chan *Event
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
	handled atomic.Int64
}

// New creates a bus with a queue of size entries and starts its dispatcher.
func New(size int) *Bus {
	if size <= 0 {
		size = DefaultQueueSize
	}
	b := &Bus{
		subscribers: make(map[Topic][]*Subscription),
		queue:       make(chan *Event, size),
		done:        make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Subscribe registers callback for topic.
func (b *Bus) Subscribe(topic Topic, callback func(*Event)) *Subscription {
	return b.SubscribeWithFilter(topic, callback, nil)
}

// SubscribeWithFilter registers callback for events of topic accepted by filter.
func (b *Bus) SubscribeWithFilter(topic Topic, callback func(*Event), filter func(*Event) bool) *Subscription {
	sub := &Subscription{
		ID:       uuid.NewString(),
		Topic:    topic,
		Callback: callback,
		Filter:   filter,
	}
	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub. It is a no-op for unknown subscriptions.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.Topic]
	for i, s := range subs {
		if s.ID == sub.ID {
			b.subscribers[sub.Topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every subscriber on the calling goroutine.
// Subscriber panics are recovered and logged.
func (b *Bus) Publish(ev *Event) {
	if ev == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	subs := append([]*Subscription(nil), b.subscribers[ev.Topic]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.Filter != nil && !sub.Filter(ev) {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("events: subscriber %s panicked on %s: %v", sub.ID, ev.Topic, r)
				}
			}()
			sub.Callback(ev)
		}()
	}
	b.handled.Add(1)
}

// PublishAsync queues ev for the dispatcher. When the queue is full or the
// bus is shut down the event is dropped and counted.
func (b *Bus) PublishAsync(topic Topic, payload any) bool {
	ev := &Event{Topic: topic, Time: time.Now(), Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.dropped.Add(1)
		return false
	}
	select {
	case b.queue <- ev:
		return true
	default:
		b.dropped.Add(1)
		log.Warnf("events: queue full, dropping %s event", topic)
		return false
	}
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for ev := range b.queue {
		b.Publish(ev)
	}
}

// Dropped reports how many asynchronous events were discarded.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Handled reports how many events reached the subscriber loop.
func (b *Bus) Handled() int64 {
	return b.handled.Load()
}

// Pending reports the number of queued events.
func (b *Bus) Pending() int {
	return len(b.queue)
}

// Shutdown stops accepting events and waits up to timeout for queued ones to
// be delivered. It returns false when the timeout elapsed first.
func (b *Bus) Shutdown(timeout time.Duration) bool {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.queue)
		b.mu.Unlock()
	})

	if timeout <= 0 {
		<-b.done
		return true
	}
	select {
	case <-b.done:
		return true
	case <-time.After(timeout):
		log.Warnf("events: shutdown timed out with %d events pending", len(b.queue))
		return false
	}
}
