// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bus carries administrative canvas events from the HTTP control
// plane to live streaming connections. Delivery is best-effort: a slow
// subscriber misses intermediate values rather than blocking publishers,
// and may resubscribe at any time. Producers publish only after the
// corresponding database mutation has committed, so a subscriber that
// observes an event can rely on the store reflecting it.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/fawa-io/drawer/pkg/fwlog"
)

// RightChanged reports a right grant, update or revocation. A nil Right
// means the right was revoked.
type RightChanged struct {
	CanvasID string
	UserID   string
	Right    *string
}

// ModeratedChanged reports a flip of the canvas moderation flag.
type ModeratedChanged struct {
	CanvasID  string
	Moderated bool
}

// Event is either RightChanged or ModeratedChanged, copied by value to
// every subscriber.
type Event any

// DefaultCapacity is the per-subscriber buffer size.
const DefaultCapacity = 128

// Bus is the process-wide broadcast channel.
type Bus struct {
	mu       sync.Mutex
	subs     map[int]*Subscription
	nextID   int
	capacity int
}

func New() *Bus {
	return &Bus{subs: make(map[int]*Subscription), capacity: DefaultCapacity}
}

// Subscribe registers a new subscriber. The caller must drain C() or
// accept lagging, and must Close() when done.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscription{
		bus: b,
		id:  b.nextID,
		ch:  make(chan Event, b.capacity),
	}
	b.subs[sub.id] = sub
	b.nextID++
	return sub
}

// Publish copies the event to every subscriber. Full subscribers are
// skipped and marked lagged.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.lagged.Store(true)
			fwlog.Warnf("control bus: subscriber %d lagged, dropping event", sub.id)
		}
	}
}

// Subscription is one subscriber's view of the bus.
type Subscription struct {
	bus    *Bus
	id     int
	ch     chan Event
	lagged atomic.Bool
	closed sync.Once
}

// C is the subscriber's event channel.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Lagged reports and clears whether events were dropped since the last
// call. A lagged subscriber holding safety-critical state should
// re-query the store.
func (s *Subscription) Lagged() bool {
	return s.lagged.Swap(false)
}

// Close detaches the subscription from the bus.
func (s *Subscription) Close() {
	s.closed.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
	})
}
