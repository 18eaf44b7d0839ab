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

package canvas

import (
	"github.com/fawa-io/drawer/pkg/fwlog"
)

// Sink is the outbound half of a connection. Implementations must be
// safe for use by both the hub and the connection's own handler.
type Sink interface {
	WriteEvent(data []byte) error
}

// Registration enrolls a connection with the hub: the hub drains Events
// and fans each element out to every other sink on the same canvas.
// Closing Events withdraws the connection.
type Registration struct {
	CanvasID string
	Events   <-chan []byte
	Sink     Sink
}

type sourcedEvent struct {
	from int64
	data []byte // nil marks the source's event channel as closed
}

// Hub is the singleton fan-out task. It exclusively owns the connection
// tables; handlers talk to it only through Register.
type Hub struct {
	register chan Registration
	events   chan sourcedEvent
	done     chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		register: make(chan Registration, 16),
		events:   make(chan sourcedEvent, 256),
		done:     make(chan struct{}),
	}
}

// Register enrolls a connection. Must not be called after Close.
func (h *Hub) Register(r Registration) {
	h.register <- r
}

// Close ends the hub's run loop.
func (h *Hub) Close() {
	close(h.register)
}

// Run owns the canvas tables and loops until the registration channel
// is closed. Peer failures never end the loop; failing sinks are
// evicted and fan-out continues.
func (h *Hub) Run() {
	defer close(h.done)

	// canvas_id → connection_id → sink, plus the reverse id lookup.
	canvasTable := make(map[string]map[int64]Sink)
	connCanvas := make(map[int64]string)
	var nextID int64

	remove := func(id int64) {
		canvasID, ok := connCanvas[id]
		if !ok {
			return
		}
		delete(connCanvas, id)
		if sinks, ok := canvasTable[canvasID]; ok {
			delete(sinks, id)
			if len(sinks) == 0 {
				delete(canvasTable, canvasID)
			}
		}
	}

	for {
		select {
		case reg, ok := <-h.register:
			if !ok {
				return
			}
			id := nextID
			nextID++
			if canvasTable[reg.CanvasID] == nil {
				canvasTable[reg.CanvasID] = make(map[int64]Sink)
			}
			canvasTable[reg.CanvasID][id] = reg.Sink
			connCanvas[id] = reg.CanvasID
			fwlog.Debugf("hub: registered connection %d on canvas %s", id, reg.CanvasID)

			// Pump the connection's events into the shared channel,
			// tagged with its id. One pump per source keeps
			// per-source ordering.
			go func(events <-chan []byte, id int64) {
				for data := range events {
					select {
					case h.events <- sourcedEvent{from: id, data: data}:
					case <-h.done:
						return
					}
				}
				select {
				case h.events <- sourcedEvent{from: id}:
				case <-h.done:
				}
			}(reg.Events, id)

		case ev := <-h.events:
			if ev.data == nil {
				fwlog.Debugf("hub: connection %d withdrew", ev.from)
				remove(ev.from)
				continue
			}
			canvasID, ok := connCanvas[ev.from]
			if !ok {
				// Source already evicted; late event, drop.
				continue
			}
			var failed []int64
			for id, sink := range canvasTable[canvasID] {
				if id == ev.from {
					continue
				}
				if err := sink.WriteEvent(ev.data); err != nil {
					fwlog.Infof("hub: connection %d write failed, evicting: %v", id, err)
					failed = append(failed, id)
				}
			}
			for _, id := range failed {
				remove(id)
			}
		}
	}
}
