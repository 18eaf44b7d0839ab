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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanSink collects fanned-out events; fail makes every write error.
type chanSink struct {
	mu     sync.Mutex
	events [][]byte
	fail   bool
}

func (s *chanSink) WriteEvent(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink gone")
	}
	s.events = append(s.events, data)
	return nil
}

func (s *chanSink) collected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = string(e)
	}
	return out
}

func (s *chanSink) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

type hubPeer struct {
	events chan []byte
	sink   *chanSink
}

func newHubPeer(h *Hub, canvasID string) *hubPeer {
	p := &hubPeer{events: make(chan []byte, 16), sink: &chanSink{}}
	h.Register(Registration{CanvasID: canvasID, Events: p.events, Sink: p.sink})
	return p
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	go h.Run()
	t.Cleanup(h.Close)
	return h
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func TestFanOutExcludesSender(t *testing.T) {
	h := startHub(t)
	a := newHubPeer(h, "cX")
	b := newHubPeer(h, "cX")

	a.events <- []byte("e1")
	waitFor(t, func() bool { return len(b.sink.collected()) == 1 }, "peer should receive the event")
	assert.Equal(t, []string{"e1"}, b.sink.collected())
	assert.Empty(t, a.sink.collected(), "sender must not receive its own event")
}

func TestFanOutIsolatesCanvases(t *testing.T) {
	h := startHub(t)
	a := newHubPeer(h, "cX")
	b := newHubPeer(h, "cX")
	other := newHubPeer(h, "cY")

	a.events <- []byte("e1")
	waitFor(t, func() bool { return len(b.sink.collected()) == 1 }, "same-canvas peer should receive")
	assert.Empty(t, other.sink.collected(), "other canvases must not see the event")
}

func TestPerSourceOrdering(t *testing.T) {
	h := startHub(t)
	a := newHubPeer(h, "cX")
	b := newHubPeer(h, "cX")

	for _, e := range []string{"e1", "e2", "e3", "e4"} {
		a.events <- []byte(e)
	}
	waitFor(t, func() bool { return len(b.sink.collected()) == 4 }, "all events should arrive")
	assert.Equal(t, []string{"e1", "e2", "e3", "e4"}, b.sink.collected())
}

func TestFailingSinkIsEvicted(t *testing.T) {
	h := startHub(t)
	a := newHubPeer(h, "cX")
	b := newHubPeer(h, "cX")
	c := newHubPeer(h, "cX")

	b.sink.setFail(true)
	a.events <- []byte("e1")
	waitFor(t, func() bool { return len(c.sink.collected()) == 1 }, "healthy peer unaffected")

	// b was evicted on the failed write; later events no longer reach it.
	b.sink.setFail(false)
	a.events <- []byte("e2")
	waitFor(t, func() bool { return len(c.sink.collected()) == 2 }, "healthy peer keeps receiving")
	assert.Empty(t, b.sink.collected(), "evicted peer must not receive further events")
}

func TestClosedEventsWithdrawsConnection(t *testing.T) {
	h := startHub(t)
	a := newHubPeer(h, "cX")
	b := newHubPeer(h, "cX")
	c := newHubPeer(h, "cX")

	close(b.events)
	time.Sleep(50 * time.Millisecond) // let the withdrawal land

	a.events <- []byte("e1")
	waitFor(t, func() bool { return len(c.sink.collected()) == 1 }, "remaining peer still receives")
	assert.Empty(t, b.sink.collected(), "withdrawn peer must not receive")
}

func TestSingleClientNoReceivers(t *testing.T) {
	h := startHub(t)
	a := newHubPeer(h, "cX")

	a.events <- []byte("e1")
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, a.sink.collected())
}
