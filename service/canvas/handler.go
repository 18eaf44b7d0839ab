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
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fawa-io/drawer/pkg/auth"
	"github.com/fawa-io/drawer/pkg/bus"
	"github.com/fawa-io/drawer/pkg/fwlog"
	"github.com/fawa-io/drawer/pkg/store"
)

const accessDeniedMsg = "You do not have access to this canvas."

// rightRecheckInterval bounds how long a missed bus event can leave a
// connection with stale rights.
const rightRecheckInterval = time.Minute

// Store is the persistence surface a connection needs.
type Store interface {
	CanvasAccess(ctx context.Context, canvasID, userID string) (store.Access, error)
	ReadHistory(ctx context.Context, canvasID string) ([]string, error)
	AppendEvent(ctx context.Context, canvasID, blob string) error
}

// Handler runs one client connection: init, authorization, history
// replay, hub registration, then the read/bus loop. All of its state is
// owned by the connection's own goroutine.
type Handler struct {
	conn   Conn
	claims *auth.Claims
	store  Store
	hub    *Hub
	sub    *bus.Subscription

	canvasID  string
	right     string
	moderated bool

	recheckEvery time.Duration
}

func NewHandler(conn Conn, claims *auth.Claims, st Store, hub *Hub, sub *bus.Subscription) *Handler {
	return &Handler{
		conn:         conn,
		claims:       claims,
		store:        st,
		hub:          hub,
		sub:          sub,
		recheckEvery: rightRecheckInterval,
	}
}

// Run drives the connection to completion. Errors are connection-local
// and only logged.
func (h *Handler) Run(ctx context.Context) {
	if err := h.run(ctx); err != nil {
		fwlog.Errorf("canvas connection for %s: %v", h.claims.Email, err)
	}
}

func (h *Handler) run(ctx context.Context) error {
	defer func() { _ = h.conn.Close() }()
	defer h.sub.Close()

	// The first line of the first message is the init command; any
	// following lines are events the client sent ahead of admission.
	first, err := h.conn.ReadMessage()
	if err != nil {
		return err
	}
	lines := SplitFrame(first)
	if len(lines) == 0 {
		return errors.New("empty init message")
	}
	init, err := ParseEvent(lines[0])
	if err != nil {
		return err
	}
	h.canvasID = init.CanvasID
	prebuffered := lines[1:]

	access, err := h.store.CanvasAccess(ctx, h.canvasID, h.claims.ID)
	if errors.Is(err, store.ErrNoRight) {
		_ = h.conn.WriteEvent(errorFrame(accessDeniedMsg))
		return nil
	}
	if err != nil {
		return err
	}
	h.right = access.Right
	h.moderated = access.Moderated
	fwlog.Infof("User %s connected to canvas %s with right %s", h.claims.Email, h.canvasID, h.right)

	if init.Type == TypeRegister && payloadIsTrue(init.Payload) {
		history, err := h.store.ReadHistory(ctx, h.canvasID)
		if err != nil {
			return err
		}
		data, err := json.Marshal(history)
		if err != nil {
			return err
		}
		if err := h.conn.WriteEvent(data); err != nil {
			return err
		}
	}

	// Register with the hub. All sends into inbound happen on this
	// goroutine; closing it on return withdraws the connection.
	inbound := make(chan []byte, 256)
	defer close(inbound)
	h.hub.Register(Registration{CanvasID: h.canvasID, Events: inbound, Sink: h.conn})

	// One-shot management command: forward to peers and hang up.
	if (h.right == "M" || h.right == "O") && init.Type == TypeManage {
		data, err := init.Encode()
		if err != nil {
			return err
		}
		inbound <- data
		return nil
	}

	for _, line := range prebuffered {
		if err := h.handleWrite(ctx, line, inbound); err != nil {
			return err
		}
	}

	return h.mainLoop(ctx, inbound)
}

func (h *Handler) mainLoop(ctx context.Context, inbound chan<- []byte) error {
	frames := make(chan []byte)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			msg, err := h.conn.ReadMessage()
			if err != nil {
				close(frames)
				return
			}
			select {
			case frames <- msg:
			case <-done:
				return
			}
		}
	}()

	ticker := time.NewTicker(h.recheckEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-frames:
			if !ok {
				// Client disconnect or read error; normal termination.
				fwlog.Infof("User %s disconnected from canvas %s", h.claims.Email, h.canvasID)
				return nil
			}
			for _, line := range SplitFrame(msg) {
				if err := h.handleWrite(ctx, line, inbound); err != nil {
					return err
				}
			}

		case ev := <-h.sub.C():
			if h.sub.Lagged() {
				fwlog.Warnf("connection on canvas %s lagged on the control bus", h.canvasID)
			}
			stop, err := h.handleBusEvent(ev)
			if stop {
				return err
			}

		case <-ticker.C:
			// Bus delivery is lossy; re-read the store so a missed
			// revocation cannot persist past one interval.
			access, err := h.store.CanvasAccess(ctx, h.canvasID, h.claims.ID)
			if errors.Is(err, store.ErrNoRight) {
				_ = h.conn.WriteEvent(rightsChangedFrame(h.canvasID, nil))
				return nil
			}
			if err != nil {
				fwlog.Warnf("right recheck on canvas %s: %v", h.canvasID, err)
				continue
			}
			h.right = access.Right
			h.moderated = access.Moderated
		}
	}
}

// handleWrite applies the write policy to one submitted event line.
// Returned errors are protocol violations that close the connection;
// persistence failures drop the event and keep the connection.
func (h *Handler) handleWrite(ctx context.Context, line []byte, inbound chan<- []byte) error {
	ev, err := ParseEvent(line)
	if err != nil {
		return err
	}

	switch {
	case h.right == "R":
		// Readers may not submit; ignore.
		return nil
	case h.right == "W" && h.moderated:
		// Moderation silently swallows plain-writer events.
		return nil
	}

	data, err := ev.Encode()
	if err != nil {
		return err
	}
	// Persist first: peers must never observe an event that could be
	// lost on restart.
	if err := h.store.AppendEvent(ctx, h.canvasID, string(data)); err != nil {
		fwlog.Errorf("append to canvas %s failed, dropping event: %v", h.canvasID, err)
		return nil
	}
	inbound <- data
	return nil
}

// handleBusEvent reacts to a control-plane mutation. The hub never
// echoes to the sender, so client notifications are written straight to
// this connection's own sink.
func (h *Handler) handleBusEvent(ev bus.Event) (stop bool, err error) {
	switch e := ev.(type) {
	case bus.RightChanged:
		if e.CanvasID != h.canvasID || e.UserID != h.claims.ID {
			return false, nil
		}
		if e.Right == nil {
			_ = h.conn.WriteEvent(rightsChangedFrame(h.canvasID, nil))
			fwlog.Infof("User %s revoked from canvas %s", h.claims.Email, h.canvasID)
			return true, nil
		}
		h.right = *e.Right
		return false, h.conn.WriteEvent(rightsChangedFrame(h.canvasID, e.Right))

	case bus.ModeratedChanged:
		if e.CanvasID != h.canvasID {
			return false, nil
		}
		h.moderated = e.Moderated
		return false, h.conn.WriteEvent(moderatedChangedFrame(h.canvasID, e.Moderated))
	}
	return false, nil
}
