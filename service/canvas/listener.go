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
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/fawa-io/drawer/pkg/auth"
	"github.com/fawa-io/drawer/pkg/bus"
	"github.com/fawa-io/drawer/pkg/fwlog"
)

// DefaultAddr is the streaming endpoint bind address.
const DefaultAddr = "127.0.0.1:8001"

// Listener authenticates websocket handshakes and runs one Handler per
// accepted connection.
type Listener struct {
	keys     *auth.Keys
	store    Store
	hub      *Hub
	bus      *bus.Bus
	upgrader websocket.Upgrader

	server *http.Server
}

func NewListener(keys *auth.Keys, st Store, hub *Hub, b *bus.Bus) *Listener {
	l := &Listener{
		keys:  keys,
		store: st,
		hub:   hub,
		bus:   b,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	l.server = &http.Server{Addr: DefaultAddr, Handler: l}
	return l
}

// ServeHTTP performs the handshake. Authentication happens before the
// upgrade, so a rejected client gets a plain 401 and no websocket
// connection ever exists.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := l.keys.ParseFromCookies(r.Header.Get("Cookie"))
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		fwlog.Errorf("websocket upgrade failed: %v", err)
		return
	}

	// The request context dies when ServeHTTP returns, so the handler
	// runs here; connection teardown is its cancellation signal.
	h := NewHandler(newWSConn(conn), claims, l.store, l.hub, l.bus.Subscribe())
	h.Run(context.Background())
}

// Serve blocks on the streaming endpoint until Shutdown.
func (l *Listener) Serve() error {
	fwlog.Infof("Canvas streaming endpoint listening on %s", l.server.Addr)
	if err := l.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (l *Listener) Shutdown(ctx context.Context) error {
	return l.server.Shutdown(ctx)
}
