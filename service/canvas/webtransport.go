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
	"crypto/tls"
	"net/http"

	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"

	"github.com/fawa-io/drawer/pkg/auth"
	"github.com/fawa-io/drawer/pkg/bus"
	"github.com/fawa-io/drawer/pkg/fwlog"
)

// WebTransportServer serves the canvas protocol over an HTTP/3
// WebTransport session. The client opens one bidirectional stream and
// speaks the same newline-delimited frames as the websocket endpoint.
type WebTransportServer struct {
	keys  *auth.Keys
	store Store
	hub   *Hub
	bus   *bus.Bus

	wt *webtransport.Server
}

func NewWebTransportServer(addr, certFile, keyFile string, keys *auth.Keys, st Store, hub *Hub, b *bus.Bus) (*WebTransportServer, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}

	s := &WebTransportServer{keys: keys, store: st, hub: hub, bus: b}

	mux := http.NewServeMux()
	mux.HandleFunc("/webtransport/canvas", s.handleSession)
	s.wt = &webtransport.Server{
		H3: http3.Server{
			Addr:      addr,
			Handler:   mux,
			TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
		},
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return s, nil
}

func (s *WebTransportServer) handleSession(w http.ResponseWriter, r *http.Request) {
	claims, err := s.keys.ParseFromCookies(r.Header.Get("Cookie"))
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	session, err := s.wt.Upgrade(w, r)
	if err != nil {
		fwlog.Errorf("WebTransport upgrade failed: %v", err)
		http.Error(w, "WebTransport upgrade failed", http.StatusInternalServerError)
		return
	}
	defer func() {
		_ = session.CloseWithError(0, "server closed")
	}()

	stream, err := session.AcceptStream(r.Context())
	if err != nil {
		fwlog.Errorf("WebTransport accept stream failed: %v", err)
		return
	}

	h := NewHandler(newStreamConn(stream), claims, s.store, s.hub, s.bus.Subscribe())
	h.Run(context.Background())
}

// Serve blocks on the HTTP/3 listener until Close.
func (s *WebTransportServer) Serve() error {
	fwlog.Infof("WebTransport endpoint: https://%s/webtransport/canvas", s.wt.H3.Addr)
	return s.wt.ListenAndServe()
}

func (s *WebTransportServer) Close() error {
	return s.wt.Close()
}
