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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fawa-io/drawer/pkg/auth"
	"github.com/fawa-io/drawer/pkg/bus"
	"github.com/fawa-io/drawer/pkg/store"
)

type listenerEnv struct {
	st   *store.Store
	keys *auth.Keys
	url  string
}

func newListenerEnv(t *testing.T) *listenerEnv {
	t.Helper()
	ctx := context.Background()
	st := openCanvasStore(t)
	require.NoError(t, st.CreateCanvas(ctx, "c1", "owner"))
	require.NoError(t, st.SetRight(ctx, "c1", "u1", "W"))
	require.NoError(t, st.SetRight(ctx, "c1", "u2", "W"))

	keys := auth.NewKeys("listener-test-secret")
	hub := startHub(t)
	l := NewListener(keys, st, hub, bus.New())
	srv := httptest.NewServer(l)
	t.Cleanup(srv.Close)

	return &listenerEnv{
		st:   st,
		keys: keys,
		url:  "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func (e *listenerEnv) cookie(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.keys.Sign(&auth.Claims{
		ID:    userID,
		Email: userID + "@example.com",
		Exp:   time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)
	return auth.CookieName + "=" + token
}

func (e *listenerEnv) dial(t *testing.T, cookie string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if cookie != "" {
		header.Set("Cookie", cookie)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(e.url, header)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHandshakeRejectsMissingCookie(t *testing.T) {
	e := newListenerEnv(t)
	conn, resp, err := websocket.DefaultDialer.Dial(e.url, nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	e := newListenerEnv(t)
	header := http.Header{}
	header.Set("Cookie", auth.CookieName+"=not-a-token")
	conn, resp, err := websocket.DefaultDialer.Dial(e.url, header)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebsocketHistoryReplay(t *testing.T) {
	e := newListenerEnv(t)
	ctx := context.Background()
	for _, blob := range []string{"E1", "E2", "E3"} {
		require.NoError(t, e.st.AppendEvent(ctx, "c1", blob))
	}

	conn := e.dial(t, e.cookie(t, "u1"))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"register","canvas_id":"c1","timestamp":1,"payload":true}`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `["E1","E2","E3"]`, string(data))
}

func TestWebsocketFanOutExcludesSender(t *testing.T) {
	e := newListenerEnv(t)
	a := e.dial(t, e.cookie(t, "u1"))
	b := e.dial(t, e.cookie(t, "u2"))

	init := `{"type":"register","canvas_id":"c1","timestamp":1,"payload":false}`
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(init)))
	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte(init)))
	time.Sleep(100 * time.Millisecond) // let both register with the hub

	draw := `{"type":"draw","canvas_id":"c1","timestamp":7,"payload":{"pts":[1,2]}}`
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(draw)))

	require.NoError(t, b.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := b.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, draw, string(data))

	// The sender must not hear its own event back.
	require.NoError(t, a.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = a.ReadMessage()
	require.Error(t, err)
}

func TestWebsocketAccessDenied(t *testing.T) {
	e := newListenerEnv(t)
	conn := e.dial(t, e.cookie(t, "stranger"))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"register","canvas_id":"c1","timestamp":1,"payload":false}`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"error":"You do not have access to this canvas."}`, string(data))

	// The server closes after the error envelope.
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}
