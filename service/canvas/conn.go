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
	"bufio"
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is one duplex client connection, independent of transport. The
// write side doubles as the hub sink, so writes race between the hub's
// fan-out loop and the connection's own handler; implementations
// serialize them internally.
type Conn interface {
	Sink
	// ReadMessage returns the next text message. A message may carry
	// several newline-delimited events.
	ReadMessage() ([]byte, error)
	Close() error
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage {
			return data, nil
		}
		// Binary and control frames carry no canvas events.
	}
}

func (c *wsConn) WriteEvent(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// streamConn adapts a byte stream (the WebTransport bidi stream) to the
// newline-delimited message framing.
type streamConn struct {
	rw     io.ReadWriteCloser
	reader *bufio.Reader
	mu     sync.Mutex
}

func newStreamConn(rw io.ReadWriteCloser) *streamConn {
	return &streamConn{rw: rw, reader: bufio.NewReader(rw)}
}

func (c *streamConn) ReadMessage() ([]byte, error) {
	line, err := c.reader.ReadBytes('\n')
	if len(line) > 0 && err == io.EOF {
		// A final unterminated line is still one message.
		return line, nil
	}
	if err != nil {
		return nil, err
	}
	return line, nil
}

func (c *streamConn) WriteEvent(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.rw.Write(data); err != nil {
		return err
	}
	_, err := c.rw.Write([]byte{'\n'})
	return err
}

func (c *streamConn) Close() error {
	return c.rw.Close()
}
