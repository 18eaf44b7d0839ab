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
	"bytes"
	"encoding/json"
	"fmt"
)

// Event types with server-side meaning. Everything else is opaque and
// only forwarded.
const (
	TypeRegister      = "register"
	TypeManage        = "manage"
	TypeRightsChanged = "rights_changed"
)

// Event is the unit of client-submitted payload. The payload is kept as
// raw JSON so it survives the round trip bit-exact; the timestamp is
// producer-supplied and not validated.
type Event struct {
	Type      string          `json:"type"`
	CanvasID  string          `json:"canvas_id"`
	Timestamp uint64          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// ParseEvent decodes one newline-delimited frame line.
func ParseEvent(line []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, fmt.Errorf("canvas: malformed event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("canvas: event without type")
	}
	if ev.CanvasID == "" {
		return nil, fmt.Errorf("canvas: event without canvas_id")
	}
	return &ev, nil
}

func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// SplitFrame splits a text message into its newline-delimited pieces,
// dropping empty lines. A single message may carry several events.
func SplitFrame(data []byte) [][]byte {
	var lines [][]byte
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}

// payloadIsTrue reports whether an init payload asks for history replay.
func payloadIsTrue(payload json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(payload), []byte("true"))
}

// rightsChangedFrame builds the synthetic frame notifying this
// connection's own client of a right update (nil means revoked).
func rightsChangedFrame(canvasID string, right *string) []byte {
	payload, _ := json.Marshal(map[string]*string{"right": right})
	data, _ := json.Marshal(&Event{
		Type:     TypeRightsChanged,
		CanvasID: canvasID,
		Payload:  payload,
	})
	return data
}

// moderatedChangedFrame builds the synthetic frame notifying the client
// of a moderation flip. The type is shared with right updates; the
// payload discriminates.
func moderatedChangedFrame(canvasID string, moderated bool) []byte {
	payload, _ := json.Marshal(map[string]bool{"moderated": moderated})
	data, _ := json.Marshal(&Event{
		Type:     TypeRightsChanged,
		CanvasID: canvasID,
		Payload:  payload,
	})
	return data
}

// errorFrame is the JSON error envelope sent before closing a
// connection the client may not use.
func errorFrame(msg string) []byte {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return data
}
