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

package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fawa-io/drawer/pkg/fwlog"
)

// Channel is the redis pub/sub channel mirroring control-bus traffic
// between server instances.
const Channel = "drawer:control"

const (
	kindRightChanged     = "right_changed"
	kindModeratedChanged = "moderated_changed"
)

type envelope struct {
	Origin    string  `json:"origin"`
	Kind      string  `json:"kind"`
	CanvasID  string  `json:"canvas_id"`
	UserID    string  `json:"user_id,omitempty"`
	Right     *string `json:"right"`
	Moderated bool    `json:"moderated,omitempty"`
}

// Bridge mirrors local control-bus publishes to redis and relays remote
// publishes into the local bus, so rights and moderation changes reach
// connections on every instance. Each instance tags outgoing messages
// with an origin id and ignores its own.
type Bridge struct {
	bus    *Bus
	rdb    redis.UniversalClient
	origin string
}

func NewBridge(b *Bus, rdb redis.UniversalClient) *Bridge {
	return &Bridge{bus: b, rdb: rdb, origin: uuid.NewString()}
}

// Publish delivers the event locally and mirrors it to redis. A redis
// failure degrades to single-instance behavior; the periodic right
// re-query on long-lived connections is the safety net.
func (br *Bridge) Publish(ev Event) {
	br.bus.Publish(ev)

	env := envelope{Origin: br.origin}
	switch e := ev.(type) {
	case RightChanged:
		env.Kind = kindRightChanged
		env.CanvasID = e.CanvasID
		env.UserID = e.UserID
		env.Right = e.Right
	case ModeratedChanged:
		env.Kind = kindModeratedChanged
		env.CanvasID = e.CanvasID
		env.Moderated = e.Moderated
	default:
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		fwlog.Errorf("bus bridge: marshal: %v", err)
		return
	}
	if err := br.rdb.Publish(context.Background(), Channel, data).Err(); err != nil {
		fwlog.Warnf("bus bridge: redis publish failed: %v", err)
	}
}

// Run relays remote publishes into the local bus until ctx is done.
func (br *Bridge) Run(ctx context.Context) error {
	pubsub := br.rdb.Subscribe(ctx, Channel)
	defer func() { _ = pubsub.Close() }()

	// Fail fast when redis is unreachable at startup.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("bus bridge: subscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			br.relay([]byte(msg.Payload))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (br *Bridge) relay(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		fwlog.Warnf("bus bridge: bad payload: %v", err)
		return
	}
	if env.Origin == br.origin {
		return
	}
	switch env.Kind {
	case kindRightChanged:
		br.bus.Publish(RightChanged{CanvasID: env.CanvasID, UserID: env.UserID, Right: env.Right})
	case kindModeratedChanged:
		br.bus.Publish(ModeratedChanged{CanvasID: env.CanvasID, Moderated: env.Moderated})
	default:
		fwlog.Warnf("bus bridge: unknown kind %q", env.Kind)
	}
}
