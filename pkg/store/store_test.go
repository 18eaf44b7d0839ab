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

package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fawa-io/drawer/pkg/util"
)

// openTestStore opens a private shared-cache in-memory database. The
// name must be unique per test so parallel tests do not share state.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", util.Generaterandomstring(12))
	s, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCanvasAccess(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, User{ID: "u1", Email: "a@x", DisplayName: "A", PasswordHash: "h"}))
	require.NoError(t, s.CreateCanvas(ctx, "c1", "u1"))

	a, err := s.CanvasAccess(ctx, "c1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "O", a.Right)
	assert.False(t, a.Moderated)

	_, err = s.CanvasAccess(ctx, "c1", "nobody")
	assert.ErrorIs(t, err, ErrNoRight)

	require.NoError(t, s.SetModerated(ctx, "c1", true))
	a, err = s.CanvasAccess(ctx, "c1", "u1")
	require.NoError(t, err)
	assert.True(t, a.Moderated)
}

func TestHistoryOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, User{ID: "u1", Email: "a@x"}))
	require.NoError(t, s.CreateCanvas(ctx, "cX", "u1"))

	for _, blob := range []string{"E1", "E2", "E3"} {
		require.NoError(t, s.AppendEvent(ctx, "cX", blob))
	}
	// Events of other canvases must not leak into the replay.
	require.NoError(t, s.AppendEvent(ctx, "cY", "other"))

	history, err := s.ReadHistory(ctx, "cX")
	require.NoError(t, err)
	assert.Equal(t, []string{"E1", "E2", "E3"}, history)

	history, err = s.ReadHistory(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSetAndRemoveRight(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, User{ID: "owner", Email: "o@x"}))
	require.NoError(t, s.CreateUser(ctx, User{ID: "bob", Email: "b@x"}))
	require.NoError(t, s.CreateCanvas(ctx, "c1", "owner"))

	require.NoError(t, s.SetRight(ctx, "c1", "bob", "W"))
	a, err := s.CanvasAccess(ctx, "c1", "bob")
	require.NoError(t, err)
	assert.Equal(t, "W", a.Right)

	// Upsert, not duplicate.
	require.NoError(t, s.SetRight(ctx, "c1", "bob", "V"))
	a, err = s.CanvasAccess(ctx, "c1", "bob")
	require.NoError(t, err)
	assert.Equal(t, "V", a.Right)

	require.NoError(t, s.RemoveRight(ctx, "c1", "bob"))
	_, err = s.CanvasAccess(ctx, "c1", "bob")
	assert.ErrorIs(t, err, ErrNoRight)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, User{ID: "u1", Email: "a@x"}))
	err := s.CreateUser(ctx, User{ID: "u2", Email: "a@x"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestUserByEmail(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.UserByEmail(ctx, "missing@x")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.CreateUser(ctx, User{ID: "u1", Email: "a@x", DisplayName: "A", PasswordHash: "h"}))
	u, err := s.UserByEmail(ctx, "a@x")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "h", u.PasswordHash)
}

func TestCanvasListing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, User{ID: "u1", Email: "a@x"}))
	require.NoError(t, s.CreateCanvas(ctx, "c1", "u1"))
	require.NoError(t, s.CreateCanvas(ctx, "c2", "u1"))
	require.NoError(t, s.SetRight(ctx, "c2", "u1", "M"))
	require.NoError(t, s.SetModerated(ctx, "c2", true))

	datas, err := s.CanvasesForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []CanvasData{
		{ID: "c1", Right: "O", Moderated: false},
		{ID: "c2", Right: "M", Moderated: true},
	}, datas)

	rights, err := s.RightsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"c1": "O", "c2": "M"}, rights)
}

func TestSetModeratedMissingCanvas(t *testing.T) {
	s := openTestStore(t)
	err := s.SetModerated(context.Background(), "ghost", true)
	assert.ErrorIs(t, err, ErrNotFound)
}
