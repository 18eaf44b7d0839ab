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

// Package store persists users, canvases, rights and the append-only
// canvas event log in sqlite. Replay order of the event log is the
// natural insertion order (ascending rowid).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNoRight is returned when a user holds no right on a canvas.
	ErrNoRight = errors.New("store: no right on canvas")
	// ErrNotFound is returned for missing users or canvases.
	ErrNotFound = errors.New("store: not found")
	// ErrEmailTaken is returned when registering a duplicate email.
	ErrEmailTaken = errors.New("store: email already registered")
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    email         TEXT UNIQUE,
    display_name  TEXT,
    password_hash TEXT
);
CREATE TABLE IF NOT EXISTS canvas (
    id        TEXT PRIMARY KEY,
    moderated BOOLEAN DEFAULT 0
);
CREATE TABLE IF NOT EXISTS user_canvas (
    user_id   TEXT,
    canvas_id TEXT,
    "right"   TEXT CHECK ("right" IN ('R','W','V','M','O')),
    PRIMARY KEY (user_id, canvas_id)
);
CREATE TABLE IF NOT EXISTS canvas_events (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    canvas_id TEXT,
    events    TEXT
);
`

// Store wraps the shared sqlite pool. It is safe for concurrent use;
// individual queries are atomic at the database layer.
type Store struct {
	db *sqlx.DB
}

// Open connects to the sqlite database at path and creates missing
// tables.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Sqlite allows one writer; serialized access through a single
	// connection avoids SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Access is the pair a connection needs to admit a client.
type Access struct {
	Right     string `db:"right"`
	Moderated bool   `db:"moderated"`
}

// CanvasAccess returns the user's right on the canvas joined with the
// canvas moderation flag. ErrNoRight when the user has no row.
func (s *Store) CanvasAccess(ctx context.Context, canvasID, userID string) (Access, error) {
	var a Access
	err := s.db.GetContext(ctx, &a,
		`SELECT uc."right" AS "right", c.moderated AS moderated
		   FROM user_canvas uc JOIN canvas c ON c.id = uc.canvas_id
		  WHERE uc.canvas_id = ? AND uc.user_id = ?`,
		canvasID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return Access{}, ErrNoRight
	}
	if err != nil {
		return Access{}, fmt.Errorf("store: canvas access: %w", err)
	}
	return a, nil
}

// ReadHistory returns the canvas event log in insertion order. The
// blobs are returned exactly as stored.
func (s *Store) ReadHistory(ctx context.Context, canvasID string) ([]string, error) {
	events := []string{}
	err := s.db.SelectContext(ctx, &events,
		`SELECT events FROM canvas_events WHERE canvas_id = ? ORDER BY id ASC`, canvasID)
	if err != nil {
		return nil, fmt.Errorf("store: read history: %w", err)
	}
	return events, nil
}

// AppendEvent durably appends one serialized event to the canvas log.
func (s *Store) AppendEvent(ctx context.Context, canvasID, blob string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO canvas_events (canvas_id, events) VALUES (?, ?)`, canvasID, blob)
	if err != nil {
		return fmt.Errorf("store: append event: %w", err)
	}
	return nil
}

// User is a registered account.
type User struct {
	ID           string `db:"id"`
	Email        string `db:"email"`
	DisplayName  string `db:"display_name"`
	PasswordHash string `db:"password_hash"`
}

func (s *Store) CreateUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, password_hash) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.DisplayName, u.PasswordHash)
	if err != nil {
		var exists int
		if lookupErr := s.db.GetContext(ctx, &exists,
			`SELECT COUNT(1) FROM users WHERE email = ?`, u.Email); lookupErr == nil && exists > 0 {
			return ErrEmailTaken
		}
		return fmt.Errorf("store: create user: %w", err)
	}
	return nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `SELECT id, email, display_name, password_hash FROM users WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("store: user by email: %w", err)
	}
	return u, nil
}

// CreateCanvas inserts a canvas and grants the creator the owner right
// in one transaction.
func (s *Store) CreateCanvas(ctx context.Context, canvasID, ownerID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: create canvas: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO canvas (id, moderated) VALUES (?, 0)`, canvasID); err != nil {
		return fmt.Errorf("store: create canvas: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_canvas (user_id, canvas_id, "right") VALUES (?, ?, 'O')`, ownerID, canvasID); err != nil {
		return fmt.Errorf("store: create canvas: grant owner: %w", err)
	}
	return tx.Commit()
}

// SetRight upserts the user's right on a canvas.
func (s *Store) SetRight(ctx context.Context, canvasID, userID, right string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_canvas (user_id, canvas_id, "right") VALUES (?, ?, ?)
		 ON CONFLICT (user_id, canvas_id) DO UPDATE SET "right" = excluded."right"`,
		userID, canvasID, right)
	if err != nil {
		return fmt.Errorf("store: set right: %w", err)
	}
	return nil
}

// RemoveRight revokes the user's right on a canvas.
func (s *Store) RemoveRight(ctx context.Context, canvasID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_canvas WHERE user_id = ? AND canvas_id = ?`, userID, canvasID)
	if err != nil {
		return fmt.Errorf("store: remove right: %w", err)
	}
	return nil
}

// SetModerated flips the canvas moderation flag.
func (s *Store) SetModerated(ctx context.Context, canvasID string, moderated bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE canvas SET moderated = ? WHERE id = ?`, moderated, canvasID)
	if err != nil {
		return fmt.Errorf("store: set moderated: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// CanvasData is one entry of a user's canvas listing.
type CanvasData struct {
	ID        string `db:"id" json:"id"`
	Right     string `db:"right" json:"right"`
	Moderated bool   `db:"moderated" json:"moderated"`
}

// CanvasesForUser lists the canvases the user holds a right on.
func (s *Store) CanvasesForUser(ctx context.Context, userID string) ([]CanvasData, error) {
	datas := []CanvasData{}
	err := s.db.SelectContext(ctx, &datas,
		`SELECT c.id AS id, uc."right" AS "right", c.moderated AS moderated
		   FROM user_canvas uc JOIN canvas c ON c.id = uc.canvas_id
		  WHERE uc.user_id = ? ORDER BY c.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: canvases for user: %w", err)
	}
	return datas, nil
}

// RightsForUser returns the user's canvas→right map, as embedded into
// freshly issued tokens.
func (s *Store) RightsForUser(ctx context.Context, userID string) (map[string]string, error) {
	rows := []struct {
		CanvasID string `db:"canvas_id"`
		Right    string `db:"right"`
	}{}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT canvas_id, "right" AS "right" FROM user_canvas WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: rights for user: %w", err)
	}
	rights := make(map[string]string, len(rows))
	for _, r := range rows {
		rights[r.CanvasID] = r.Right
	}
	return rights, nil
}
