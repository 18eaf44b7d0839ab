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

// Package control is the HTTP control plane: accounts, sessions, canvas
// administration. Rights and moderation mutations are pushed onto the
// control bus after they commit, so live streaming connections follow.
package control

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fawa-io/drawer/pkg/auth"
	"github.com/fawa-io/drawer/pkg/bus"
	"github.com/fawa-io/drawer/pkg/fwlog"
	"github.com/fawa-io/drawer/pkg/store"
)

// tokenTTL is the access-token lifetime.
const tokenTTL = 30 * 24 * time.Hour

// BusPublisher pushes control-plane mutations to live connections.
// Satisfied by both bus.Bus and the redis bus.Bridge.
type BusPublisher interface {
	Publish(ev bus.Event)
}

type Handler struct {
	store *store.Store
	keys  *auth.Keys
	bus   BusPublisher
}

func NewHandler(st *store.Store, keys *auth.Keys, b BusPublisher) *Handler {
	return &Handler{store: st, keys: keys, bus: b}
}

// Router builds the control-plane route table.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", h.register)
	mux.HandleFunc("POST /api/auth/login", h.login)
	mux.HandleFunc("POST /api/auth/logout", h.logout)
	mux.HandleFunc("GET /api/auth/me", h.me)
	mux.HandleFunc("POST /api/canvas", h.createCanvas)
	mux.HandleFunc("GET /api/canvas/datas", h.listCanvases)
	mux.HandleFunc("POST /api/canvas/{id}/right", h.setRight)
	mux.HandleFunc("POST /api/canvas/{id}/moderated", h.setModerated)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fwlog.Warnf("write response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

// authenticate resolves the caller from the access-token cookie.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, err := h.keys.ParseFromCookies(r.Header.Get("Cookie"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return nil, false
	}
	return claims, true
}

// issueCookie signs a fresh token for the user, embedding the current
// canvas→right map, and sets it as the session cookie.
func (h *Handler) issueCookie(w http.ResponseWriter, r *http.Request, u store.User) (*auth.Claims, error) {
	rights, err := h.store.RightsForUser(r.Context(), u.ID)
	if err != nil {
		return nil, err
	}
	claims := &auth.Claims{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Exp:         time.Now().Add(tokenTTL).Unix(),
		Canvases:    rights,
	}
	token, err := h.keys.Sign(claims)
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(tokenTTL / time.Second),
	})
	return claims, nil
}

type registerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	u := store.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
	}
	if err := h.store.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		fwlog.Errorf("register: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	claims, err := h.issueCookie(w, r, u)
	if err != nil {
		fwlog.Errorf("register: issue token: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	fwlog.Infof("Registered user %s", u.Email)
	writeJSON(w, http.StatusCreated, claims)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !readJSON(w, r, &req) {
		return
	}

	u, err := h.store.UserByEmail(r.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err != nil {
		fwlog.Errorf("login: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	claims, err := h.issueCookie(w, r, u)
	if err != nil {
		fwlog.Errorf("login: issue token: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	fwlog.Infof("User %s logged in", u.Email)
	writeJSON(w, http.StatusOK, claims)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

func (h *Handler) createCanvas(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	canvasID := uuid.NewString()
	if err := h.store.CreateCanvas(r.Context(), canvasID, claims.ID); err != nil {
		fwlog.Errorf("create canvas: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Re-issue the cookie so the embedded canvas map includes the new
	// canvas right away.
	u := store.User{ID: claims.ID, Email: claims.Email, DisplayName: claims.DisplayName}
	if _, err := h.issueCookie(w, r, u); err != nil {
		fwlog.Errorf("create canvas: reissue token: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	fwlog.Infof("User %s created canvas %s", claims.Email, canvasID)
	writeJSON(w, http.StatusCreated, map[string]string{"id": canvasID})
}

func (h *Handler) listCanvases(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	datas, err := h.store.CanvasesForUser(r.Context(), claims.ID)
	if err != nil {
		fwlog.Errorf("list canvases: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, datas)
}

var validRights = map[string]bool{"R": true, "W": true, "V": true, "M": true, "O": true}

type setRightRequest struct {
	UserID string  `json:"user_id"`
	Right  *string `json:"right"` // null revokes
}

func (h *Handler) setRight(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	canvasID := r.PathValue("id")

	var req setRightRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Right != nil && !validRights[*req.Right] {
		writeError(w, http.StatusBadRequest, "right must be one of R, W, V, M, O")
		return
	}

	access, err := h.store.CanvasAccess(r.Context(), canvasID, claims.ID)
	if errors.Is(err, store.ErrNoRight) || (err == nil && access.Right != "O") {
		writeError(w, http.StatusForbidden, "only the owner may change rights")
		return
	}
	if err != nil {
		fwlog.Errorf("set right: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if req.Right == nil {
		err = h.store.RemoveRight(r.Context(), canvasID, req.UserID)
	} else {
		err = h.store.SetRight(r.Context(), canvasID, req.UserID, *req.Right)
	}
	if err != nil {
		fwlog.Errorf("set right: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Publish only after the commit: subscribers that see the event may
	// rely on the store already reflecting it.
	h.bus.Publish(bus.RightChanged{CanvasID: canvasID, UserID: req.UserID, Right: req.Right})
	fwlog.Infof("User %s changed right of %s on canvas %s", claims.Email, req.UserID, canvasID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type setModeratedRequest struct {
	Moderated bool `json:"moderated"`
}

func (h *Handler) setModerated(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	canvasID := r.PathValue("id")

	var req setModeratedRequest
	if !readJSON(w, r, &req) {
		return
	}

	access, err := h.store.CanvasAccess(r.Context(), canvasID, claims.ID)
	if errors.Is(err, store.ErrNoRight) || (err == nil && access.Right != "M" && access.Right != "O") {
		writeError(w, http.StatusForbidden, "moderator or owner right required")
		return
	}
	if err != nil {
		fwlog.Errorf("set moderated: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := h.store.SetModerated(r.Context(), canvasID, req.Moderated); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "canvas not found")
			return
		}
		fwlog.Errorf("set moderated: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.bus.Publish(bus.ModeratedChanged{CanvasID: canvasID, Moderated: req.Moderated})
	fwlog.Infof("User %s set moderated=%t on canvas %s", claims.Email, req.Moderated, canvasID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
