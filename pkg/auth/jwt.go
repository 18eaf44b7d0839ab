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

package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the cookie carrying the access token, on both the HTTP
// control plane and the streaming handshake.
const CookieName = "access_token"

var (
	ErrMissingToken = errors.New("auth: no access token in cookies")
	ErrInvalidToken = errors.New("auth: invalid access token")
)

// Claims is the identity carried by the access token.
type Claims struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Exp         int64  `json:"exp"`
	// Canvases maps canvas id to the right held at token issue time.
	// Live connections re-check rights against the store; this map only
	// serves the frontend.
	Canvases map[string]string `json:"canvases"`
}

// jwt/v5 drives expiry validation through this hook.
func (c *Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}

func (c *Claims) GetIssuedAt() (*jwt.NumericDate, error)  { return nil, nil }
func (c *Claims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }
func (c *Claims) GetIssuer() (string, error)              { return "", nil }
func (c *Claims) GetSubject() (string, error)             { return c.ID, nil }
func (c *Claims) GetAudience() (jwt.ClaimStrings, error)  { return nil, nil }

// Keys holds the shared HMAC signing key.
type Keys struct {
	secret []byte
}

func NewKeys(secret string) *Keys {
	return &Keys{secret: []byte(secret)}
}

// Sign issues a signed access token for the given claims.
func (k *Keys) Sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(k.secret)
}

// Parse verifies a token string and returns its claims.
func (k *Keys) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return k.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseFromCookies locates the access token inside a raw Cookie header
// value and verifies it.
func (k *Keys) ParseFromCookies(cookies string) (*Claims, error) {
	prefix := CookieName + "="
	for _, c := range strings.Split(cookies, ";") {
		c = strings.TrimSpace(c)
		if strings.HasPrefix(c, prefix) {
			return k.Parse(strings.TrimPrefix(c, prefix))
		}
	}
	return nil, ErrMissingToken
}
