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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClaims(exp time.Time) *Claims {
	return &Claims{
		ID:          "u1",
		Email:       "alice@example.com",
		DisplayName: "Alice",
		Exp:         exp.Unix(),
		Canvases:    map[string]string{"c1": "O"},
	}
}

func TestSignAndParse(t *testing.T) {
	keys := NewKeys("test-secret")

	token, err := keys.Sign(testClaims(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	claims, err := keys.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.ID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "Alice", claims.DisplayName)
	assert.Equal(t, map[string]string{"c1": "O"}, claims.Canvases)
}

func TestParseRejectsExpired(t *testing.T) {
	keys := NewKeys("test-secret")

	token, err := keys.Sign(testClaims(time.Now().Add(-time.Hour)))
	require.NoError(t, err)

	_, err = keys.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsWrongKey(t *testing.T) {
	keys := NewKeys("test-secret")
	other := NewKeys("other-secret")

	token, err := keys.Sign(testClaims(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	_, err = other.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseFromCookies(t *testing.T) {
	keys := NewKeys("test-secret")
	token, err := keys.Sign(testClaims(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	testCases := []struct {
		name    string
		cookies string
		wantErr error
	}{
		{"only token", "access_token=" + token, nil},
		{"among other cookies", "theme=dark; access_token=" + token + "; lang=en", nil},
		{"with spaces", " access_token=" + token + " ", nil},
		{"missing", "theme=dark; lang=en", ErrMissingToken},
		{"empty", "", ErrMissingToken},
		{"garbage token", "access_token=not-a-jwt", ErrInvalidToken},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			claims, err := keys.ParseFromCookies(tc.cookies)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "u1", claims.ID)
		})
	}
}
