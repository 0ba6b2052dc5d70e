// Copyright 2026 The SessionTrack Authors
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

package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessiontrack/sessiontrack/internal/audit"
	"github.com/sessiontrack/sessiontrack/internal/netinfo"
	"github.com/sessiontrack/sessiontrack/internal/session"
	"github.com/sessiontrack/sessiontrack/internal/store/memory"
	transportHTTP "github.com/sessiontrack/sessiontrack/internal/transport/http"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	svc := session.NewService(
		memory.New(),
		session.PlainCodec{},
		&netinfo.StaticProvider{IP: "10.0.0.1", MAC: "00:11:22:33:44:55"},
		session.SystemClock(),
		audit.NewSlogLogger(),
		2*time.Minute,
	)
	router := transportHTTP.NewRouter(transportHTTP.NewHandler(svc))

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func login(t *testing.T, server *httptest.Server) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, server.URL+"/login", map[string]string{
		"email":       "ada@example.com",
		"nickname":    "ada",
		"mac_address": "aa:bb:cc:dd:ee:ff",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id, _ := body["session_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestHealthCheck(t *testing.T) {
	server := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestLoginEndpoint(t *testing.T) {
	server := newTestServer(t)

	t.Run("returns the new session id", func(t *testing.T) {
		login(t, server)
	})

	t.Run("missing fields return 400", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodPost, server.URL+"/login", map[string]string{
			"email": "ada@example.com",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body["error"], "nickname")
	})

	t.Run("malformed body returns 400", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, server.URL+"/login", bytes.NewBufferString("{"))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestLogoutEndpoint(t *testing.T) {
	server := newTestServer(t)

	t.Run("closes the session", func(t *testing.T) {
		id := login(t, server)

		resp, body := doJSON(t, http.MethodPost, server.URL+"/logout", map[string]string{
			"session_id": id,
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "closed_by_user", body["status"])
	})

	t.Run("second logout returns 409", func(t *testing.T) {
		id := login(t, server)

		resp, _ := doJSON(t, http.MethodPost, server.URL+"/logout", map[string]string{"session_id": id})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = doJSON(t, http.MethodPost, server.URL+"/logout", map[string]string{"session_id": id})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("unknown session returns 404", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodPost, server.URL+"/logout", map[string]string{
			"session_id": "no-such-session",
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("missing session id returns 400", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodPost, server.URL+"/logout", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestUpdateEndpoint(t *testing.T) {
	server := newTestServer(t)

	t.Run("patches identity fields", func(t *testing.T) {
		id := login(t, server)

		resp, body := doJSON(t, http.MethodPut, server.URL+"/update", map[string]string{
			"session_id": id,
			"nickname":   "lovelace",
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		identity, _ := body["identity"].(map[string]any)
		require.NotNil(t, identity)
		assert.Equal(t, "lovelace", identity["nickname"])
		assert.Equal(t, "ada@example.com", identity["email"])
	})

	t.Run("update on a closed session returns 409", func(t *testing.T) {
		id := login(t, server)
		resp, _ := doJSON(t, http.MethodPost, server.URL+"/logout", map[string]string{"session_id": id})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = doJSON(t, http.MethodPut, server.URL+"/update", map[string]string{
			"session_id": id,
			"nickname":   "lovelace",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("empty update returns 400", func(t *testing.T) {
		id := login(t, server)

		resp, _ := doJSON(t, http.MethodPut, server.URL+"/update", map[string]string{
			"session_id": id,
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestStatusEndpoint(t *testing.T) {
	server := newTestServer(t)

	t.Run("returns the session", func(t *testing.T) {
		id := login(t, server)

		resp, body := doJSON(t, http.MethodGet, server.URL+"/status?session_id="+id, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, id, body["session_id"])
		assert.Equal(t, "active", body["status"])
	})

	t.Run("unknown session returns 404", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodGet, server.URL+"/status?session_id=no-such-session", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("missing session id returns 400", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodGet, server.URL+"/status", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestListEndpoints(t *testing.T) {
	server := newTestServer(t)

	first := login(t, server)
	second := login(t, server)
	resp, _ := doJSON(t, http.MethodPost, server.URL+"/logout", map[string]string{"session_id": second})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	t.Run("sessions lists every record", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/sessions")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var sessions []map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&sessions))
		assert.Len(t, sessions, 2)
	})

	t.Run("sessions active lists active records only", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/sessions/active")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var sessions []map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&sessions))
		require.Len(t, sessions, 1)
		assert.Equal(t, first, sessions[0]["session_id"])
	})
}

func TestPurgeEndpoint(t *testing.T) {
	server := newTestServer(t)

	login(t, server)
	login(t, server)

	resp, body := doJSON(t, http.MethodDelete, server.URL+"/sessions", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["purged_count"])

	resp2, err := http.Get(server.URL + "/sessions")
	require.NoError(t, err)
	defer resp2.Body.Close()

	var sessions []map[string]any
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&sessions))
	assert.Empty(t, sessions)
}
