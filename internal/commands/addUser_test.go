package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/api"
	"parley/internal/config"
)

func newAdmin(t *testing.T, handler http.HandlerFunc) *config.Config {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &config.Config{
		AdminAddr: strings.TrimPrefix(srv.URL, "http://"),
		BaseURL:   "http://localhost:8080",
	}
}

func TestAddUser(t *testing.T) {
	cfg := newAdmin(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/users", r.URL.Path)
		var req api.AddUserRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(api.AddUserResponse{
			Success:  true,
			UserID:   "id-1",
			Username: req.Username,
			Password: "s3cret-pass",
		})
	})

	var out bytes.Buffer
	require.NoError(t, AddUser("alice", cfg, &out))
	require.Contains(t, out.String(), "alice")
	require.Contains(t, out.String(), "s3cret-pass")
}

func TestAddUserFailure(t *testing.T) {
	cfg := newAdmin(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "taken", http.StatusConflict)
	})

	err := AddUser("alice", cfg, &bytes.Buffer{})
	require.ErrorContains(t, err, "409")
}

func TestDeleteUser(t *testing.T) {
	cfg := newAdmin(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/admin/users/id-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"userId":"id-1"}`))
	})

	var out bytes.Buffer
	require.NoError(t, DeleteUser("id-1", cfg, &out))
	require.Contains(t, out.String(), "id-1")
}
