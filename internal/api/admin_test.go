package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"parley/internal/account"
	"parley/internal/auth"
	"parley/internal/testutil"
)

func TestAdminHandler(t *testing.T) {
	f := newFixture(t, "bob")
	admin := NewAdminHandler(f.accounts, testutil.Logger)
	mux := http.NewServeMux()
	admin.Routes(mux)

	serve := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
		return rec
	}

	rec := serve(http.MethodPost, "/admin/users", AddUserRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(http.MethodPost, "/admin/users", AddUserRequest{Username: "alice", DisplayName: "Alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	created := decodeBody[AddUserResponse](t, rec)
	require.True(t, created.Success)
	require.Len(t, created.Password, 16)

	// The generated password works.
	login := f.auth.Login(context.Background(), auth.LoginRequest{Username: "alice", Password: created.Password})
	require.True(t, login.Success, login.Message)

	rec = serve(http.MethodPost, "/admin/users", AddUserRequest{Username: "alice"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.False(t, decodeBody[AddUserResponse](t, rec).Success)

	rec = serve(http.MethodGet, "/admin/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	testutil.Befriend(t, f.store, created.UserID, "bob")

	rec = serve(http.MethodDelete, "/admin/users/"+created.UserID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[account.DeletionReport](t, rec)
	require.Equal(t, created.UserID, report.UserID)
	require.Equal(t, 1, report.FriendRequests)

	_, err := f.auth.GetUserID(login.Token)
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	rec = serve(http.MethodDelete, "/admin/users/"+created.UserID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
