package api

import (
	"io"
	"net/http"

	"parley/internal/account"
	"parley/internal/storage"
)

func (a *API) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.accounts.ResolveUser(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, user)
}

// DeleteAccountHandler deletes the caller's own account and everything tied
// to it. The session ends with it.
func (a *API) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	report, err := a.accounts.DeleteUser(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	clearTokenCookie(w)
	a.writeJSON(w, http.StatusOK, report)
}

func (a *API) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	var upd account.ProfileUpdate
	if err := decodeJSON(r, &upd); err != nil {
		a.writeError(w, r, err)
		return
	}
	user, err := a.accounts.UpdateProfile(r.Context(), userIDFrom(r.Context()), upd)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, user)
}

func (a *API) UploadAvatarHandler(w http.ResponseWriter, r *http.Request) {
	upload, _, err := a.readUpload(w, r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	user, err := a.accounts.SetAvatar(r.Context(), userIDFrom(r.Context()), upload)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, user)
}

func (a *API) SearchUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := a.accounts.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, users)
}

func (a *API) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.accounts.ResolveUser(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, user)
}

type availabilityResponse struct {
	Available bool `json:"available"`
}

// AvailabilityHandler answers whether a username or email can still be
// registered.
func (a *API) AvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		taken bool
		err   error
	)
	switch {
	case q.Get("username") != "":
		taken, err = a.accounts.ExistsByUsername(r.Context(), q.Get("username"))
	case q.Get("email") != "":
		taken, err = a.accounts.ExistsByEmail(r.Context(), q.Get("email"))
	default:
		http.Error(w, "username or email is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, availabilityResponse{Available: !taken})
}

func (a *API) PushSubscribeHandler(w http.ResponseWriter, r *http.Request) {
	var sub storage.PushSubscription
	if err := decodeJSON(r, &sub); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.accounts.AddPushSubscription(r.Context(), userIDFrom(r.Context()), sub); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (a *API) FileHandler(w http.ResponseWriter, r *http.Request) {
	meta, rc, err := a.files.Open(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", meta.MimeType)
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	if _, err := io.Copy(w, rc); err != nil {
		a.logger.Warn("file download interrupted", "file_id", meta.ID, "error", err)
	}
}
