package api

import (
	"fmt"
	"net/http"

	"parley/internal/models"
)

type friendRequestBody struct {
	ReceiverID string `json:"receiverId"`
}

type friendStatusResponse struct {
	Friends bool `json:"friends"`
}

func (a *API) FriendsHandler(w http.ResponseWriter, r *http.Request) {
	friends, err := a.social.Friends(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, friends)
}

func (a *API) PendingRequestsHandler(w http.ResponseWriter, r *http.Request) {
	reqs, err := a.social.PendingRequests(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, reqs)
}

func (a *API) SentRequestsHandler(w http.ResponseWriter, r *http.Request) {
	reqs, err := a.social.SentRequests(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, reqs)
}

func (a *API) SendFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	var body friendRequestBody
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	req, err := a.social.SendFriendRequest(r.Context(), userIDFrom(r.Context()), body.ReceiverID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, req)
}

func (a *API) AcceptFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	a.resolveFriendRequest(w, r, true)
}

func (a *API) RejectFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	a.resolveFriendRequest(w, r, false)
}

// Only the receiver may answer a request.
func (a *API) resolveFriendRequest(w http.ResponseWriter, r *http.Request, accept bool) {
	id := r.PathValue("id")
	req, err := a.social.Request(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.ReceiverID != userIDFrom(r.Context()) {
		a.writeError(w, r, fmt.Errorf("%w: only the receiver can answer a friend request", models.ErrForbidden))
		return
	}

	if accept {
		req, err = a.social.AcceptFriendRequest(r.Context(), id)
	} else {
		req, err = a.social.RejectFriendRequest(r.Context(), id)
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, req)
}

func (a *API) RemoveFriendHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.social.RemoveFriend(r.Context(), userIDFrom(r.Context()), r.PathValue("id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FriendStatusHandler reports whether the caller and {id} are friends.
func (a *API) FriendStatusHandler(w http.ResponseWriter, r *http.Request) {
	otherID := r.PathValue("id")
	if _, err := a.accounts.ResolveUser(r.Context(), otherID); err != nil {
		a.writeError(w, r, err)
		return
	}
	friends, err := a.social.AreFriends(r.Context(), userIDFrom(r.Context()), otherID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, friendStatusResponse{Friends: friends})
}
