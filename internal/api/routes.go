package api

import "net/http"

// Routes registers the public API on mux.
func (a *API) Routes(mux *http.ServeMux) {
	auth, same := a.RequireAuth, RequireSameOrigin

	mux.HandleFunc("POST /api/login", same(a.LoginHandler))
	mux.HandleFunc("POST /api/logoff", same(a.LogoffHandler))
	mux.HandleFunc("POST /api/register", same(a.RegisterHandler))
	mux.HandleFunc("GET /api/register/availability", a.AvailabilityHandler)

	mux.HandleFunc("GET /api/me", auth(a.MeHandler))
	mux.HandleFunc("PATCH /api/me", same(auth(a.UpdateProfileHandler)))
	mux.HandleFunc("DELETE /api/me", same(auth(a.DeleteAccountHandler)))
	mux.HandleFunc("POST /api/me/avatar", same(auth(a.UploadAvatarHandler)))
	mux.HandleFunc("GET /api/users", auth(a.SearchUsersHandler))
	mux.HandleFunc("GET /api/users/{id}", auth(a.GetUserHandler))
	mux.HandleFunc("POST /api/push/subscriptions", same(auth(a.PushSubscribeHandler)))
	mux.HandleFunc("GET /api/files/{id}", auth(a.FileHandler))

	mux.HandleFunc("GET /api/friends", auth(a.FriendsHandler))
	mux.HandleFunc("DELETE /api/friends/{id}", same(auth(a.RemoveFriendHandler)))
	mux.HandleFunc("GET /api/friends/{id}/status", auth(a.FriendStatusHandler))
	mux.HandleFunc("GET /api/friends/requests", auth(a.PendingRequestsHandler))
	mux.HandleFunc("GET /api/friends/requests/sent", auth(a.SentRequestsHandler))
	mux.HandleFunc("POST /api/friends/requests", same(auth(a.SendFriendRequestHandler)))
	mux.HandleFunc("POST /api/friends/requests/{id}/accept", same(auth(a.AcceptFriendRequestHandler)))
	mux.HandleFunc("POST /api/friends/requests/{id}/reject", same(auth(a.RejectFriendRequestHandler)))

	mux.HandleFunc("GET /api/conversations/{userId}", auth(a.ConversationHandler))
	mux.HandleFunc("POST /api/conversations/{userId}/messages", same(auth(a.SendMessageHandler)))
	mux.HandleFunc("POST /api/conversations/{userId}/media", same(auth(a.SendMediaHandler)))
	mux.HandleFunc("POST /api/conversations/{userId}/read", same(auth(a.MarkConversationReadHandler)))
	mux.HandleFunc("POST /api/messages/{id}/read", same(auth(a.MarkMessageReadHandler)))

	mux.HandleFunc("GET /api/groups", auth(a.UserGroupsHandler))
	mux.HandleFunc("POST /api/groups", same(auth(a.CreateGroupHandler)))
	mux.HandleFunc("GET /api/groups/{id}", auth(a.GroupDetailsHandler))
	mux.HandleFunc("POST /api/groups/{id}/members", same(auth(a.AddMemberHandler)))
	mux.HandleFunc("DELETE /api/groups/{id}/members/{userId}", same(auth(a.RemoveMemberHandler)))
	mux.HandleFunc("GET /api/groups/{id}/messages", auth(a.GroupMessagesHandler))
	mux.HandleFunc("POST /api/groups/{id}/messages", same(auth(a.SendGroupMessageHandler)))
	mux.HandleFunc("POST /api/groups/{id}/media", same(auth(a.SendGroupMediaHandler)))
}

// Routes registers the admin API on mux.
func (h *AdminHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/users", h.AddUserHandler)
	mux.HandleFunc("GET /admin/users", h.ListUsersHandler)
	mux.HandleFunc("DELETE /admin/users/{id}", h.DeleteUserHandler)
}
