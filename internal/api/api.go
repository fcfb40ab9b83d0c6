package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"parley/internal/account"
	"parley/internal/auth"
	"parley/internal/content"
	"parley/internal/conversation"
	"parley/internal/group"
	"parley/internal/media"
	"parley/internal/models"
	"parley/internal/notify"
	"parley/internal/social"
)

type contextKey struct{}

var (
	userIDKey      = contextKey{}
	errMissingFile = fmt.Errorf("%w: missing file", models.ErrInvalidOperation)

	errNotFriends     = fmt.Errorf("%w: not friends", models.ErrForbidden)
	errNotGroupMember = fmt.Errorf("%w: not a member of the group", models.ErrForbidden)
)

// Notifier takes best-effort notification tasks.
type Notifier interface {
	Enqueue(task notify.Task) bool
}

type API struct {
	auth          *auth.AuthService
	accounts      *account.Service
	social        *social.Service
	conversations *conversation.Service
	groups        *group.Registry
	files         *media.Library
	notifier      Notifier
	logger        *slog.Logger
	maxUpload     int64
}

type Deps struct {
	Auth          *auth.AuthService
	Accounts      *account.Service
	Social        *social.Service
	Conversations *conversation.Service
	Groups        *group.Registry
	Files         *media.Library
	Notifier      Notifier
	Logger        *slog.Logger
	MaxUpload     int64
}

func New(deps Deps) *API {
	maxUpload := deps.MaxUpload
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &API{
		auth:          deps.Auth,
		accounts:      deps.Accounts,
		social:        deps.Social,
		conversations: deps.Conversations,
		groups:        deps.Groups,
		files:         deps.Files,
		notifier:      deps.Notifier,
		logger:        deps.Logger.With("component", "api"),
		maxUpload:     maxUpload,
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrInvalidOperation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("failed to encode response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	a.writeJSON(w, status, errorResponse{Message: msg})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", models.ErrInvalidOperation)
	}
	return nil
}

func getToken(r *http.Request) string {
	token := r.Header.Get("token")
	if token == "" {
		if c, err := r.Cookie("token"); err == nil {
			token = c.Value
		}
	}
	return token
}

// RequireAuth resolves the session token and stores the user id in the
// request context.
func (a *API) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.auth.GetUserID(getToken(r))
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	}
}

func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// RequireSameOrigin rejects cross-site form posts that would ride on the
// session cookie. Requests without an Origin header are let through.
func RequireSameOrigin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			u, err := url.Parse(origin)
			if err != nil || u.Host != r.Host {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
		}
		next(w, r)
	}
}

// readUpload pulls the "file" part of a multipart request and classifies it
// by its leading bytes.
func (a *API) readUpload(w http.ResponseWriter, r *http.Request) (media.Upload, models.MessageType, error) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload)
	if err := r.ParseMultipartForm(a.maxUpload); err != nil {
		return media.Upload{}, "", fmt.Errorf("%w: upload too large or malformed", models.ErrInvalidOperation)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return media.Upload{}, "", errMissingFile
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return media.Upload{}, "", fmt.Errorf("%w: reading upload: %v", models.ErrInvalidOperation, err)
	}
	mimeType, typ := content.ClassifyUpload(data, header.Header.Get("Content-Type"))
	return media.Upload{Data: data, MimeType: mimeType, Name: header.Filename}, typ, nil
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest

	// Support both JSON and Form (since frontend uses x-www-form-urlencoded)
	if r.Header.Get("Content-Type") == "application/json" {
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, r, err)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")
	}

	loginResp := a.auth.Login(r.Context(), req)
	if !loginResp.Success {
		a.writeJSON(w, http.StatusUnauthorized, loginResp)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    loginResp.Token,
		HttpOnly: true,
		Path:     "/",
		Expires:  time.Unix(loginResp.TokenExpiry, 0),
	})
	a.notifier.Enqueue(notify.Task{
		Kind:   notify.KindLogin,
		UserID: loginResp.UserID,
		Title:  "New sign-in",
		Body:   "Your account was just signed in to.",
	})
	a.writeJSON(w, http.StatusOK, loginResp)
}

func (a *API) LogoffHandler(w http.ResponseWriter, r *http.Request) {
	if token := getToken(r); token != "" {
		_ = a.auth.Logoff(token)
	}
	clearTokenCookie(w)
	w.WriteHeader(http.StatusOK)
}

func clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})
}

func (a *API) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req account.Registration
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	user, err := a.accounts.Register(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, user)
}
