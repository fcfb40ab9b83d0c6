package api

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"parley/internal/account"
)

type AdminHandler struct {
	accounts *account.Service
	logger   *slog.Logger
}

func NewAdminHandler(accounts *account.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{accounts: accounts, logger: logger.With("component", "admin")}
}

type AddUserRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

type AddUserResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

func (h *AdminHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// AddUserHandler registers a user with a generated password and returns it
// once.
func (h *AdminHandler) AddUserHandler(w http.ResponseWriter, r *http.Request) {
	var req AddUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" {
		http.Error(w, "Username is required", http.StatusBadRequest)
		return
	}
	if req.Email == "" {
		req.Email = req.Username + "@localhost"
	}

	password, err := generatePassword()
	if err != nil {
		h.logger.Error("generating password", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, AddUserResponse{Message: "internal error"})
		return
	}

	user, err := h.accounts.Register(r.Context(), account.Registration{
		UserName:    req.Username,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Password:    password,
	})
	if err != nil {
		status := statusFor(err)
		msg := "Failed to create user: " + err.Error()
		if status == http.StatusInternalServerError {
			h.logger.Error("creating user", "username", req.Username, "error", err)
			msg = "internal error"
		}
		h.writeJSON(w, status, AddUserResponse{Message: msg})
		return
	}

	h.writeJSON(w, http.StatusOK, AddUserResponse{
		Success:  true,
		UserID:   user.ID,
		Username: user.UserName,
		Password: password,
	})
}

func (h *AdminHandler) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.logger.Error("listing users", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, users)
}

// DeleteUserHandler runs the account deletion and returns its report.
func (h *AdminHandler) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.accounts.DeleteUser(r.Context(), r.PathValue("id"))
	if err != nil {
		status := statusFor(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			msg = "Failed to delete user"
		}
		h.writeJSON(w, status, errorResponse{Message: msg})
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func generatePassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
