package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c-pro/geche"
	"golang.org/x/crypto/bcrypt"

	"parley/internal/models"
)

const (
	DefaultTokenExpiry = 12 * time.Hour
	loginFailedMessage = "Login failed"
)

var ErrInvalidToken = errors.New("invalid token")

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	UserID      string `json:"userId,omitempty"`
	Token       string `json:"token,omitempty"`
	TokenExpiry int64  `json:"tokenExpiry,omitempty"`
}

// CredentialStore resolves a login name to the stored bcrypt hash.
type CredentialStore interface {
	Credentials(ctx context.Context, username string) (userID, hash string, err error)
}

type attempts struct {
	Failed int64
	Last   int64
}

type Config struct {
	TokenExpiry time.Duration
}

func (c *Config) Validate() error {
	if c.TokenExpiry < 0 {
		return errors.New("token expiry must not be negative")
	}
	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}
	return nil
}

type AuthService struct {
	Config
	creds CredentialStore
	// Consecutive failed logins per username, to throttle brute force.
	failures   *geche.Locker[string, *attempts]
	liveTokens geche.Geche[string, string]
	userTokens *geche.Locker[string, []string]
	now        func() time.Time
}

func NewAuthService(ctx context.Context, config Config, creds CredentialStore) (*AuthService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &AuthService{
		Config:     config,
		creds:      creds,
		failures:   geche.NewLocker[string, *attempts](geche.NewMapCache[string, *attempts]()),
		liveTokens: geche.NewMapTTLCache[string, string](ctx, config.TokenExpiry, time.Minute),
		userTokens: geche.NewLocker[string, []string](geche.NewMapCache[string, []string]()),
		now:        time.Now,
	}, nil
}

// HashPassword returns the bcrypt hash stored with the user record.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%w: hash password: %v", models.ErrInternal, err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (as *AuthService) Login(ctx context.Context, req LoginRequest) LoginResponse {
	now := as.now()
	tx := as.failures.Lock()
	defer tx.Unlock()

	state, err := tx.Get(req.Username)
	if err != nil {
		state = &attempts{}
		tx.Set(req.Username, state)
	}

	if state.Failed > 3 {
		nextAttempt := state.Last + 30*(state.Failed*state.Failed)
		if now.Unix() < nextAttempt {
			return LoginResponse{
				Message: fmt.Sprintf("Too many failed login attempts. Next attempt in %d seconds", nextAttempt-now.Unix()),
			}
		}
	}

	userID, hash, err := as.creds.Credentials(ctx, req.Username)
	if err != nil || !CheckPassword(hash, req.Password) {
		state.Failed++
		state.Last = now.Unix()
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			slog.Error("credential lookup failed", "username", req.Username, "error", err)
		}
		return LoginResponse{Message: loginFailedMessage}
	}

	token, err := as.Issue(userID)
	if err != nil {
		slog.Error("login failed", "user_id", userID, "error", err)
		return LoginResponse{Message: "internal error"}
	}
	_ = tx.Del(req.Username)

	return LoginResponse{
		Success:     true,
		UserID:      userID,
		Token:       token,
		TokenExpiry: now.Unix() + int64(as.TokenExpiry.Seconds()),
	}
}

// Issue creates a session token for the user.
func (as *AuthService) Issue(userID string) (string, error) {
	token, err := as.generateToken()
	if err != nil {
		return "", err
	}
	as.liveTokens.Set(token, userID)

	tx := as.userTokens.Lock()
	defer tx.Unlock()
	tokens, _ := tx.Get(userID)
	tx.Set(userID, append(tokens, token))
	return token, nil
}

func (as *AuthService) Logoff(token string) error {
	return as.liveTokens.Del(token)
}

// RevokeUser drops every session of the user.
func (as *AuthService) RevokeUser(userID string) {
	tx := as.userTokens.Lock()
	defer tx.Unlock()
	tokens, err := tx.Get(userID)
	if err != nil {
		return
	}
	for _, token := range tokens {
		_ = as.liveTokens.Del(token)
	}
	_ = tx.Del(userID)
}

func (as *AuthService) GetUserID(token string) (string, error) {
	userID, err := as.liveTokens.Get(token)
	if err != nil {
		return "", ErrInvalidToken
	}
	return userID, nil
}

func (as *AuthService) generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
