package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"parley/internal/api"
	"parley/internal/config"
)

var client = &http.Client{Timeout: 10 * time.Second}

// AddUser asks the running server's admin API to create a user and prints
// the generated password.
func AddUser(username string, cfg *config.Config, out io.Writer) error {
	reqBody, err := json.Marshal(api.AddUserRequest{Username: username})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s/admin/users", cfg.AdminAddr)
	resp, err := client.Post(url, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to add user (Status: %d): %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var result api.AddUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Fprintf(out, "\nUser Created Successfully!\n")
	fmt.Fprintf(out, "User ID:   %s\n", result.UserID)
	fmt.Fprintf(out, "Username:  %s\n", result.Username)
	fmt.Fprintf(out, "Password:  %s\n\n", result.Password)
	fmt.Fprintf(out, "Log in at %s and change the password.\n", cfg.BaseURL)
	return nil
}

// DeleteUser removes an account through the admin API and prints the report.
func DeleteUser(userID string, cfg *config.Config, out io.Writer) error {
	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("http://%s/admin/users/%s", cfg.AdminAddr, userID), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to delete user (Status: %d): %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	fmt.Fprintf(out, "User %s deleted: %s\n", userID, bytes.TrimSpace(body))
	return nil
}
