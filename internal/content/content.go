package content

import (
	"bytes"
	"errors"
	"html"
	"net/mail"
	"regexp"
	"strings"

	"github.com/h2non/filetype"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"parley/internal/models"
)

var (
	policy        = bluemonday.UGCPolicy()
	strict        = bluemonday.StrictPolicy()
	markdown      = goldmark.New()
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// Sanitize removes unsafe HTML from the input string using a UGC policy.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// StripTags removes all markup and returns plain text. Used for names that
// are shown as text, so entities are decoded again.
func StripTags(input string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(input)))
}

// Render converts markdown message text to sanitized HTML. Stored text stays
// as sent; only this view is cleaned.
func Render(input string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(input), &buf); err != nil {
		return "", err
	}
	return Sanitize(buf.String()), nil
}

const previewRunes = 120

// Preview is the short notification body for a message.
func Preview(text string, typ models.MessageType) string {
	if typ != models.MessageTypeText {
		return "Sent an attachment: " + text
	}
	if r := []rune(text); len(r) > previewRunes {
		return string(r[:previewRunes]) + "…"
	}
	return text
}

// ValidateUsername checks if the username contains only allowed characters
// (alphanumeric, dot, dash, underscore) and is not empty.
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username cannot be empty")
	}
	if len(username) > 64 {
		return errors.New("username is too long")
	}
	if !usernameRegex.MatchString(username) {
		return errors.New("username contains invalid characters (allowed: alphanumeric, dot, dash, underscore)")
	}
	return nil
}

// ValidateEmail accepts a bare address, no display name.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return errors.New("invalid email address")
	}
	if addr.Address != email {
		return errors.New("email must be a bare address")
	}
	return nil
}

// ClassifyUpload sniffs the first bytes of an upload. The declared MIME type is
// kept when the content is not recognised.
func ClassifyUpload(head []byte, declared string) (string, models.MessageType) {
	mimeType := declared
	if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
		mimeType = kind.MIME.Value
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if filetype.IsImage(head) || strings.HasPrefix(mimeType, "image/") {
		return mimeType, models.MessageTypeImage
	}
	return mimeType, models.MessageTypeFile
}
