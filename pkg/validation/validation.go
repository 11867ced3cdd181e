package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// EmailRegex validates email format
	EmailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// SessionIDRegex validates stream session id format
	SessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// SegmentNameRegex validates a media segment filename: a single path
	// component with an extension, nothing else.
	SegmentNameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// ValidateEmail validates email address
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 254 {
		return fmt.Errorf("email is too long (max 254 characters)")
	}
	if !EmailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateUsername validates username
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(username) < 3 {
		return fmt.Errorf("username must be at least 3 characters")
	}
	if len(username) > 50 {
		return fmt.Errorf("username is too long (max 50 characters)")
	}
	if !regexp.MustCompile(`^[a-zA-Z0-9_-]+$`).MatchString(username) {
		return fmt.Errorf("username contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidatePassword validates password
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}
	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	if len(password) > 128 {
		return fmt.Errorf("password is too long (max 128 characters)")
	}
	return nil
}

// ValidateStreamSessionID validates a stream session id
func ValidateStreamSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if len(sessionID) > 100 {
		return fmt.Errorf("session id is too long (max 100 characters)")
	}
	if !SessionIDRegex.MatchString(sessionID) {
		return fmt.Errorf("invalid session id format")
	}
	return nil
}

// ValidateSegmentName validates a media segment filename. It rejects any
// path separator or parent-directory sequence before the name is joined
// to a session directory.
func ValidateSegmentName(name string) error {
	if name == "" {
		return fmt.Errorf("filename is required")
	}
	if len(name) > 255 {
		return fmt.Errorf("filename is too long (max 255 characters)")
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("filename must not contain path separators")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("filename must not contain parent-directory sequences")
	}
	if !SegmentNameRegex.MatchString(name) {
		return fmt.Errorf("invalid filename format")
	}
	return nil
}

// ValidateChallengeCode validates a vendor two-factor code
func ValidateChallengeCode(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("challenge code is required")
	}
	if len(code) < 4 || len(code) > 12 {
		return fmt.Errorf("challenge code must be between 4 and 12 characters")
	}
	if !regexp.MustCompile(`^[0-9]+$`).MatchString(code) {
		return fmt.Errorf("challenge code must be numeric")
	}
	return nil
}

// ValidateDeviceName validates a device display name
func ValidateDeviceName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("device name is required")
	}
	if len(name) > 100 {
		return fmt.Errorf("device name is too long (max 100 characters)")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("device name contains invalid characters")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}
