package domain

import "errors"

var (
	ErrAuthRejected         = errors.New("vendor rejected credentials")
	ErrChallengeRequired    = errors.New("vendor requires a second factor")
	ErrNoPendingChallenge   = errors.New("no pending challenge")
	ErrDecryptionFailed     = errors.New("credential decryption failed")
	ErrVendorUnavailable    = errors.New("vendor temporarily unavailable")
	ErrInvalidStreamRequest = errors.New("invalid stream request")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrSessionNotFound      = errors.New("session not found")
	ErrCredentialNotFound   = errors.New("stored credential not found")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrStreamNotFound       = errors.New("stream session not found")
	ErrUserNotFound         = errors.New("user not found")
)
