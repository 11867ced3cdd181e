package domain

import "time"

// StoredCredential is the encrypted-at-rest vendor credential for one
// (user, provider) pair. Envelope holds salt, nonce, auth tag and
// ciphertext as four colon-joined base64 segments; the plaintext never
// touches durable storage.
type StoredCredential struct {
	UserID    UserID
	Provider  Provider
	Envelope  string
	Version   int
	UpdatedAt time.Time
}

// Credentials is the plaintext form handed to a vendor during
// authentication. It exists only in memory.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// Token carries a vendor session/refresh token when the vendor
	// hands one back after login or a two-factor exchange.
	Token string `json:"token,omitempty"`
}
