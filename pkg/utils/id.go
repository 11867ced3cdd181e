package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// GenerateID generates a random ID with prefix
func GenerateID(prefix string) string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(b))
}

// GenerateDeviceID generates a unique device ID
func GenerateDeviceID() string {
	return GenerateID("dev")
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return GenerateID("evt")
}

// GenerateStreamSessionID generates an opaque stream session ID
func GenerateStreamSessionID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// GenerateSubscriptionToken generates a unique relay subscription token
func GenerateSubscriptionToken() string {
	return GenerateID("sub")
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", timestamp, hex.EncodeToString(b))
}
