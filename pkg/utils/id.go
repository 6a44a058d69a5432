package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// GenerateID generates a random ID with a prefix.
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

// GenerateSessionID generates a unique call session ID.
func GenerateSessionID() string {
	return GenerateID("session")
}

// GenerateConsultationID generates a unique consultation ID.
func GenerateConsultationID() string {
	return GenerateID("consult")
}

// GenerateParticipantID generates a unique participant ID.
func GenerateParticipantID() string {
	return GenerateID("participant")
}

// DeriveSessionID derives a deterministic session ID from a participant
// pair. Both ends compute the same ID regardless of argument order.
func DeriveSessionID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	sum := sha256.Sum256([]byte(a + ":" + b))
	return "session_" + hex.EncodeToString(sum[:8])
}
