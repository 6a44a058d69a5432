package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// SessionIDRegex validates session ID format.
	SessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// ParticipantIDRegex validates participant ID format.
	ParticipantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

// ValidateSessionID validates a signaling session identifier.
func ValidateSessionID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("session_id is required")
	}
	if len(id) > 128 {
		return fmt.Errorf("session_id is too long (max 128 characters)")
	}
	if !SessionIDRegex.MatchString(id) {
		return fmt.Errorf("session_id contains invalid characters")
	}
	return nil
}

// ValidateParticipantID validates a participant identifier.
func ValidateParticipantID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("participant_id is required")
	}
	if len(id) > 128 {
		return fmt.Errorf("participant_id is too long (max 128 characters)")
	}
	if !ParticipantIDRegex.MatchString(id) {
		return fmt.Errorf("participant_id contains invalid characters")
	}
	return nil
}

// ValidateSDP performs a basic shape check on a session description.
func ValidateSDP(sdp string) error {
	if sdp == "" {
		return fmt.Errorf("sdp is required")
	}
	if len(sdp) > 256*1024 {
		return fmt.Errorf("sdp is too large")
	}
	if !strings.HasPrefix(sdp, "v=") {
		return fmt.Errorf("sdp must start with a version line")
	}
	return nil
}

// ValidateICECandidate performs a basic shape check on a candidate line.
func ValidateICECandidate(candidate string) error {
	if candidate == "" {
		return fmt.Errorf("candidate is required")
	}
	if len(candidate) > 4096 {
		return fmt.Errorf("candidate is too large")
	}
	return nil
}
