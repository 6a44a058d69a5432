package domain

import "time"

// AudioChunk is one fixed-duration slice of the local audio track.
// Ownership transfers to the transmit callback; the chunk is discarded
// after one send attempt.
type AudioChunk struct {
	SessionID      SessionID
	ConsultationID ConsultationID
	Index          uint64 // strictly increasing per session, gaps allowed
	CapturedAt     time.Time
	Duration       time.Duration
	Data           []byte
}
