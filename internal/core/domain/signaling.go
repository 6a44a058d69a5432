package domain

// SignalKind discriminates the signaling message union.
type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice"
)

// SignalMessage is one relayed signaling payload. Exactly one of SDP or
// Candidate is populated depending on Kind. Messages are ordered per
// sender only; duplicate delivery must be tolerated by consumers.
type SignalMessage struct {
	Kind      SignalKind    `json:"type"`
	SessionID SessionID     `json:"session_id"`
	From      ParticipantID `json:"from"`
	To        ParticipantID `json:"to"`
	SDP       string        `json:"sdp,omitempty"`
	Candidate string        `json:"candidate,omitempty"`
	Seq       uint64        `json:"seq,omitempty"`
}
