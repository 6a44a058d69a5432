package domain

import "strings"

// TranscriptSegment is one unit of transcription output. Final segments
// are immutable once received; a partial segment is replaced wholesale by
// the next poll's partial for the same time region.
type TranscriptSegment struct {
	Text          string `json:"text"`
	IsFinal       bool   `json:"is_final"`
	StartOffsetMs int64  `json:"start_offset_ms"`
}

// LiveTranscript is the merged view of one poll response: all final
// segments in arrival order, then at most one in-progress suffix.
type LiveTranscript struct {
	FinalText   string
	PartialText string
}

// Text returns the full display text, partial suffix included.
func (t LiveTranscript) Text() string {
	if t.PartialText == "" {
		return t.FinalText
	}
	if t.FinalText == "" {
		return t.PartialText
	}
	return t.FinalText + " " + t.PartialText
}

// HasPartial reports whether an in-progress suffix is present.
func (t LiveTranscript) HasPartial() bool {
	return t.PartialText != ""
}

// MergeSegments builds a LiveTranscript from a full poll response:
// final segments concatenate in the order returned, the last partial
// segment (if any) becomes the in-progress suffix.
func MergeSegments(segments []TranscriptSegment) LiveTranscript {
	var finals []string
	partial := ""
	for _, seg := range segments {
		if seg.Text == "" {
			continue
		}
		if seg.IsFinal {
			finals = append(finals, seg.Text)
		} else {
			partial = seg.Text
		}
	}
	return LiveTranscript{
		FinalText:   strings.Join(finals, " "),
		PartialText: partial,
	}
}
