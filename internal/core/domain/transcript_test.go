package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeSegments(t *testing.T) {
	segments := []TranscriptSegment{
		{Text: "Hello, how are you feeling today?", IsFinal: true, StartOffsetMs: 0},
		{Text: "I have been having headaches", IsFinal: true, StartOffsetMs: 4200},
		{Text: "since last", IsFinal: false, StartOffsetMs: 7900},
	}

	merged := MergeSegments(segments)
	assert.Equal(t, "Hello, how are you feeling today? I have been having headaches", merged.FinalText)
	assert.Equal(t, "since last", merged.PartialText)
	assert.True(t, merged.HasPartial())
	assert.Equal(t,
		"Hello, how are you feeling today? I have been having headaches since last",
		merged.Text(),
	)
}

func TestMergeSegmentsPartialReplacedByFinal(t *testing.T) {
	// The next poll returns the former partial as a final segment.
	merged := MergeSegments([]TranscriptSegment{
		{Text: "Hello", IsFinal: true},
		{Text: "since last Tuesday", IsFinal: true},
	})
	assert.Equal(t, "Hello since last Tuesday", merged.FinalText)
	assert.False(t, merged.HasPartial())
	assert.Equal(t, "Hello since last Tuesday", merged.Text())
}

func TestMergeSegmentsEmpty(t *testing.T) {
	merged := MergeSegments(nil)
	assert.Equal(t, "", merged.Text())
	assert.False(t, merged.HasPartial())

	merged = MergeSegments([]TranscriptSegment{{Text: "", IsFinal: true}})
	assert.Equal(t, "", merged.Text())
}

func TestMergeSegmentsPartialOnly(t *testing.T) {
	merged := MergeSegments([]TranscriptSegment{
		{Text: "good mor", IsFinal: false},
	})
	assert.Equal(t, "", merged.FinalText)
	assert.Equal(t, "good mor", merged.Text())
}
