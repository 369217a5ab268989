package models

// Speaker identifies who produced a transcript entry.
type Speaker string

const (
	SpeakerUser   Speaker = "user"
	SpeakerModel  Speaker = "model"
	SpeakerSystem Speaker = "system"
)

// TranscriptionEntry is one line of the live assistant transcript.
type TranscriptionEntry struct {
	ID      string  `json:"id"`
	Speaker Speaker `json:"type"`
	Text    string  `json:"text"`
}
