package live

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/onfert/analyst/internal/models"
)

// Transcript is the append-only list of entries of the current session.
type Transcript struct {
	mu      sync.RWMutex
	entries []models.TranscriptionEntry
}

// Append adds one entry and returns it.
func (t *Transcript) Append(speaker models.Speaker, text string) models.TranscriptionEntry {
	entry := models.TranscriptionEntry{
		ID:      uuid.NewString(),
		Speaker: speaker,
		Text:    text,
	}
	t.mu.Lock()
	t.entries = append(t.entries, entry)
	t.mu.Unlock()
	return entry
}

// Entries returns a copy of the entries in order.
func (t *Transcript) Entries() []models.TranscriptionEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.TranscriptionEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Clear removes all entries.
func (t *Transcript) Clear() {
	t.mu.Lock()
	t.entries = nil
	t.mu.Unlock()
}

// turnText accumulates the partial transcriptions of the current turn. It is
// owned by the receive loop.
type turnText struct {
	user  strings.Builder
	model strings.Builder
}

type flushed struct {
	speaker models.Speaker
	text    string
}

func (a *turnText) addInput(s string)  { a.user.WriteString(s) }
func (a *turnText) addOutput(s string) { a.model.WriteString(s) }

// flush returns the non-blank caller and model texts, caller first, and
// resets both.
func (a *turnText) flush() []flushed {
	var out []flushed
	if text := a.user.String(); strings.TrimSpace(text) != "" {
		out = append(out, flushed{models.SpeakerUser, text})
	}
	if text := a.model.String(); strings.TrimSpace(text) != "" {
		out = append(out, flushed{models.SpeakerModel, text})
	}
	a.discard()
	return out
}

func (a *turnText) discard() {
	a.user.Reset()
	a.model.Reset()
}
