// Package live runs the real-time voice conversation with the hosted model:
// microphone capture and upload, transcript accumulation, scheduled playback
// of the model's audio and barge-in handling.
package live

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateInterrupted // open, current model turn cut off by the caller
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateInterrupted:
		return "interrupted"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Active reports whether a session is starting or running.
func (s State) Active() bool {
	return s == StateConnecting || s == StateOpen || s == StateInterrupted
}
