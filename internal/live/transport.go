package live

import (
	"context"
	stderrors "errors"
)

// ErrRemoteClosed is returned by Conn.Recv when the endpoint closed the
// session normally.
var ErrRemoteClosed = stderrors.New("live: connection closed by remote")

// SetupConfig is sent once when the session opens.
type SetupConfig struct {
	Model        string
	SystemPrompt string
}

// Dialer opens a session with the live endpoint. Dial returns after the
// endpoint acknowledged the setup.
type Dialer interface {
	Dial(ctx context.Context, setup SetupConfig) (Conn, error)
}

// Conn is one open live session. SendAudio and Recv may be called from
// different goroutines; Close unblocks both.
type Conn interface {
	SendAudio(blob Blob) error
	Recv() (*ServerMessage, error)
	Close() error
}

// Blob is base64 encoded inline media.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ServerMessage is one message from the endpoint. Exactly one field is set.
type ServerMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	GoAway        *GoAway        `json:"goAway,omitempty"`
}

// ServerContent carries model output and turn signals.
type ServerContent struct {
	ModelTurn           *Content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
}

// Content is a model turn.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// Part is a piece of a model turn.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Transcription is an incremental piece of transcribed speech.
type Transcription struct {
	Text string `json:"text"`
}

// GoAway announces that the endpoint will close the session soon.
type GoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}
