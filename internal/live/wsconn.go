package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onfert/analyst/internal/errors"
)

// WSDialer connects to the BidiGenerateContent websocket endpoint.
type WSDialer struct {
	Endpoint string
	APIKey   string
	Dialer   *websocket.Dialer
	Logger   *slog.Logger
}

type setupMessage struct {
	Setup setupPayload `json:"setup"`
}

type setupPayload struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *systemContent   `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type systemContent struct {
	Parts []Part `json:"parts"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	Audio Blob `json:"audio"`
}

// Dial opens the websocket, sends the setup message and waits for
// setupComplete. Failures are connection errors.
func (d *WSDialer) Dial(ctx context.Context, setup SetupConfig) (Conn, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	u, err := url.Parse(d.Endpoint)
	if err != nil {
		return nil, errors.Connection("live.dial", fmt.Errorf("invalid endpoint: %w", err))
	}
	if d.APIKey != "" {
		q := u.Query()
		q.Set("key", d.APIKey)
		u.RawQuery = q.Encode()
	}

	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, errors.Connection("live.dial", err)
	}

	// Abort the handshake if ctx ends before setupComplete.
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	model := setup.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	msg := setupMessage{Setup: setupPayload{
		Model:                    model,
		GenerationConfig:         generationConfig{ResponseModalities: []string{"AUDIO"}},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}}
	if setup.SystemPrompt != "" {
		msg.Setup.SystemInstruction = &systemContent{Parts: []Part{{Text: setup.SystemPrompt}}}
	}
	if err := ws.WriteJSON(msg); err != nil {
		ws.Close()
		return nil, errors.Connection("live.setup", err)
	}

	c := &wsConn{ws: ws, logger: logger}
	for {
		m, err := c.Recv()
		if err != nil {
			ws.Close()
			if ctx.Err() != nil {
				return nil, errors.Connection("live.setup", ctx.Err())
			}
			return nil, errors.Connection("live.setup", err)
		}
		if m.SetupComplete != nil {
			break
		}
		logger.Debug("ignoring message before setupComplete")
	}

	if !stop() {
		// ctx ended after setupComplete arrived; the socket is already closed.
		return nil, errors.Connection("live.setup", ctx.Err())
	}
	logger.Info("live session established", slog.String("model", model))
	return c, nil
}

type wsConn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	logger    *slog.Logger
}

// SendAudio sends one realtime audio blob.
func (c *wsConn) SendAudio(blob Blob) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(realtimeInputMessage{RealtimeInput: realtimeInput{Audio: blob}}); err != nil {
		return errors.Connection("live.send", err)
	}
	return nil
}

// Recv reads the next message. Text and binary frames both carry JSON.
func (c *wsConn) Recv() (*ServerMessage, error) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrRemoteClosed
			}
			return nil, errors.Connection("live.recv", err)
		}
		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("dropping unparseable live message", slog.Any("error", err))
			continue
		}
		return &msg, nil
	}
}

// Close sends a close frame and closes the socket. It is safe to call more
// than once.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		// WriteControl may run concurrently with a blocked SendAudio.
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}
