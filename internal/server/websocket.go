package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/onfert/analyst/internal/errors"
	"github.com/onfert/analyst/internal/live"
	"github.com/onfert/analyst/internal/ml"
	"github.com/onfert/analyst/internal/models"
	"github.com/onfert/analyst/internal/view"
)

// Client message types.
const (
	MsgAnalyze   = "analyze"
	MsgSave      = "save_analysis"
	MsgGetReport = "get_report"
	MsgNavigate  = "navigate"
	MsgBack      = "back"
	MsgLiveStart = "live_start"
	MsgLiveStop  = "live_stop"
)

// Server message types.
const (
	MsgAnalysisResult  = "analysis_result"
	MsgAnalysisSaved   = "analysis_saved"
	MsgReport          = "report"
	MsgView            = "view"
	MsgTranscriptEntry = "transcript_entry"
	MsgLiveState       = "live_state"
	MsgError           = "error"
)

const sendBuffer = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the UI is served from the same host
	},
}

// Envelope is the websocket message format in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

type outbound struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type analyzeRequest struct {
	SoilData models.SoilData `json:"soilData"`
	Image    string          `json:"image"` // base64 or data URL
}

type saveRequest struct {
	ID string `json:"id"`
}

type navigateRequest struct {
	View string `json:"view"`
}

// client is one connected UI. Writes go through send so live session
// callbacks never block on the network.
type client struct {
	id     string
	conn   *websocket.Conn
	nav    *view.Navigator
	send   chan outbound
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func (cl *client) enqueue(msg outbound) {
	select {
	case <-cl.done:
	case cl.send <- msg:
	default:
		cl.logger.Warn("client send buffer full, dropping message", slog.String("type", msg.Type))
	}
}

func (cl *client) writeLoop() {
	for {
		select {
		case <-cl.done:
			return
		case msg := <-cl.send:
			if err := cl.conn.WriteJSON(msg); err != nil {
				cl.logger.Debug("error sending message", slog.Any("error", err))
				cl.close()
				return
			}
		}
	}
}

func (cl *client) close() {
	cl.once.Do(func() {
		close(cl.done)
		cl.conn.Close()
	})
}

func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return nil
	}

	cl := &client{
		id:   uuid.NewString(),
		conn: conn,
		nav:  view.NewNavigator(),
		send: make(chan outbound, sendBuffer),
		done: make(chan struct{}),
	}
	cl.logger = s.logger.With(slog.String("client", cl.id))
	s.clients.Store(cl.id, cl)
	defer s.clients.Delete(cl.id)
	defer cl.close()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		cl.writeLoop()
	}()

	cl.enqueue(outbound{Type: MsgView, Data: cl.nav.Snapshot()})
	if s.live != nil {
		cl.enqueue(outbound{Type: MsgLiveState, Data: s.liveResponse(false)})
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				cl.logger.Debug("error reading message", slog.Any("error", err))
			}
			break
		}

		var msg Envelope
		if err := json.Unmarshal(raw, &msg); err != nil {
			cl.logger.Debug("error parsing message", slog.Any("error", err))
			s.sendError(cl, errors.Validation("server.ws", "Formato de mensagem inválido."))
			continue
		}
		s.handleWebSocketMessage(c.Request().Context(), cl, msg)
	}

	// A client that disconnects on the live view ends the conversation.
	if s.live != nil && cl.nav.Current() == view.Live {
		s.live.Stop()
	}
	return nil
}

func (s *Server) handleWebSocketMessage(ctx context.Context, cl *client, msg Envelope) {
	cl.logger.Debug("received message", slog.String("type", msg.Type))
	switch msg.Type {
	case MsgAnalyze:
		s.wsAnalyze(ctx, cl, msg.Data)
	case MsgSave:
		s.wsSave(ctx, cl, msg.Data)
	case MsgGetReport:
		s.wsReport(ctx, cl)
	case MsgNavigate:
		s.wsNavigate(cl, msg.Data)
	case MsgBack:
		cl.nav.Back()
		s.sendView(cl)
	case MsgLiveStart:
		s.wsLiveStart(cl)
	case MsgLiveStop:
		if s.live != nil {
			s.live.Stop()
		}
	default:
		s.sendError(cl, errors.Validation("server.ws", "Tipo de mensagem desconhecido."))
	}
}

func (s *Server) wsAnalyze(ctx context.Context, cl *client, data json.RawMessage) {
	var req analyzeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendError(cl, errors.Validation("server.ws", "Dados da análise inválidos."))
		return
	}

	cl.nav.BeginAnalysis()
	s.sendView(cl)

	image, _, err := ml.DecodeImage(req.Image)
	if err == nil && len(image) == 0 {
		err = errors.Validation("server.ws", noImageMessage)
	}
	var a *models.SavedAnalysis
	if err == nil {
		a, err = s.analysis.Analyze(ctx, req.SoilData, image)
	}
	if err != nil {
		s.reporter.Capture("server", err)
		cl.nav.AnalysisFailed(userMessage(err))
		s.sendError(cl, err)
		s.sendView(cl)
		return
	}

	cl.nav.AnalysisCompleted(a)
	cl.enqueue(outbound{Type: MsgAnalysisResult, Data: a})
	s.sendView(cl)
}

func (s *Server) wsSave(ctx context.Context, cl *client, data json.RawMessage) {
	var req saveRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			s.sendError(cl, errors.Validation("server.ws", "Identificador da análise inválido."))
			return
		}
	}
	if req.ID == "" {
		if current := cl.nav.CurrentAnalysis(); current != nil {
			req.ID = current.ID
		}
	}

	saved, err := s.analysis.Save(ctx, req.ID)
	if err != nil {
		s.reporter.Capture("server", err)
		s.sendError(cl, err)
		return
	}
	cl.nav.Saved()
	cl.enqueue(outbound{Type: MsgAnalysisSaved, Data: saved})
	s.wsReport(ctx, cl)
	s.sendView(cl)
}

func (s *Server) wsReport(ctx context.Context, cl *client) {
	analyses, err := s.analysis.Report(ctx)
	if err != nil {
		s.reporter.Capture("server", err)
		s.sendError(cl, err)
		return
	}
	cl.enqueue(outbound{Type: MsgReport, Data: s.reportResponse(analyses)})
}

func (s *Server) wsNavigate(cl *client, data json.RawMessage) {
	var req navigateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendError(cl, errors.Validation("server.ws", "Tela inválida."))
		return
	}
	target, err := view.Parse(req.View)
	if err != nil {
		s.sendError(cl, err)
		return
	}
	prev, err := cl.nav.Navigate(target)
	if err != nil {
		s.sendError(cl, err)
		return
	}
	if prev == view.Live && target != view.Live && s.live != nil {
		s.live.Stop()
	}
	s.sendView(cl)
}

// wsLiveStart connects in the background so the client can still send
// live_stop while the session is connecting.
func (s *Server) wsLiveStart(cl *client) {
	if s.live == nil {
		s.sendError(cl, errors.New(errors.CategoryConfiguration, "server.live", liveOffMessage, nil))
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.live.Start(s.base); err != nil {
			s.sendError(cl, err)
		}
	}()
}

func (s *Server) sendView(cl *client) {
	cl.enqueue(outbound{Type: MsgView, Data: cl.nav.Snapshot()})
}

func (s *Server) sendError(cl *client, err error) {
	cl.enqueue(outbound{Type: MsgError, Message: userMessage(err)})
}

// broadcastLiveEvent forwards session events to every client.
func (s *Server) broadcastLiveEvent(ev live.Event) {
	var msg outbound
	switch ev.Kind {
	case live.EventEntry:
		msg = outbound{Type: MsgTranscriptEntry, Data: ev.Entry}
	case live.EventState:
		msg = outbound{Type: MsgLiveState, Data: LiveResponse{State: ev.State, Active: ev.State.Active()}}
	default:
		return
	}
	s.clients.Range(func(_, v any) bool {
		v.(*client).enqueue(msg)
		return true
	})
}
