package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/labelscan/internal/pipeline"
	"github.com/MeKo-Tech/labelscan/internal/scan"
	"github.com/MeKo-Tech/labelscan/internal/utils"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	// Pending frames per connection; the scan session only reads the newest.
	wsFrameBuffer = 8
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ScanFrameRequest is a client message on /ws/scan. Binary messages are
// treated as a bare encoded image frame.
type ScanFrameRequest struct {
	Type    string `json:"type"` // "frame" (default) or "stop"
	Name    string `json:"name,omitempty"`
	Image   []byte `json:"image,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// ScanMessage is a server message on /ws/scan.
type ScanMessage struct {
	Type      string                `json:"type"` // started, result, error, done
	RequestID string                `json:"request_id,omitempty"`
	Frame     string                `json:"frame,omitempty"`
	Outcome   *pipeline.OutcomeView `json:"outcome,omitempty"`
	At        string                `json:"at,omitempty"`
	Stats     *scan.Stats           `json:"stats,omitempty"`
	Error     string                `json:"error,omitempty"`
	ErrorType string                `json:"error_type,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// lockedWriter serializes writes from the read loop and the scan session.
type lockedWriter struct {
	mu   sync.Mutex
	conn WebSocketConnWriter
}

func (l *lockedWriter) WriteMessage(messageType int, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteMessage(messageType, data)
}

// scanWebSocketHandler runs a continuous scan session fed by frames the
// client streams over the connection. Query parameter stop_on_resolved
// overrides the configured default.
func (s *Server) scanWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	opts := s.scan
	if v := r.URL.Query().Get("stop_on_resolved"); v != "" {
		stop, err := strconv.ParseBool(v)
		if err != nil {
			s.writeErrorResponse(w, "Invalid stop_on_resolved", http.StatusBadRequest)
			return
		}
		opts.StopOnResolved = stop
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	requestID := RequestID(r.Context())
	s.logger.Info("Scan WebSocket connection established", "remote_addr", r.RemoteAddr, "request_id", requestID)

	s.runScanSession(r.Context(), conn, requestID, opts)
}

// runScanSession wires the connection to a scan session and blocks until
// the session ends and the read loop has exited.
func (s *Server) runScanSession(ctx context.Context, conn *websocket.Conn, requestID string, opts scan.Options) {
	out := &lockedWriter{conn: conn}
	logger := s.logger.With("request_id", requestID)

	frames := make(chan scan.Frame, wsFrameBuffer)
	src := scan.NewChannelSource(frames, nil)

	opts.Logger = logger
	opts.OnResult = func(res scan.Result) {
		view := res.Outcome.View()
		recordOutcome("ws_scan", view.Result.Kind)
		s.sendScanMessage(out, ScanMessage{
			Type:      "result",
			RequestID: requestID,
			Frame:     res.Frame,
			Outcome:   &view,
			At:        res.At.UTC().Format(time.RFC3339Nano),
		})
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	session := scan.Start(sessCtx, src, s.scanHandler(), opts)

	s.sendScanMessage(out, ScanMessage{Type: "started", RequestID: requestID})

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer close(frames)
		s.readScanFrames(conn, out, frames, session)
	}()

	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-readerDone:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	<-session.Done()

	stats := session.Stats()
	done := ScanMessage{Type: "done", RequestID: requestID, Stats: &stats}
	if err := session.Err(); err != nil {
		done.Error = err.Error()
		done.ErrorType = "scan_error"
	}
	s.sendScanMessage(out, done)
	if n := src.Dropped(); n > 0 {
		websocketFramesDropped.Add(float64(n))
	}
	logger.Info("Scan session ended", "attempts", stats.Attempts, "skipped", stats.Skipped,
		"duplicates", stats.Duplicates, "dropped", src.Dropped(), "error", session.Err())

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "scan finished"),
		time.Now().Add(time.Second))
	_ = conn.Close()
	<-readerDone
}

// readScanFrames forwards client frames to the session until the connection
// closes or the client asks to stop.
func (s *Server) readScanFrames(conn *websocket.Conn, out WebSocketConnWriter, frames chan<- scan.Frame, session *scan.Session) {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	seq := 0
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("Scan WebSocket read ended", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		websocketMessagesTotal.WithLabelValues("received").Inc()
		seq++

		frame, stop, err := decodeScanFrame(messageType, data, seq)
		switch {
		case stop:
			// Stop waits for the session; run it off the read loop so the
			// loop keeps draining until the connection is closed.
			go session.Stop()
			continue
		case err != nil:
			s.sendScanError(out, "invalid_frame", err.Error())
			continue
		}

		select {
		case frames <- frame:
		default:
			websocketFramesDropped.Inc()
		}
	}
}

// decodeScanFrame turns one client message into a frame. stop is set for
// an explicit stop request.
func decodeScanFrame(messageType int, data []byte, seq int) (scan.Frame, bool, error) {
	name := fmt.Sprintf("frame-%d", seq)

	if messageType == websocket.BinaryMessage {
		img, _, err := utils.DecodeImage(bytes.NewReader(data))
		if err != nil {
			return scan.Frame{}, false, fmt.Errorf("failed to decode image: %w", err)
		}
		return scan.Frame{Name: name, Image: img}, false, nil
	}

	var req ScanFrameRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return scan.Frame{}, false, fmt.Errorf("failed to parse request: %w", err)
	}
	switch req.Type {
	case "stop":
		return scan.Frame{}, true, nil
	case "", "frame":
	default:
		return scan.Frame{}, false, fmt.Errorf("unsupported message type: %s", req.Type)
	}

	if req.Name != "" {
		name = req.Name
	}
	frame := scan.Frame{Name: name, Payload: req.Payload}
	if len(req.Image) > 0 {
		img, _, err := utils.DecodeImage(bytes.NewReader(req.Image))
		if err != nil {
			return scan.Frame{}, false, fmt.Errorf("failed to decode image: %w", err)
		}
		frame.Image = img
	}
	if frame.Image == nil && frame.Payload == "" {
		return scan.Frame{}, false, fmt.Errorf("frame %s has neither image nor payload", name)
	}
	return frame, false, nil
}

// scanHandler resolves a frame against a fresh catalog snapshot.
func (s *Server) scanHandler() scan.Handler {
	return scan.CatalogHandler(s.pipeline, s.catalog, pipeline.SourceCamera)
}

// sendScanMessage sends a message over WebSocket.
func (s *Server) sendScanMessage(conn WebSocketConnWriter, msg ScanMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("Failed to marshal WebSocket message", "error", err)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug("Failed to send WebSocket message", "type", msg.Type, "error", err)
		return
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendScanError sends an error message over WebSocket.
func (s *Server) sendScanError(conn WebSocketConnWriter, errorType, message string) {
	s.sendScanMessage(conn, ScanMessage{Type: "error", Error: message, ErrorType: errorType})
}
