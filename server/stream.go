package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Swind/go-task-bench/core"
)

// StreamMessage is one websocket frame of /api/dispatch/stream.
type StreamMessage struct {
	Type    string            `json:"type"` // outcome | summary | error
	Outcome *core.Outcome     `json:"outcome,omitempty"`
	Failure string            `json:"failure,omitempty"`
	Summary *core.BatchResult `json:"summary,omitempty"`
	State   core.StreamState  `json:"state,omitempty"`
	Error   string            `json:"error,omitempty"`
}

const writeWait = 5 * time.Second

// handleStream writes every outcome as it settles, then a summary, then closes.
// ?recover=<text> turns failures into successes carrying text.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	count, err := s.sizeParam(r, "count", 10)
	if err != nil {
		s.sendError(w, err)
		return
	}
	policy := core.Propagate()
	if placeholder := r.URL.Query().Get("recover"); placeholder != "" {
		policy = core.RecoverWith(placeholder)
	}

	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", core.F("error", err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// A read error means the client went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	run, err := s.bench.StreamOutcomes(ctx, count, policy)
	if err != nil {
		s.writeMessage(conn, StreamMessage{Type: "error", Error: err.Error()})
		return
	}

	for out := range run.Outcomes() {
		msg := StreamMessage{Type: "outcome", Outcome: &out, Failure: out.FailureText()}
		if err := s.writeMessage(conn, msg); err != nil {
			s.logger.Debug("stream client gone", core.F("error", err))
			break
		}
	}

	result, err := run.Collect()
	if err != nil {
		s.writeMessage(conn, StreamMessage{Type: "error", State: run.State(), Error: err.Error()})
		return
	}
	s.writeMessage(conn, StreamMessage{Type: "summary", Summary: &result, State: run.State()})
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream settled"),
		time.Now().Add(writeWait))
}

func (s *Server) writeMessage(conn *websocket.Conn, msg StreamMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
