package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/editactf/engine/internal/sessionstate"
	"github.com/editactf/engine/internal/shell"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TerminalMessage is the wire format of the terminal websocket, both
// directions. Type selects which other fields are meaningful.
type TerminalMessage struct {
	Type       string   `json:"type"`
	Data       string   `json:"data,omitempty"`
	Line       string   `json:"line,omitempty"`
	Clear      bool     `json:"clear,omitempty"`
	OpenURL    string   `json:"open_url,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
}

// handleTerminalWS runs one terminal session over a websocket. The client
// sends "command", "complete", "history" and "auth" messages; the server
// answers each in turn. One read loop serializes all interpreter access.
func (s *Server) handleTerminalWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	session := sessionstate.NewFacade(s.service)
	interp := shell.NewInterpreter(s.service, session, slog.Default())

	ctx := r.Context()
	if token := r.URL.Query().Get("token"); token != "" {
		if user, err := s.service.UserForToken(ctx, token); err == nil {
			session.SetAuth(user, token)
			if err := session.Refresh(ctx); err != nil {
				slog.Warn("session refresh failed", "error", err)
			}
		}
	}

	if entries, err := s.history.Load(ctx, s.historyKey(sessionID, session)); err == nil {
		interp.History().Restore(entries)
	} else {
		slog.Warn("failed to load terminal history", "error", err, "session_id", sessionID)
	}

	slog.Info("terminal connected", "session_id", sessionID, "authenticated", session.Authenticated())

	s.sendTerminalMessage(conn, TerminalMessage{
		Type: "connected",
		Data: fmt.Sprintf("Welcome to EditaCTF. Type 'help' to get started.\nSession: %s", sessionID),
	})
	s.sendPrompt(conn, interp)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket read error", "error", err)
			}
			break
		}

		var msg TerminalMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Debug("invalid message format", "error", err)
			continue
		}

		switch msg.Type {
		case "command":
			res, err := interp.Execute(ctx, msg.Data)
			if err != nil {
				slog.Error("command failed", "error", err)
				s.sendTerminalError(conn, "command failed")
				break
			}
			if err := s.history.Save(ctx, s.historyKey(sessionID, session), interp.History().Entries()); err != nil {
				slog.Warn("failed to save terminal history", "error", err, "session_id", sessionID)
			}
			s.sendTerminalMessage(conn, TerminalMessage{
				Type:    "result",
				Data:    res.Output,
				Clear:   res.Clear,
				OpenURL: res.OpenURL,
			})
			s.sendPrompt(conn, interp)

		case "complete":
			line, candidates := interp.Complete(msg.Data)
			s.sendTerminalMessage(conn, TerminalMessage{
				Type:       "completion",
				Line:       line,
				Candidates: candidates,
			})

		case "history":
			var entry string
			var ok bool
			switch msg.Data {
			case "prev":
				entry, ok = interp.History().Prev(msg.Line)
			case "next":
				entry, ok = interp.History().Next()
			}
			if ok {
				s.sendTerminalMessage(conn, TerminalMessage{Type: "history", Line: entry})
			}

		case "auth":
			s.handleTerminalAuth(conn, r, msg.Data, session, interp)

		default:
			slog.Debug("unknown terminal message type", "type", msg.Type)
		}
	}

	slog.Info("terminal disconnected", "session_id", sessionID)
}

// handleTerminalAuth switches the connection's identity mid-session: a token
// signs in, an empty token signs out.
func (s *Server) handleTerminalAuth(conn *websocket.Conn, r *http.Request, token string, session *sessionstate.Facade, interp *shell.Interpreter) {
	if token == "" {
		session.ClearAuth()
		s.sendTerminalMessage(conn, TerminalMessage{Type: "result", Data: "Signed out."})
		s.sendPrompt(conn, interp)
		return
	}

	user, err := s.service.UserForToken(r.Context(), token)
	if err != nil {
		s.sendTerminalError(conn, "invalid or expired token")
		return
	}
	session.SetAuth(user, token)
	if err := session.Refresh(r.Context()); err != nil {
		slog.Warn("session refresh failed", "error", err)
	}
	s.sendTerminalMessage(conn, TerminalMessage{Type: "result", Data: "Signed in as " + user.Email + "."})
	s.sendPrompt(conn, interp)
}

// historyKey prefers a stable per-user key so history follows a player
// across devices; anonymous sessions fall back to the browser session id.
func (s *Server) historyKey(sessionID string, session *sessionstate.Facade) string {
	if user := session.User(); user != nil {
		return "user:" + user.ID
	}
	return "anon:" + sessionID
}

func (s *Server) sendPrompt(conn *websocket.Conn, interp *shell.Interpreter) {
	s.sendTerminalMessage(conn, TerminalMessage{Type: "prompt", Data: interp.Prompt()})
}

func (s *Server) sendTerminalMessage(conn *websocket.Conn, msg TerminalMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal terminal message", "error", err)
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send terminal message", "error", err)
		return err
	}
	return nil
}

func (s *Server) sendTerminalError(conn *websocket.Conn, message string) {
	s.sendTerminalMessage(conn, TerminalMessage{
		Type: "error",
		Data: message,
	})
}
