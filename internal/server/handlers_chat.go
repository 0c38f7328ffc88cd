package server

import (
	"encoding/json"
	"net/http"

	"casegen/internal/util"
	"casegen/pkg/domain"
	"casegen/pkg/export"
)

type createChatRequest struct {
	ProjectID string `json:"projectId"`
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// messageView adds rendered HTML for AI-authored messages.
type messageView struct {
	domain.ChatMessage
	HTML string `json:"html,omitempty"`
}

type chatDetailResponse struct {
	Session  domain.ChatSession `json:"session"`
	Messages []messageView      `json:"messages"`
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req createChatRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	session, err := s.app.CreateChat(user, req.ProjectID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListChats(w http.ResponseWriter, _ *http.Request, user domain.User) {
	sessions, err := s.app.ListChats(user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if sessions == nil {
		sessions = []domain.ChatSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	session, messages, err := s.app.GetChat(user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	views := make([]messageView, 0, len(messages))
	for _, msg := range messages {
		view := messageView{ChatMessage: msg}
		if !msg.IsUser {
			view.HTML = export.RenderHTML(msg.Content)
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, chatDetailResponse{Session: session, Messages: views})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "cuerpo de solicitud invalido")
		return
	}
	msg, err := s.app.SendMessage(r.Context(), user, r.PathValue("id"), req.Message)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageView{ChatMessage: msg, HTML: export.RenderHTML(msg.Content)})
}

// handleStreamChat streams generated lines as text/plain. The request
// context aborts the upstream call when the client disconnects.
func (s *Server) handleStreamChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming no soportado")
		return
	}
	message := r.URL.Query().Get("message")

	started := false
	err := s.app.StreamChat(r.Context(), user, r.PathValue("id"), message, func(line string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write([]byte(line)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if !started {
			writeAppError(w, err)
			return
		}
		// headers are gone; all we can do is cut the stream and log
		util.LoggerFromContext(r.Context()).Warn("chat stream aborted",
			"chat_id", r.PathValue("id"), "error", err.Error())
	}
}

func (s *Server) handleCloseChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	session, err := s.app.CloseChat(user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
