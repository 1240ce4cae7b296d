package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type validateResponse struct {
	SessionID string `json:"sessionId"`
	IsValid   bool   `json:"isValid"`
}

type extendResponse struct {
	Message   string    `json:"message"`
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		s.writeError(w, r, apiErr)
		return
	}

	sess, err := s.d.Sessions.Create(r.Context(), req.UserID, req.Metadata)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+sess.SessionID)
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionId")
	if apiErr := validatePathID("sessionId", id, maxSessionID); apiErr != nil {
		s.writeError(w, r, apiErr)
		return
	}

	sess, err := s.d.Sessions.Get(r.Context(), id)
	if err != nil {
		s.writeSessionError(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) sessionAction(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("action") != "validate" {
		writeAPIError(w, r, &APIError{Status: http.StatusNotFound, Code: CodeGeneral, Message: "No route for " + r.Method + " " + r.URL.Path})
		return
	}
	s.validateSession(w, r)
}

func (s *Server) validateSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionId")
	if apiErr := validatePathID("sessionId", id, maxSessionID); apiErr != nil {
		s.writeError(w, r, apiErr)
		return
	}

	ok, err := s.d.Sessions.Validate(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{SessionID: id, IsValid: ok})
}

func (s *Server) extendSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionId")
	if apiErr := validatePathID("sessionId", id, maxSessionID); apiErr != nil {
		s.writeError(w, r, apiErr)
		return
	}
	var req extendSessionRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		s.writeError(w, r, apiErr)
		return
	}

	sess, err := s.d.Sessions.Extend(r.Context(), id, req.AdditionalMinutes)
	if err != nil {
		s.writeSessionError(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusOK, extendResponse{
		Message:   "Session extended successfully",
		SessionID: sess.SessionID,
		ExpiresAt: sess.ExpiresAt,
	})
}

func (s *Server) listUserSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if apiErr := validatePathID("userId", userID, maxUserID); apiErr != nil {
		s.writeError(w, r, apiErr)
		return
	}

	list, err := s.d.Sessions.ListByUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionId")
	if apiErr := validatePathID("sessionId", id, maxSessionID); apiErr != nil {
		s.writeError(w, r, apiErr)
		return
	}

	existed, err := s.d.Sessions.Delete(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !existed {
		s.writeError(w, r, sessionNotFound(id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeSessionError(w http.ResponseWriter, r *http.Request, id string, err error) {
	if e := toAPIError(err); e.Code == CodeSessionNotFound {
		zerolog.Ctx(r.Context()).Info().Str("session_id", id).Msg("session not found")
		writeAPIError(w, r, sessionNotFound(id))
		return
	}
	s.writeError(w, r, err)
}
