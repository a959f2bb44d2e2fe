package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/editactf/engine/internal/auth"
	"github.com/editactf/engine/internal/ctf"
	"github.com/editactf/engine/internal/models"
	"github.com/editactf/engine/internal/storage"
	"github.com/editactf/engine/internal/vfs"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondRaw serves unwrapped content. The filesystem's source URLs point
// here, so the body must be exactly the file's content.
func respondRaw(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// Catalog handlers

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	respondRaw(w, "text/plain; charset=utf-8", []byte(s.service.Rules()))
}

// handleChallenges serves three shapes: ?id= returns one challenge as raw
// JSON, ?hint= returns the hint as text, and no query returns the wrapped
// listing.
func (s *Server) handleChallenges(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("hint"); id != "" {
		hint, ok := s.service.Hint(id)
		if !ok {
			respondError(w, http.StatusNotFound, "not_found", "unknown challenge id")
			return
		}
		if hint == "" {
			hint = "No hint available for this challenge."
		}
		respondRaw(w, "text/plain; charset=utf-8", []byte(hint))
		return
	}

	if id := r.URL.Query().Get("id"); id != "" {
		c, ok := s.service.Challenge(id)
		if !ok {
			respondError(w, http.StatusNotFound, "not_found", "unknown challenge id")
			return
		}
		body, err := json.Marshal(c)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to encode challenge")
			return
		}
		respondRaw(w, "application/json", body)
		return
	}

	respondJSON(w, http.StatusOK, s.service.Challenges())
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := s.service.Leaderboard(r.Context())
	if err != nil {
		slog.Error("failed to load leaderboard", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load leaderboard")
		return
	}
	if rows == nil {
		rows = []models.LeaderboardRow{}
	}
	body, err := json.Marshal(rows)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to encode leaderboard")
		return
	}
	respondRaw(w, "application/json", body)
}

func (s *Server) handleTeams(w http.ResponseWriter, r *http.Request) {
	rows, err := s.service.Teams(r.Context())
	if err != nil {
		slog.Error("failed to load teams", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load teams")
		return
	}
	if rows == nil {
		rows = []models.TeamsRow{}
	}
	body, err := json.Marshal(rows)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to encode teams")
		return
	}
	respondRaw(w, "application/json", body)
}

// handleFs returns the node at ?path=, children included for directories.
// Inline file content is served as-is; deferred content stays behind its
// source URL.
func (s *Server) handleFs(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}

	node, ok := vfs.Resolve(s.service.Root(), path)
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "no such file or directory")
		return
	}
	respondJSON(w, http.StatusOK, node)
}

// Session handlers

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Summary(r.Context(), UserFromContext(r.Context()))
	if err != nil {
		slog.Error("failed to build summary", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to build summary")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	user, err := s.service.Register(r.Context(), req.Email, req.Password)
	if errors.Is(err, storage.ErrEmailTaken) {
		respondError(w, http.StatusConflict, "email_taken", "email already registered")
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	token, user, err := s.service.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}
	if err != nil {
		slog.Error("login failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "login failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

// Scoring handlers

type flagRequest struct {
	ChallengeID string `json:"challenge_id"`
	Flag        string `json:"flag"`
}

func (s *Server) handleSubmitFlag(w http.ResponseWriter, r *http.Request) {
	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	result, err := s.service.Submit(r.Context(), UserFromContext(r.Context()), req.ChallengeID, req.Flag)
	if err != nil {
		slog.Error("flag submission failed", "error", err, "challenge_id", req.ChallengeID)
		respondError(w, http.StatusInternalServerError, "internal_error", "submission failed")
		return
	}

	status := http.StatusOK
	if result.State == models.SubmissionRateLimited {
		status = http.StatusTooManyRequests
	}
	respondJSON(w, status, result)
}

// Profile and team handlers

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSetDisplayName(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	err := s.service.SetDisplayName(r.Context(), UserFromContext(r.Context()), req.Name)
	switch {
	case errors.Is(err, ctf.ErrInvalidDisplayName):
		respondError(w, http.StatusBadRequest, "validation_error", "display names are 3-32 characters of letters, digits, spaces, '.', '_' or '-'")
	case errors.Is(err, storage.ErrDisplayNameTaken):
		respondError(w, http.StatusConflict, "name_taken", "display name already taken")
	case err != nil:
		slog.Error("failed to set display name", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to set display name")
	default:
		respondJSON(w, http.StatusOK, map[string]string{"name": req.Name})
	}
}

type teamRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req teamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	err := s.service.CreateTeam(r.Context(), UserFromContext(r.Context()), req.Name, req.Password)
	switch {
	case errors.Is(err, ctf.ErrInvalidTeamName):
		respondError(w, http.StatusBadRequest, "validation_error", "team names are 3-32 characters of a-z, 0-9, ':', '_' or '-'")
	case errors.Is(err, storage.ErrTeamExists):
		respondError(w, http.StatusConflict, "team_exists", "team already exists")
	case err != nil:
		slog.Error("failed to create team", "error", err, "team", req.Name)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to create team")
	default:
		respondJSON(w, http.StatusCreated, map[string]string{"name": req.Name})
	}
}

func (s *Server) handleJoinTeam(w http.ResponseWriter, r *http.Request) {
	var req teamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	err := s.service.JoinTeam(r.Context(), UserFromContext(r.Context()), req.Name, req.Password)
	switch {
	case errors.Is(err, storage.ErrTeamNotFound):
		respondError(w, http.StatusNotFound, "not_found", "team not found")
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, http.StatusForbidden, "invalid_credentials", "wrong team password")
	case err != nil:
		slog.Error("failed to join team", "error", err, "team", req.Name)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to join team")
	default:
		respondJSON(w, http.StatusOK, map[string]string{"name": req.Name})
	}
}

func (s *Server) handleLeaveTeam(w http.ResponseWriter, r *http.Request) {
	if err := s.service.LeaveTeam(r.Context(), UserFromContext(r.Context())); err != nil {
		slog.Error("failed to leave team", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to leave team")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"team": "individual"})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	payload, err := s.service.Export(r.Context(), UserFromContext(r.Context()))
	if err != nil {
		slog.Error("export failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "export failed")
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="editactf-export.json"`)
	respondRaw(w, "application/json", []byte(payload))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Reload(r.Context()); err != nil {
		slog.Error("catalog reload failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "reload failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"challenges": len(s.service.Challenges())})
}
