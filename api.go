package main

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/oszuidwest/zwfm-voice/internal/livekit"
	"github.com/oszuidwest/zwfm-voice/internal/server"
	"github.com/oszuidwest/zwfm-voice/internal/types"
	"github.com/oszuidwest/zwfm-voice/internal/util"
)

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// requireGet rejects anything but GET and reports whether the request may proceed.
func (s *Server) requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet {
		return true
	}
	w.Header().Set("Allow", http.MethodGet)
	s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// handleAPIConfig returns the public client settings.
// GET /api/config
func (s *Server) handleAPIConfig(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	s.writeJSON(w, http.StatusOK, server.ClientConfig(s.config.Snapshot(), s.gate != nil, s.version.Info()))
}

// handleAPISession returns the current session state.
// GET /api/session
func (s *Server) handleAPISession(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.session.State())
}

// relayQuery is the query of a token relay request.
type relayQuery struct {
	UUID     string `query:"uuid" validate:"required,alphanum,min=4,max=64"`
	Language string `query:"language" validate:"omitempty,bcp47_language_tag"`
}

// handleRelayToken mints a LiveKit token for the room of the correlation id.
// It is the token relay used by the env mode.
// GET /api/connection?uuid=<id>[&language=<tag>]
func (s *Server) handleRelayToken(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}

	cfg := s.config.Snapshot()
	if s.minter == nil || cfg.LiveKitURL == "" {
		s.writeError(w, http.StatusServiceUnavailable, "LiveKit credentials not configured")
		return
	}

	if cfg.RelayServerKey != "" {
		provided := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(cfg.RelayServerKey)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
	}

	q := r.URL.Query()
	req := relayQuery{UUID: q.Get("uuid"), Language: q.Get("language")}
	if err := util.Validate.Struct(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, server.ToValidationError(err))
		return
	}

	token, err := s.minter.MintForCorrelation(req.UUID, req.Language)
	if err != nil {
		slog.Error("failed to mint relay token", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to create token")
		return
	}

	slog.Info("issued relay token", "room", livekit.RoomPrefix+req.UUID, "language", req.Language)
	s.writeJSON(w, http.StatusOK, types.RelayTokenResponse{Token: token, URL: cfg.LiveKitURL})
}
