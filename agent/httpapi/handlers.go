package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contactx "github.com/tanpawarit/goal-agent/agent/contact"
	contractx "github.com/tanpawarit/goal-agent/agent/contract"
	"github.com/tanpawarit/goal-agent/agent/control"
)

const signatureHeader = "Upstash-Signature"

type prospectRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Role    string `json:"role"`
}

type goalRequest struct {
	Name     string          `json:"name"`
	Interval int64           `json:"interval"`
	Prospect prospectRequest `json:"prospect"`
}

func (r goalRequest) submission() control.Submission {
	return control.Submission{
		GoalType: strings.TrimSpace(r.Name),
		Interval: time.Duration(r.Interval) * time.Second,
		Contact: contactx.Identity{
			Name:    r.Prospect.Name,
			Email:   r.Prospect.Email,
			Company: r.Prospect.Company,
			Role:    r.Prospect.Role,
		},
	}
}

type inboxRequest struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmitGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid goal body"})
		return
	}

	if err := s.goals.Submit(req.submission()); err != nil {
		if errors.Is(err, contractx.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		log.Error().Err(err).Str("goal", req.Name).Msg("submit goal failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "goal could not be started"})
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	names := s.goals.List()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable body"})
		return
	}

	if s.verifier != nil && s.verifier.VerifiesSignatures() {
		if err := s.verifier.Verify(r.Header.Get(signatureHeader), body, s.clock()); err != nil {
			log.Warn().Err(err).Msg("inbound reply rejected")
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid signature"})
			return
		}
	}

	var req inboxRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid reply body"})
		return
	}

	reply := contractx.Reply{ID: req.ID, From: req.From, Body: req.Body, ReceivedAt: req.ReceivedAt}
	if err := s.inbox.Insert(r.Context(), reply); err != nil {
		if errors.Is(err, contractx.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		log.Error().Err(err).Str("reply_id", req.ID).Msg("store inbound reply failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "reply could not be stored"})
		return
	}

	log.Debug().Str("reply_id", req.ID).Str("email", req.From).Msg("inbound reply stored")
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response failed")
	}
}
