package server

import (
	"encoding/json"
	"net/http"

	"github.com/auto-dns/traefik-cname-sync/internal/core"
	"github.com/auto-dns/traefik-cname-sync/internal/domain"
	"github.com/go-chi/chi/v5"
)

type healthConfig struct {
	TargetDomain        string `json:"target_domain"`
	PollInterval        int    `json:"poll_interval"`
	DeleteDelay         int    `json:"delete_delay"`
	RecordTTL           int    `json:"record_ttl"`
	DeleteFailurePolicy string `json:"delete_failure_policy"`
	Port                int    `json:"port"`
}

type healthResponse struct {
	Status                string       `json:"status"`
	CredentialsConfigured bool         `json:"credentials_configured"`
	Config                healthConfig `json:"config"`
}

type pendingResponse struct {
	Pending []domain.PendingDeletion `json:"pending"`
	Held    []string                 `json:"held"`
}

type containerResponse struct {
	Container domain.Container  `json:"container"`
	Parsed    core.ParsedLabels `json:"parsed"`
}

type retryResponse struct {
	Released []string `json:"released"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func replyJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) replyError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	replyJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	replyJSON(w, http.StatusOK, healthResponse{
		Status:                "ok",
		CredentialsConfigured: s.cfg.Registrar.CredentialsConfigured(),
		Config: healthConfig{
			TargetDomain:        s.cfg.App.TargetDomain,
			PollInterval:        s.cfg.App.PollInterval,
			DeleteDelay:         s.cfg.App.DeleteDelay,
			RecordTTL:           s.cfg.App.RecordTTL,
			DeleteFailurePolicy: s.cfg.App.DeleteFailurePolicy,
			Port:                s.cfg.Server.Port,
		},
	})
}

func (s *Server) getRecords(w http.ResponseWriter, r *http.Request) {
	replyJSON(w, http.StatusOK, s.engine.Records())
}

func (s *Server) getPending(w http.ResponseWriter, r *http.Request) {
	replyJSON(w, http.StatusOK, pendingResponse{
		Pending: s.engine.PendingDeletions(),
		Held:    s.engine.HeldContainers(),
	})
}

func (s *Server) getContainers(w http.ResponseWriter, r *http.Request) {
	views, err := s.engine.Containers(r.Context())
	if err != nil {
		s.replyError(w, r, http.StatusBadGateway, err)
		return
	}
	replyJSON(w, http.StatusOK, views)
}

func (s *Server) getContainer(w http.ResponseWriter, r *http.Request) {
	c, err := s.inspector.InspectContainer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.replyError(w, r, http.StatusNotFound, err)
		return
	}
	replyJSON(w, http.StatusOK, containerResponse{
		Container: c,
		Parsed:    core.ParseLabels(s.cfg.App.LabelPrefix, c.Labels),
	})
}

func (s *Server) postSync(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Sync(r.Context()); err != nil {
		s.replyError(w, r, http.StatusInternalServerError, err)
		return
	}
	replyJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) postRetryDeletions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.engine.RetryFailedDeletions(r.Context())
	if err != nil {
		s.replyError(w, r, http.StatusInternalServerError, err)
		return
	}
	replyJSON(w, http.StatusOK, retryResponse{Released: ids})
}
