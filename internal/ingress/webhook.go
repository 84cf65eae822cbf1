// Package ingress is the thin HTTP entry point leads arrive through. It
// authenticates with a shared secret header, does the minimal shape
// validation the engine requires, and hands the lead straight to
// assignment.Engine.Assign. Full ingestion transport concerns — retries,
// batching, schema evolution — are out of scope; this is intentionally as
// small as net/http lets it be.
package ingress

import (
    "encoding/json"
    "net/http"
    "time"

    "github.com/gorilla/mux"

    "github.com/hamzaKhattat/lead-router-core/internal/assignment"
    "github.com/hamzaKhattat/lead-router-core/internal/models"
    "github.com/hamzaKhattat/lead-router-core/pkg/errors"
    "github.com/hamzaKhattat/lead-router-core/pkg/logger"
)

// Config holds webhook server settings.
type Config struct {
    ListenAddress string
    SharedSecret  string
    HeaderName    string
}

// Server is the lead-ingestion HTTP endpoint.
type Server struct {
    config Config
    engine *assignment.Engine
    server *http.Server
}

func NewServer(config Config, engine *assignment.Engine) *Server {
    if config.HeaderName == "" {
        config.HeaderName = "X-Webhook-Secret"
    }

    s := &Server{config: config, engine: engine}

    router := mux.NewRouter()
    router.HandleFunc("/leads", s.handleLead).Methods(http.MethodPost)

    s.server = &http.Server{
        Addr:         config.ListenAddress,
        Handler:      router,
        ReadTimeout:  10 * time.Second,
        WriteTimeout: 10 * time.Second,
    }

    return s
}

func (s *Server) Start() error {
    logger.WithField("addr", s.config.ListenAddress).Info("ingestion webhook started")
    return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
    return s.server.Close()
}

// leadPayload is the wire shape accepted from ingress.
type leadPayload struct {
    Name            string            `json:"name"`
    Phone           string            `json:"phone"`
    SourceTimestamp time.Time         `json:"source_timestamp"`
    LeadSource      string            `json:"lead_source"`
    City            string            `json:"city"`
    State           string            `json:"state"`
    Metadata        map[string]string `json:"metadata"`
}

func (s *Server) handleLead(w http.ResponseWriter, r *http.Request) {
    if s.config.SharedSecret != "" && r.Header.Get(s.config.HeaderName) != s.config.SharedSecret {
        writeError(w, http.StatusUnauthorized, errors.New(errors.ErrAuthFailed, "invalid webhook secret"))
        return
    }

    var payload leadPayload
    if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
        writeError(w, http.StatusBadRequest, errors.Wrap(err, errors.ErrValidation, "malformed lead payload"))
        return
    }

    if payload.Phone == "" {
        writeError(w, http.StatusBadRequest, errors.New(errors.ErrValidation, "phone is required"))
        return
    }
    if payload.SourceTimestamp.IsZero() {
        writeError(w, http.StatusBadRequest, errors.New(errors.ErrValidation, "source_timestamp is required"))
        return
    }

    metadata := make(models.JSON, len(payload.Metadata))
    for k, v := range payload.Metadata {
        metadata[k] = v
    }

    outcome, err := s.engine.Assign(r.Context(), assignment.LeadInput{
        Name:            payload.Name,
        Phone:           payload.Phone,
        SourceTimestamp: payload.SourceTimestamp,
        LeadSource:      payload.LeadSource,
        City:            payload.City,
        State:           payload.State,
        Metadata:        metadata,
    })
    if err != nil {
        writeError(w, http.StatusInternalServerError, err)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(http.StatusOK)
    json.NewEncoder(w).Encode(outcome)
}

func writeError(w http.ResponseWriter, status int, err error) {
    logger.WithError(err).Warn("ingestion request rejected")
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
