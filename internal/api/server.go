// Package api exposes searches, their progress and their leads over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/pipeline"
	"github.com/sells-group/leadscout/internal/scorer"
	"github.com/sells-group/leadscout/internal/store"
)

// Submitter starts a pipeline run in the background.
type Submitter interface {
	Submit(ctx context.Context, t model.Trigger) error
}

// Server holds the handler dependencies.
type Server struct {
	store       store.Store
	runner      Submitter
	corsOrigins []string
}

// New creates a Server.
func New(st store.Store, runner Submitter, corsOrigins []string) *Server {
	return &Server{store: st, runner: runner, corsOrigins: corsOrigins}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-User-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/searches", s.createSearch)
		r.Get("/searches", s.listSearches)
		r.Get("/searches/{id}", s.getSearch)
		r.Get("/searches/{id}/leads", s.listLeads)
		r.Get("/leads/{id}/score", s.explainScore)
	})

	return r
}

type createSearchRequest struct {
	UserID         string `json:"user_id"`
	Location       string `json:"location"`
	Industry       string `json:"industry"`
	Radius         string `json:"radius"`
	RadiusMeters   int    `json:"radius_meters"`
	RequestedCount int    `json:"requested_count"`
}

type createSearchResponse struct {
	SearchID string `json:"search_id"`
	Status   string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type leadsResponse struct {
	SearchID string       `json:"search_id"`
	Count    int          `json:"count"`
	Leads    []model.Lead `json:"leads"`
}

type scoreResponse struct {
	LeadID string `json:"lead_id"`
	scorer.Breakdown
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("api: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createSearch(w http.ResponseWriter, r *http.Request) {
	var req createSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Location) == "" {
		writeError(w, http.StatusBadRequest, "location is required")
		return
	}
	if req.UserID == "" {
		req.UserID = r.Header.Get("X-User-ID")
	}
	if req.Radius != "" {
		meters, err := model.ParseRadius(req.Radius)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.RadiusMeters = meters
	}

	t := model.Trigger{
		UserID:         req.UserID,
		Location:       req.Location,
		Industry:       req.Industry,
		RadiusMeters:   req.RadiusMeters,
		RequestedCount: req.RequestedCount,
	}.Normalize()

	sr := &model.SearchRequest{
		UserID:         t.UserID,
		Location:       t.Location,
		Industry:       t.Industry,
		RadiusMeters:   t.RadiusMeters,
		RequestedCount: t.RequestedCount,
	}
	if err := s.store.CreateSearch(r.Context(), sr); err != nil {
		zap.L().Error("api: create search", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create search")
		return
	}

	if err := s.runner.Submit(r.Context(), sr.Trigger()); err != nil {
		zap.L().Error("api: submit search", zap.String("search_id", sr.ID), zap.Error(err))
		if ferr := s.store.FailSearch(context.WithoutCancel(r.Context()), sr.ID, "not started: "+err.Error(), true); ferr != nil {
			zap.L().Warn("api: mark unstarted search failed", zap.String("search_id", sr.ID), zap.Error(ferr))
		}
		status := http.StatusServiceUnavailable
		if errors.Is(err, pipeline.ErrAlreadyRunning) {
			status = http.StatusConflict
		}
		writeError(w, status, "could not start search")
		return
	}

	zap.L().Info("api: search accepted",
		zap.String("search_id", sr.ID),
		zap.String("location", sr.Location),
		zap.String("industry", sr.Industry),
	)
	writeJSON(w, http.StatusAccepted, createSearchResponse{
		SearchID: sr.ID,
		Status:   string(model.SearchStatusProcessing),
	})
}

func (s *Server) listSearches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.SearchFilter{
		UserID: q.Get("user_id"),
		Status: model.SearchStatus(q.Get("status")),
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	searches, err := s.store.ListSearches(r.Context(), f)
	if err != nil {
		s.storeError(w, "list searches", err)
		return
	}
	if searches == nil {
		searches = []model.SearchRequest{}
	}
	writeJSON(w, http.StatusOK, searches)
}

func (s *Server) getSearch(w http.ResponseWriter, r *http.Request) {
	sr, err := s.store.GetSearch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, "get search", err)
		return
	}
	writeJSON(w, http.StatusOK, sr.View())
}

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetSearch(r.Context(), id); err != nil {
		s.storeError(w, "get search", err)
		return
	}
	leads, err := s.store.ListLeads(r.Context(), id)
	if err != nil {
		s.storeError(w, "list leads", err)
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	writeJSON(w, http.StatusOK, leadsResponse{SearchID: id, Count: len(leads), Leads: leads})
}

func (s *Server) explainScore(w http.ResponseWriter, r *http.Request) {
	lead, err := s.store.GetLead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, "get lead", err)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{
		LeadID:    lead.ID,
		Breakdown: scorer.Explain(scorer.InputFromLead(*lead)),
	})
}

func (s *Server) storeError(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	zap.L().Error("api: "+action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid")
	}
	return n, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}
