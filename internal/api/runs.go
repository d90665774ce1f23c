package api

import (
	"errors"
	"net/http"

	"cgr/internal/storage"

	"github.com/go-chi/chi/v5"
)

const (
	pageSize    = 20
	maxPageSize = 100
)

type healthResponse struct {
	Status string `json:"status"`
}

type listRunsResponse struct {
	Runs   []*storage.Run `json:"runs"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type listReportsResponse struct {
	RunID   string                 `json:"run_id"`
	Reports []storage.ReportRecord `json:"reports"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.history.Stats(r.Context())
	if err != nil {
		s.log.WithError(err).Error("get stats")
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", pageSize)
	offset := queryInt(r, "offset", 0)
	if limit <= 0 || limit > maxPageSize {
		limit = pageSize
	}
	if offset < 0 {
		offset = 0
	}

	runs, total, err := s.history.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.log.WithError(err).Error("list runs")
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*storage.Run{}
	}

	s.writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.history.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.log.WithError(err).Error("get run")
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.history.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.log.WithError(err).Error("get run")
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	reports, err := s.history.ListReports(r.Context(), id)
	if err != nil {
		s.log.WithError(err).Error("list reports")
		s.writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if reports == nil {
		reports = []storage.ReportRecord{}
	}
	s.writeJSON(w, http.StatusOK, listReportsResponse{RunID: id, Reports: reports})
}
