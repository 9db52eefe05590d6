package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/user/tender-scanner/internal/domain"
	"github.com/user/tender-scanner/internal/ingest"
	"github.com/user/tender-scanner/internal/platform"
	"github.com/user/tender-scanner/internal/repository"
	"github.com/user/tender-scanner/internal/usecase"
)

const (
	maxUploadBytes = 64 << 20
	previewSchools = 10
)

type scanRequest struct {
	SchoolIDs []int64 `json:"schoolIds"`
}

type scanResponse struct {
	SessionID    int64  `json:"sessionId"`
	Message      string `json:"message"`
	TotalSchools int    `json:"totalSchools"`
}

type uploadResponse struct {
	Message string          `json:"message"`
	Count   int             `json:"count"`
	Schools []domain.School `json:"schools"`
}

func (s *Server) handleUploadSchools(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	schools, err := s.catalog.ImportDataset(r.Context(), file, header.Filename, header.Header.Get("Content-Type"))
	if errors.Is(err, ingest.ErrInvalidDataset) {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("failed to import dataset", zap.String("file", header.Filename), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to process file")
		return
	}

	preview := schools
	if len(preview) > previewSchools {
		preview = preview[:previewSchools]
	}
	s.respondWithJSON(w, http.StatusOK, uploadResponse{
		Message: "Schools uploaded successfully",
		Count:   len(schools),
		Schools: preview,
	})
}

func (s *Server) handleListSchools(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.SchoolFilter{
		AreaGeografica: q.Get("area"),
		Regione:        q.Get("regione"),
		Province:       splitParam(q.Get("provincia")),
		Search:         q.Get("search"),
	}

	schools, err := s.catalog.ListSchools(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list schools", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to get schools")
		return
	}
	s.respondWithJSON(w, http.StatusOK, schools)
}

func (s *Server) handleGeographicData(w http.ResponseWriter, r *http.Request) {
	data, err := s.catalog.GeographicData(r.Context())
	if err != nil {
		s.logger.Error("failed to get geographic data", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to get geographic data")
		return
	}
	s.respondWithJSON(w, http.StatusOK, data)
}

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := s.scans.StartScan(r.Context(), req.SchoolIDs)
	switch {
	case errors.Is(err, usecase.ErrNoSchools):
		s.respondWithError(w, http.StatusBadRequest, "schoolIds list cannot be empty")
		return
	case errors.Is(err, usecase.ErrShuttingDown):
		s.respondWithError(w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	case err != nil:
		s.logger.Error("failed to start scan", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to start scan")
		return
	}

	s.respondWithJSON(w, http.StatusOK, scanResponse{
		SessionID:    session.ID,
		Message:      "Scan started",
		TotalSchools: session.TotalSchools,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "sessionId"), 10, 64)
	if err != nil {
		s.respondWithError(w, http.StatusNotFound, "Session not found")
		return
	}

	session, err := s.scans.GetSession(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		s.respondWithError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get scan session", zap.Int64("session_id", id), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to get scan progress")
		return
	}
	s.respondWithJSON(w, http.StatusOK, session)
}

func (s *Server) handleListTenders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.TenderFilter{Search: q.Get("search")}

	for _, raw := range splitParam(q.Get("schoolIds")) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.respondWithError(w, http.StatusBadRequest, "Invalid school id: "+raw)
			return
		}
		filter.SchoolIDs = append(filter.SchoolIDs, id)
	}
	if t := q.Get("type"); t != "" {
		switch tt := domain.TenderType(t); tt {
		case domain.TenderBando, domain.TenderGara, domain.TenderAvviso, domain.TenderDetermina:
			filter.Type = tt
		default:
			s.respondWithError(w, http.StatusBadRequest, "Invalid tender type: "+t)
			return
		}
	}
	if p := q.Get("platform"); p != "" {
		tag, ok := platform.Parse(p)
		if !ok {
			s.respondWithError(w, http.StatusBadRequest, "Invalid platform: "+p)
			return
		}
		filter.Platform = tag
	}

	tenders, err := s.catalog.ListTenders(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list tenders", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Failed to get tenders")
		return
	}
	s.respondWithJSON(w, http.StatusOK, tenders)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	healthStatus := map[string]string{"api": "healthy"}
	healthy := true
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			healthStatus[name] = "unhealthy"
			healthy = false
			s.logger.Error("health check failed", zap.String("backend", name), zap.Error(err))
			continue
		}
		healthStatus[name] = "healthy"
	}

	if !healthy {
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

// --- Helper Functions ---

func splitParam(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
		code = http.StatusInternalServerError
		response = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
