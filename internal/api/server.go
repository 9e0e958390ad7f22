package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/config"
	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/db"
	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/mmwave"
	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/monitoring"
	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/units"
)

// ANSI escape codes for request log colouring
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes the capture pipeline over HTTP. The database is optional;
// endpoints needing it return 404 when it is absent. Velocities are stored in
// m/s and converted to the configured units on output.
type Server struct {
	pipeline *mmwave.Pipeline
	db       *db.DB
	units    string
}

func NewServer(pipeline *mmwave.Pipeline, database *db.DB, velocityUnits string) *Server {
	if !units.IsValid(velocityUnits) {
		velocityUnits = units.MPS
	}
	return &Server{
		pipeline: pipeline,
		db:       database,
		units:    velocityUnits,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/points", s.listPoints)
	mux.HandleFunc("/api/humans", s.listHumans)
	mux.HandleFunc("/api/humans/history", s.listHumanHistory)
	mux.HandleFunc("/api/batches/history", s.listBatchHistory)
	mux.HandleFunc("/api/params", s.handleParams)
	mux.HandleFunc("/api/start", s.startCapture)
	mux.HandleFunc("/api/stop", s.stopCapture)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := json.NewEncoder(w).Encode(s.pipeline.Stats()); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write status")
		return
	}
}

func (s *Server) listPoints(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 0 // whole display buffer
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	points := s.pipeline.Points(limit)
	if points == nil {
		points = []mmwave.ClassifiedPoint{}
	}
	for i := range points {
		points[i].Velocity = units.ConvertVelocity(points[i].Velocity, s.units)
	}
	if err := json.NewEncoder(w).Encode(points); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write points")
		return
	}
}

func (s *Server) listHumans(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	humans := s.pipeline.Humans()
	if humans == nil {
		humans = []mmwave.HumanSummary{}
	}
	if err := json.NewEncoder(w).Encode(humans); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write humans")
		return
	}
}

func (s *Server) listHumanHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusNotFound, "Persistence not configured")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	records, err := s.db.RecentHumans(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve human history: %v", err))
		return
	}
	if records == nil {
		records = []db.HumanRecord{}
	}
	if err := json.NewEncoder(w).Encode(records); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write human history")
		return
	}
}

func (s *Server) listBatchHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusNotFound, "Persistence not configured")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	records, err := s.db.RecentBatches(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve batch history: %v", err))
		return
	}
	if records == nil {
		records = []db.BatchRecord{}
	}
	if err := json.NewEncoder(w).Encode(records); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write batch history")
		return
	}
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		// Fall through to the shared response below.
	case http.MethodPost:
		patch := config.EmptyTuningConfig()
		if err := json.NewDecoder(r.Body).Decode(patch); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid params JSON: %v", err))
			return
		}
		if err := patch.Validate(); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid params: %v", err))
			return
		}
		// Partial update: only the fields present in the body change.
		s.pipeline.SetParams(patch.ApplyTo(s.pipeline.Params()))
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := json.NewEncoder(w).Encode(config.FromParams(s.pipeline.Params())); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write params")
		return
	}
}

func (s *Server) startCapture(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.pipeline.Start(); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to start capture: %v", err))
		return
	}
	json.NewEncoder(w).Encode(map[string]string{
		"status": "started",
		"run_id": s.pipeline.RunID(),
	})
}

func (s *Server) stopCapture(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.pipeline.Stop()
	json.NewEncoder(w).Encode(map[string]string{"status": "stopped"})
}
