// Package api maps the HTTP surface onto the prediction pipeline and
// the record store.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/KathiaMedinaRodriguez23/api-reciclaje/pipeline"
	"github.com/KathiaMedinaRodriguez23/api-reciclaje/stores"
)

// Pipeline runs one prediction request end to end.
type Pipeline interface {
	Run(ctx context.Context, imageBytes []byte) (pipeline.Result, error)
}

// Camera captures one JPEG frame from a local device.
type Camera interface {
	Capture(ctx context.Context) ([]byte, error)
}

type Config struct {
	APIKey           string
	AllowedOrigins   []string
	Classes          []string
	DefaultThreshold float64
	DefaultTopK      int
}

// Server holds every dependency a request handler needs. It is built
// once at startup and passed around explicitly instead of living in
// package globals.
type Server struct {
	pipeline Pipeline
	records  stores.RecordStore
	camera   Camera // nil disables /capture
	cfg      Config
}

func New(pl Pipeline, records stores.RecordStore, cam Camera, cfg Config) *Server {
	return &Server{pipeline: pl, records: records, camera: cam, cfg: cfg}
}

func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /predict", s.requireAPIKey(s.handlePredict))
	mux.HandleFunc("GET /predictions", s.requireAPIKey(s.handleListPredictions))
	if s.camera != nil {
		mux.HandleFunc("POST /capture", s.requireAPIKey(s.handleCapture))
	}

	return s.cors(mux)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.allowOrigin(r.Header.Get("Origin")))
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, x-api-key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowOrigin(origin string) string {
	if len(s.cfg.AllowedOrigins) == 0 {
		return "*"
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if allowed == origin {
			return origin
		}
	}
	return s.cfg.AllowedOrigins[0]
}

// requireAPIKey gates a route on the x-api-key header. An absent key
// configuration disables the check.
func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get("x-api-key") != s.cfg.APIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "err", err)
	}
}
