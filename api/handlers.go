package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/KathiaMedinaRodriguez23/api-reciclaje/pipeline"
	"github.com/KathiaMedinaRodriguez23/api-reciclaje/stores"
)

const maxUploadBytes = 10 << 20

type healthResponse struct {
	Status      string   `json:"status"`
	ModelLoaded bool     `json:"model_loaded"`
	Classes     []string `json:"classes"`
	NumClasses  int      `json:"num_classes"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		ModelLoaded: true,
		Classes:     s.cfg.Classes,
		NumClasses:  len(s.cfg.Classes),
	})
}

type predictResponse struct {
	Label string             `json:"label"`
	Probs map[string]float32 `json:"probs"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Expected multipart form upload", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "No file provided. Use 'file' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if ct := header.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		http.Error(w, "Unsupported media type", http.StatusUnsupportedMediaType)
		return
	}

	imageBytes, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read upload", http.StatusBadRequest)
		return
	}
	if len(imageBytes) == 0 {
		http.Error(w, "Empty file", http.StatusBadRequest)
		return
	}

	// threshold and top_k are accepted and validated but do not alter
	// the response shape.
	if _, err := queryFloat(r, "threshold", s.cfg.DefaultThreshold); err != nil {
		http.Error(w, "threshold must be a number", http.StatusBadRequest)
		return
	}
	if _, err := queryInt(r, "top_k", s.cfg.DefaultTopK); err != nil {
		http.Error(w, "top_k must be an integer", http.StatusBadRequest)
		return
	}

	s.respondPrediction(w, r, imageBytes)
}

// handleCapture grabs one frame from the local camera and feeds it
// through the same pipeline as an uploaded image.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	frame, err := s.camera.Capture(r.Context())
	if err != nil {
		slog.Error("camera capture", "err", err)
		http.Error(w, "Capture failed", http.StatusInternalServerError)
		return
	}
	s.respondPrediction(w, r, frame)
}

func (s *Server) respondPrediction(w http.ResponseWriter, r *http.Request, imageBytes []byte) {
	res, err := s.pipeline.Run(r.Context(), imageBytes)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidImage) {
			http.Error(w, "Invalid image", http.StatusBadRequest)
			return
		}
		slog.Error("prediction failed", "err", err)
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, predictResponse{Label: res.Label, Probs: res.Probs})
}

func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		limit = val
	}

	records, err := s.records.List(r.Context(), limit, r.URL.Query().Get("start_after_iso"))
	if err != nil {
		slog.Error("list predictions", "err", err)
		http.Error(w, "Listing failed", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []stores.Record{}
	}

	writeJSON(w, http.StatusOK, records)
}

func queryFloat(r *http.Request, key string, fallback float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
