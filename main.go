package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/KathiaMedinaRodriguez23/api-reciclaje/api"
	"github.com/KathiaMedinaRodriguez23/api-reciclaje/camera"
	"github.com/KathiaMedinaRodriguez23/api-reciclaje/classifier"
	"github.com/KathiaMedinaRodriguez23/api-reciclaje/pipeline"
	"github.com/KathiaMedinaRodriguez23/api-reciclaje/stores"
)

var defaultClasses = []string{"cardboard", "glass", "metal", "organic", "paper", "plastic", "trash"}

func main() {
	ctx := context.Background()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if os.Getenv("APP_ENV") == "development" {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	slog.SetDefault(logger)

	err := godotenv.Load(".env", ".env.local")
	if err != nil {
		slog.Info("no dotenv", "err", err)
	}

	modelURI := mustGetEnv("MODEL_URI")
	cacheDir := os.Getenv("MODEL_CACHE_DIR")
	if cacheDir == "" {
		cacheDir = "/tmp/models"
	}

	classes := defaultClasses
	if raw := os.Getenv("CLASS_NAMES"); raw != "" {
		classes = strings.Split(raw, ",")
	}

	model, err := classifier.LoadOrBuild(ctx, classifier.Config{
		ModelURI: modelURI,
		CacheDir: cacheDir,
		Classes:  classes,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer model.Close()

	databaseURL := mustGetEnv("DATABASE_URL")
	records, err := stores.Connect(ctx, databaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer records.Close()

	blobs, err := stores.NewMinioStore(
		mustGetEnv("MINIO_ENDPOINT"),
		mustGetEnv("MINIO_ACCESS_KEY"),
		mustGetEnv("MINIO_SECRET_KEY"),
		mustGetEnv("MINIO_BUCKET"),
		mustGetEnv("MINIO_PUBLIC_URL"),
	)
	if err != nil {
		log.Fatal(err)
	}

	var cam api.Camera
	if command := os.Getenv("CAPTURE_COMMAND"); command != "" {
		cam, err = camera.New(command)
		if err != nil {
			log.Fatal(err)
		}
	}

	srv := api.New(
		pipeline.New(model, blobs, records),
		records,
		cam,
		api.Config{
			APIKey:           os.Getenv("API_KEY"),
			AllowedOrigins:   splitOrigins(os.Getenv("ALLOWED_ORIGINS")),
			Classes:          classes,
			DefaultThreshold: envFloat("DEFAULT_THRESHOLD", 0.5),
			DefaultTopK:      envInt("DEFAULT_TOP_K", len(classes)),
		},
	)

	host := os.Getenv("HOST")
	if host == "" {
		host = "0.0.0.0"
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	httpServer := &http.Server{
		Addr:    host + ":" + port,
		Handler: srv.Mux(),
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		if err := httpServer.Shutdown(context.Background()); err != nil {
			slog.Error("shutdown", "err", err)
		}
	}()

	slog.Info("listening", "addr", httpServer.Addr, "classes", len(classes))
	err = httpServer.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

func mustGetEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("%s not set", key)
	}
	return value
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Fatalf("%s must be a number", key)
	}
	return val
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("%s must be an integer", key)
	}
	return val
}
