package http

import (
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ai-speech-interaction-service/internal/app"
)

//go:embed static/*
var staticFiles embed.FS

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: application.Cfg.HTTP.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Handle("/metrics", promhttp.HandlerFor(application.Gatherer, promhttp.HandlerOpts{}))

	// API routes
	r.Route("/v1", func(r chi.Router) {
		if limit := application.Cfg.HTTP.RateLimit; limit > 0 {
			r.Use(httprate.LimitByIP(limit, time.Minute))
		}
		r.Get("/capabilities", capabilitiesHandler(application))
		r.Get("/voice/ws", newVoiceHandler(application).ServeHTTP)
	})

	staticFS, _ := fs.Sub(staticFiles, "static")
	r.Handle("/*", http.FileServer(http.FS(staticFS)))

	return r
}

type capabilitiesResponse struct {
	Recognition         bool   `json:"recognition"`
	Synthesis           bool   `json:"synthesis"`
	RecognitionProvider string `json:"recognitionProvider"`
	SynthesisProvider   string `json:"synthesisProvider"`
}

func capabilitiesHandler(application *app.Application) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		rec, syn := application.Providers.Available()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(capabilitiesResponse{
			Recognition:         rec,
			Synthesis:           syn,
			RecognitionProvider: application.Cfg.Recognition.Provider,
			SynthesisProvider:   application.Cfg.Synthesis.Provider,
		})
	}
}
