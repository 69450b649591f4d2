// Package api exposes image acquisition over HTTP.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jmylchreest/boatimg/internal/logger"
	"github.com/jmylchreest/boatimg/internal/version"
	"github.com/jmylchreest/boatimg/pkg/acquire"
	"github.com/jmylchreest/boatimg/pkg/fetcher"
)

// Preflight response values.
const (
	allowMethods = "GET, POST, OPTIONS"
	allowHeaders = "Content-Type"
)

// Acquirer runs one image acquisition.
type Acquirer interface {
	Acquire(ctx context.Context, req acquire.Request) fetcher.Outcome
}

// Options configures the HTTP handler.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		AllowedOrigins: []string{"*"},
		RequestTimeout: 120 * time.Second,
		MaxBodyBytes:   64 << 10,
	}
}

// ImageRequest is the request body for POST /api/image.
type ImageRequest struct {
	URL string `json:"url"`
}

// ImageResponse is the response body for POST /api/image.
type ImageResponse struct {
	Success     bool   `json:"success"`
	Image       string `json:"image,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Size        int    `json:"size,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Handlers serves the API endpoints.
type Handlers struct {
	acquirer Acquirer
	opts     Options
}

// NewHandlers creates the API handlers.
func NewHandlers(acquirer Acquirer, opts Options) *Handlers {
	def := DefaultOptions()
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = def.AllowedOrigins
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = def.RequestTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = def.MaxBodyBytes
	}
	return &Handlers{acquirer: acquirer, opts: opts}
}

// NewRouter builds the chi router with middleware and routes.
func NewRouter(acquirer Acquirer, opts Options) http.Handler {
	h := NewHandlers(acquirer, opts)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.opts.RequestTimeout))

	// Preflights pass through to Preflight so the advertised methods and
	// headers are fixed rather than echoed.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     h.opts.AllowedOrigins,
		AllowedMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"Content-Type"},
		OptionsPassthrough: true,
		MaxAge:             300,
	}))

	r.Get("/health", h.Health)
	r.Options("/health", h.Preflight)

	r.Route("/api", func(r chi.Router) {
		r.Post("/", h.Image)
		r.Options("/", h.Preflight)
		r.Post("/image", h.Image)
		r.Options("/image", h.Preflight)
	})

	return r
}

// Image handles POST /api/image.
func (h *Handlers) Image(w http.ResponseWriter, r *http.Request) {
	var req ImageRequest
	body := http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	out := h.acquirer.Acquire(r.Context(), acquire.Request{URL: req.URL})
	if !out.Success {
		status := http.StatusInternalServerError
		if out.Kind == fetcher.KindInvalidRequest || errors.Is(out.Err, fetcher.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		logger.Warn("image request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"url", req.URL,
			"kind", out.Kind,
			"status", status)
		h.respondError(w, status, out.Message())
		return
	}

	h.respondJSON(w, http.StatusOK, ImageResponse{
		Success:     true,
		Image:       DataURL(out.ContentType, out.Bytes),
		ContentType: out.ContentType,
		Size:        out.Size,
	})
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.String(),
	})
}

// Preflight answers CORS OPTIONS requests.
func (h *Handlers) Preflight(w http.ResponseWriter, r *http.Request) {
	headers := w.Header()
	if headers.Get("Access-Control-Allow-Origin") == "" && h.allowsAnyOrigin() {
		headers.Set("Access-Control-Allow-Origin", "*")
	}
	headers.Set("Access-Control-Allow-Methods", allowMethods)
	headers.Set("Access-Control-Allow-Headers", allowHeaders)
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) allowsAnyOrigin() bool {
	for _, o := range h.opts.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

// DataURL encodes body as a base64 data URL.
func DataURL(contentType string, body []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(body)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ImageResponse{Success: false, Error: message})
}

// requestLogger logs one line per request through the process logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Info("http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"remote", r.RemoteAddr,
			"elapsed", time.Since(start))
	})
}
