package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/studyhive/contentgen/gemini"
	"github.com/studyhive/contentgen/internal/cache"
	"github.com/studyhive/contentgen/service"
)

type handler struct {
	svc    *service.Service
	cache  *cache.Cache
	logger *zap.Logger
}

func newHandler(svc *service.Service, c *cache.Cache, logger *zap.Logger) http.Handler {
	h := &handler{svc: svc, cache: c, logger: logger.With(zap.String("component", "api"))}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/generate", h.generate)
	mux.HandleFunc("POST /v1/generate/stream", h.generateStream)
	mux.HandleFunc("GET /healthz", h.health)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (h *handler) generate(w http.ResponseWriter, r *http.Request) {
	var req service.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	result, err := h.svc.Generate(r.Context(), req)
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

// generateStream delivers progress as Server-Sent Events: each "delta"
// event carries the full accumulated text so far, the final "done" event
// carries the complete result.
func (h *handler) generateStream(w http.ResponseWriter, r *http.Request) {
	var req service.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	final, err := h.svc.GenerateStream(r.Context(), req, func(full string) {
		writeSSE(w, "delta", full)
		flusher.Flush()
	})
	if err != nil {
		writeSSE(w, "error", err.Error())
		flusher.Flush()
		return
	}

	writeSSE(w, "done", final)
	flusher.Flush()
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["cache"] = err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

func (h *handler) writeError(w http.ResponseWriter, code int, err error) {
	h.logger.Warn("request failed", zap.Int("status", code), zap.Error(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// statusFor maps service errors onto HTTP status codes, passing upstream
// statuses through where the error carries one.
func statusFor(err error) int {
	if ge, ok := err.(*gemini.Error); ok && ge.HTTPStatus >= 400 {
		return ge.HTTPStatus
	}
	return http.StatusInternalServerError
}

// writeSSE emits one event; data must not contain raw newlines, so they are
// JSON-encoded.
func writeSSE(w http.ResponseWriter, event, data string) {
	encoded, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, encoded)
}
