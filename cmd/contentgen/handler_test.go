package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studyhive/contentgen/gemini"
	"github.com/studyhive/contentgen/service"
)

type stubUpstream struct {
	text string
	err  error
}

func (s *stubUpstream) GenerateText(ctx context.Context, prompt string, _ gemini.GenerateOptions) (string, error) {
	return s.text, s.err
}

func (s *stubUpstream) StreamText(ctx context.Context, prompt string, _ gemini.GenerateOptions, onDelta func(string)) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if onDelta != nil {
		onDelta(s.text)
	}
	return s.text, nil
}

func newTestHandler(t *testing.T, up service.Upstream) http.Handler {
	t.Helper()
	svc, err := service.New(service.Options{Upstream: up, Logger: zap.NewNop()})
	require.NoError(t, err)
	return newHandler(svc, nil, zap.NewNop())
}

func TestHandler_Generate(t *testing.T) {
	h := newTestHandler(t, &stubUpstream{text: "study notes"})

	req := httptest.NewRequest(http.MethodPost, "/v1/generate",
		strings.NewReader(`{"kind":"note","source":"lecture"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "study notes")
}

func TestHandler_Generate_BadJSON(t *testing.T) {
	h := newTestHandler(t, &stubUpstream{})

	req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Generate_UpstreamStatusPassthrough(t *testing.T) {
	h := newTestHandler(t, &stubUpstream{
		err: &gemini.Error{Code: gemini.ErrRateLimited, Message: "slow down", HTTPStatus: http.StatusTooManyRequests},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/generate",
		strings.NewReader(`{"kind":"note","source":"lecture"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHandler_GenerateStream(t *testing.T) {
	h := newTestHandler(t, &stubUpstream{text: "streamed text"})

	req := httptest.NewRequest(http.MethodPost, "/v1/generate/stream",
		strings.NewReader(`{"kind":"note","source":"lecture"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "event: delta")
	assert.Contains(t, body, "event: done")
	assert.Contains(t, body, `"streamed text"`)
}

func TestHandler_Health(t *testing.T) {
	h := newTestHandler(t, &stubUpstream{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestHandler_Metrics(t *testing.T) {
	h := newTestHandler(t, &stubUpstream{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
