// Package service routes generation requests: prompt construction, the
// single-request or batch path, record caching, and persistence.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/studyhive/contentgen/batch"
	"github.com/studyhive/contentgen/content"
	"github.com/studyhive/contentgen/gemini"
	"github.com/studyhive/contentgen/internal/cache"
	"github.com/studyhive/contentgen/internal/metrics"
	"github.com/studyhive/contentgen/internal/store"
)

// Upstream is the narrow slice of the generative-language client the
// service needs. *gemini.Client satisfies it.
type Upstream interface {
	GenerateText(ctx context.Context, prompt string, opts gemini.GenerateOptions) (string, error)
	StreamText(ctx context.Context, prompt string, opts gemini.GenerateOptions, onDelta func(string)) (string, error)
}

// Options configure a Service. Cache, Store, and Metrics are optional;
// a nil collaborator disables that concern.
type Options struct {
	Upstream    Upstream
	Cache       *cache.Cache
	Store       *store.Store
	Metrics     *metrics.Collector
	Logger      *zap.Logger
	BatchSize   int
	Concurrency int
	CacheTTL    time.Duration
}

// Service orchestrates content generation.
type Service struct {
	upstream    Upstream
	cache       *cache.Cache
	store       *store.Store
	metrics     *metrics.Collector
	logger      *zap.Logger
	batchSize   int
	concurrency int
	cacheTTL    time.Duration
}

// New builds a Service. Upstream is required.
func New(opts Options) (*Service, error) {
	if opts.Upstream == nil {
		return nil, fmt.Errorf("upstream client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}

	return &Service{
		upstream:    opts.Upstream,
		cache:       opts.Cache,
		store:       opts.Store,
		metrics:     opts.Metrics,
		logger:      logger.With(zap.String("component", "service")),
		batchSize:   batchSize,
		concurrency: concurrency,
		cacheTTL:    opts.CacheTTL,
	}, nil
}

// Request describes one generation request.
type Request struct {
	Kind       content.Kind `json:"kind"`
	Topic      string       `json:"topic"`
	Source     string       `json:"source"`
	Count      int          `json:"count"`
	Difficulty string       `json:"difficulty"`
	Language   string       `json:"language"`
	Audience   string       `json:"audience"`
}

// Result is one finished generation. Exactly one of Text, Questions, or
// Flashcards is populated depending on the kind.
type Result struct {
	Record     *content.Record        `json:"record"`
	Text       string                 `json:"text,omitempty"`
	Questions  []content.QuizQuestion `json:"questions,omitempty"`
	Flashcards []content.Flashcard    `json:"flashcards,omitempty"`
	Cached     bool                   `json:"cached"`
}

const defaultItemCount = 10

// Generate runs one request end to end. Quiz requests above the batch size
// fan out through the batch orchestrator; everything else takes the
// single-request path.
//
// Error visibility differs between the two paths on purpose: the single
// path surfaces parse failures to the caller, the batch path swallows
// per-sub-batch failures and reflects them only as a smaller result.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("unsupported content kind %q", req.Kind)
	}
	if req.Count <= 0 {
		req.Count = defaultItemCount
	}

	start := time.Now()
	result, err := s.generate(ctx, req)
	s.recordGeneration(string(req.Kind), err, time.Since(start))
	return result, err
}

func (s *Service) generate(ctx context.Context, req Request) (*Result, error) {
	in := promptInput(req)
	prompt := content.BuildPrompt(in)
	hash := promptHash(req.Kind, prompt)

	if cached := s.lookupCache(ctx, req.Kind, hash); cached != nil {
		return cached, nil
	}

	var result *Result
	var err error
	switch req.Kind {
	case content.KindQuiz:
		result, err = s.generateQuiz(ctx, req, in, prompt)
	case content.KindFlashcards:
		result, err = s.generateFlashcards(ctx, req, prompt)
	default:
		result, err = s.generateText(ctx, prompt)
	}
	if err != nil {
		return nil, err
	}

	s.persist(ctx, req, hash, result)
	return result, nil
}

// generateText handles notes and translations. A shape error from the
// upstream document maps to an empty text result, not a failure.
func (s *Service) generateText(ctx context.Context, prompt string) (*Result, error) {
	text, err := s.upstream.GenerateText(ctx, prompt, gemini.GenerateOptions{})
	if err != nil {
		if gemini.IsResponseShape(err) {
			s.logger.Warn("upstream response missing text fields", zap.Error(err))
			return &Result{Text: ""}, nil
		}
		return nil, err
	}
	return &Result{Text: text}, nil
}

// GenerateStream streams a text generation, invoking onDelta with the full
// accumulated text on each increase, and returns the final text. Only text
// kinds stream; item kinds need the complete document before parsing.
func (s *Service) GenerateStream(ctx context.Context, req Request, onDelta func(string)) (string, error) {
	if req.Kind == content.KindQuiz || req.Kind == content.KindFlashcards {
		return "", fmt.Errorf("content kind %q does not support streaming", req.Kind)
	}
	if !req.Kind.Valid() {
		return "", fmt.Errorf("unsupported content kind %q", req.Kind)
	}

	in := promptInput(req)
	prompt := content.BuildPrompt(in)

	wrapped := onDelta
	if s.metrics != nil {
		wrapped = func(full string) {
			s.metrics.RecordStreamDelta()
			if onDelta != nil {
				onDelta(full)
			}
		}
	}

	start := time.Now()
	text, err := s.upstream.StreamText(ctx, prompt, gemini.GenerateOptions{}, wrapped)
	s.recordGeneration(string(req.Kind), err, time.Since(start))
	if err != nil {
		return "", err
	}

	s.persist(ctx, req, promptHash(req.Kind, prompt), &Result{Text: text})
	return text, nil
}

// generateQuiz picks the single or batch path by requested count.
func (s *Service) generateQuiz(ctx context.Context, req Request, in content.PromptInput, prompt string) (*Result, error) {
	if req.Count <= s.batchSize {
		text, err := s.upstream.GenerateText(ctx, prompt, gemini.GenerateOptions{})
		if err != nil {
			return nil, err
		}
		questions, err := content.ParseQuestions(text, req.Count)
		if err != nil {
			return nil, fmt.Errorf("parse quiz output: %w", err)
		}
		return &Result{Questions: questions}, nil
	}

	exec := func(ctx context.Context, index, size int) ([]content.QuizQuestion, error) {
		sub := in
		sub.Count = size
		// Each sub-prompt names its position in the series; otherwise the
		// model tends to regenerate the same opening questions per batch.
		subPrompt := content.BuildPrompt(sub) +
			fmt.Sprintf("\nThis is set %d of a larger series. Cover different material than other sets would.\n", index+1)
		text, err := s.upstream.GenerateText(ctx, subPrompt, gemini.GenerateOptions{})
		if err != nil {
			s.recordSubBatchFailure()
			return nil, err
		}
		questions, err := content.ParseQuestions(text, size)
		if err != nil {
			s.recordSubBatchFailure()
			return nil, err
		}
		return questions, nil
	}

	questions := batch.Run(ctx, req.Count, batch.Options{
		BatchSize:   s.batchSize,
		Concurrency: s.concurrency,
		Logger:      s.logger,
	}, exec, content.QuizQuestion.DedupKey)

	if len(questions) < req.Count {
		s.logger.Warn("quiz batch returned fewer items than requested",
			zap.Int("requested", req.Count),
			zap.Int("returned", len(questions)))
	}
	return &Result{Questions: questions}, nil
}

func (s *Service) generateFlashcards(ctx context.Context, req Request, prompt string) (*Result, error) {
	text, err := s.upstream.GenerateText(ctx, prompt, gemini.GenerateOptions{})
	if err != nil {
		return nil, err
	}
	cards, err := content.ParseFlashcards(text, req.Count)
	if err != nil {
		return nil, fmt.Errorf("parse flashcard output: %w", err)
	}
	return &Result{Flashcards: cards}, nil
}

func (s *Service) lookupCache(ctx context.Context, kind content.Kind, hash string) *Result {
	if s.cache == nil {
		return nil
	}

	var result Result
	err := s.cache.GetJSON(ctx, cacheKey(kind, hash), &result)
	if err == cache.ErrMiss {
		if s.metrics != nil {
			s.metrics.RecordCacheMiss()
		}
		return nil
	}
	if err != nil {
		s.logger.Warn("cache lookup failed", zap.Error(err))
		return nil
	}
	if s.metrics != nil {
		s.metrics.RecordCacheHit()
	}
	result.Cached = true
	return &result
}

// persist writes the record to the store and the cache. Both are best
// effort: a failed write degrades to uncached operation, it never fails the
// generation.
func (s *Service) persist(ctx context.Context, req Request, hash string, result *Result) {
	payload, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("marshal result payload", zap.Error(err))
		return
	}

	rec := content.NewRecord(req.Kind, req.Topic, hash, payload)
	result.Record = rec

	if s.store != nil {
		if err := s.store.Save(ctx, rec); err != nil {
			s.logger.Warn("persist record failed", zap.String("id", rec.ID), zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey(req.Kind, hash), result, s.cacheTTL); err != nil {
			s.logger.Warn("cache record failed", zap.String("id", rec.ID), zap.Error(err))
		}
	}
}

func (s *Service) recordGeneration(kind string, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordGeneration(kind, status, elapsed)
}

func (s *Service) recordSubBatchFailure() {
	if s.metrics != nil {
		s.metrics.RecordSubBatchFailure()
	}
}

func promptInput(req Request) content.PromptInput {
	return content.PromptInput{
		Kind:       req.Kind,
		Topic:      req.Topic,
		Source:     req.Source,
		Count:      req.Count,
		Difficulty: req.Difficulty,
		Language:   req.Language,
		Audience:   req.Audience,
	}
}

func promptHash(kind content.Kind, prompt string) string {
	sum := sha256.Sum256([]byte(string(kind) + "\x00" + prompt))
	return hex.EncodeToString(sum[:])
}

func cacheKey(kind content.Kind, hash string) string {
	return fmt.Sprintf("contentgen:record:%s:%s", kind, hash)
}
