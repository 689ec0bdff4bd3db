package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studyhive/contentgen/content"
	"github.com/studyhive/contentgen/gemini"
	"github.com/studyhive/contentgen/internal/cache"
	"github.com/studyhive/contentgen/internal/store"
)

// fakeUpstream scripts upstream behavior per call.
type fakeUpstream struct {
	generateFn func(ctx context.Context, prompt string) (string, error)
	streamFn   func(ctx context.Context, prompt string, onDelta func(string)) (string, error)
	calls      atomic.Int32
}

func (f *fakeUpstream) GenerateText(ctx context.Context, prompt string, _ gemini.GenerateOptions) (string, error) {
	f.calls.Add(1)
	return f.generateFn(ctx, prompt)
}

func (f *fakeUpstream) StreamText(ctx context.Context, prompt string, _ gemini.GenerateOptions, onDelta func(string)) (string, error) {
	f.calls.Add(1)
	return f.streamFn(ctx, prompt, onDelta)
}

func quizJSON(start, n int) string {
	items := make([]content.QuizQuestion, n)
	for i := range items {
		items[i] = content.QuizQuestion{
			Question:     fmt.Sprintf("Question %d?", start+i),
			Type:         "multiple_choice",
			Options:      []string{"a", "b", "c", "d"},
			CorrectIndex: 0,
		}
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func newService(t *testing.T, up Upstream, opts Options) *Service {
	t.Helper()
	opts.Upstream = up
	opts.Logger = zap.NewNop()
	s, err := New(opts)
	require.NoError(t, err)
	return s
}

func TestGenerate_Note(t *testing.T) {
	up := &fakeUpstream{generateFn: func(ctx context.Context, prompt string) (string, error) {
		assert.Contains(t, prompt, "study notes")
		return "# Cell Biology\n- cells divide", nil
	}}

	s := newService(t, up, Options{})
	result, err := s.Generate(context.Background(), Request{Kind: content.KindNote, Source: "lecture"})
	require.NoError(t, err)
	assert.Equal(t, "# Cell Biology\n- cells divide", result.Text)
	assert.False(t, result.Cached)
}

func TestGenerate_ShapeErrorYieldsEmptyText(t *testing.T) {
	up := &fakeUpstream{generateFn: func(ctx context.Context, prompt string) (string, error) {
		return "", &gemini.Error{Code: gemini.ErrResponseShape, Message: "no candidates"}
	}}

	s := newService(t, up, Options{})
	result, err := s.Generate(context.Background(), Request{Kind: content.KindTranslation, Source: "hola", Language: "English"})
	require.NoError(t, err, "shape errors map to empty text, not failure")
	assert.Empty(t, result.Text)
}

func TestGenerate_UpstreamErrorSurfaced(t *testing.T) {
	up := &fakeUpstream{generateFn: func(ctx context.Context, prompt string) (string, error) {
		return "", &gemini.Error{Code: gemini.ErrUpstreamError, Message: "boom", HTTPStatus: 502}
	}}

	s := newService(t, up, Options{})
	_, err := s.Generate(context.Background(), Request{Kind: content.KindNote, Source: "x"})
	require.Error(t, err)
	assert.Equal(t, gemini.ErrUpstreamError, gemini.CodeOf(err))
}

func TestGenerate_SmallQuiz_SingleRequest(t *testing.T) {
	up := &fakeUpstream{generateFn: func(ctx context.Context, prompt string) (string, error) {
		return quizJSON(0, 5), nil
	}}

	s := newService(t, up, Options{BatchSize: 20})
	result, err := s.Generate(context.Background(), Request{Kind: content.KindQuiz, Source: "cells", Count: 5})
	require.NoError(t, err)
	assert.Len(t, result.Questions, 5)
	assert.Equal(t, int32(1), up.calls.Load(), "small counts take the single-request path")
}

func TestGenerate_SmallQuiz_ParseErrorSurfaced(t *testing.T) {
	up := &fakeUpstream{generateFn: func(ctx context.Context, prompt string) (string, error) {
		return "I cannot create questions about that.", nil
	}}

	s := newService(t, up, Options{BatchSize: 20})
	_, err := s.Generate(context.Background(), Request{Kind: content.KindQuiz, Source: "cells", Count: 5})
	require.Error(t, err, "the single-request path surfaces parse failures")
}

func TestGenerate_LargeQuiz_Batched(t *testing.T) {
	var batchCalls atomic.Int32
	up := &fakeUpstream{generateFn: func(ctx context.Context, prompt string) (string, error) {
		n := int(batchCalls.Add(1))
		return quizJSON(n*100, 20), nil
	}}

	s := newService(t, up, Options{BatchSize: 20, Concurrency: 2})
	result, err := s.Generate(context.Background(), Request{Kind: content.KindQuiz, Source: "cells", Count: 45})
	require.NoError(t, err)
	assert.Len(t, result.Questions, 45, "60 generated items trimmed to the requested 45")
	assert.Equal(t, int32(3), up.calls.Load(), "ceil(45/20) sub-batches")
}

func TestGenerate_LargeQuiz_SubBatchFailureSwallowed(t *testing.T) {
	var batchCalls atomic.Int32
	up := &fakeUpstream{generateFn: func(ctx context.Context, prompt string) (string, error) {
		n := int(batchCalls.Add(1))
		if n == 2 {
			return "", &gemini.Error{Code: gemini.ErrUpstreamError, Message: "boom"}
		}
		return quizJSON(n*100, 20), nil
	}}

	s := newService(t, up, Options{BatchSize: 20, Concurrency: 1})
	result, err := s.Generate(context.Background(), Request{Kind: content.KindQuiz, Source: "cells", Count: 45})
	require.NoError(t, err, "batch path swallows sub-batch failures")
	assert.Len(t, result.Questions, 40)
}

func TestGenerate_Flashcards(t *testing.T) {
	up := &fakeUpstream{generateFn: func(ctx context.Context, prompt string) (string, error) {
		return `[{"front":"ATP","back":"Energy currency","difficulty":1}]`, nil
	}}

	s := newService(t, up, Options{})
	result, err := s.Generate(context.Background(), Request{Kind: content.KindFlashcards, Source: "cells", Count: 1})
	require.NoError(t, err)
	require.Len(t, result.Flashcards, 1)
	assert.Equal(t, "ATP", result.Flashcards[0].Front)
}

func TestGenerate_InvalidKind(t *testing.T) {
	s := newService(t, &fakeUpstream{}, Options{})
	_, err := s.Generate(context.Background(), Request{Kind: "podcast"})
	require.Error(t, err)
}

func TestGenerate_CacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.New(cache.Config{Addr: mr.Addr(), DefaultTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	up := &fakeUpstream{generateFn: func(ctx context.Context, prompt string) (string, error) {
		return "generated once", nil
	}}

	s := newService(t, up, Options{Cache: c})
	req := Request{Kind: content.KindNote, Source: "lecture", Topic: "bio"}

	first, err := s.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := s.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, int32(1), up.calls.Load(), "cache hit short-circuits the upstream call")
}

func TestGenerate_StorePersistence(t *testing.T) {
	st, err := store.Open(store.Config{Driver: "sqlite"}, zap.NewNop())
	require.NoError(t, err)

	up := &fakeUpstream{generateFn: func(ctx context.Context, prompt string) (string, error) {
		return "persisted text", nil
	}}

	s := newService(t, up, Options{Store: st})
	result, err := s.Generate(context.Background(), Request{Kind: content.KindNote, Source: "lecture"})
	require.NoError(t, err)
	require.NotNil(t, result.Record)

	got, err := st.Get(context.Background(), result.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, content.KindNote, got.Kind)
}

func TestGenerateStream(t *testing.T) {
	up := &fakeUpstream{streamFn: func(ctx context.Context, prompt string, onDelta func(string)) (string, error) {
		onDelta("Cells ")
		onDelta("Cells divide.")
		return "Cells divide.", nil
	}}

	s := newService(t, up, Options{})

	var deltas []string
	got, err := s.GenerateStream(context.Background(), Request{Kind: content.KindNote, Source: "x"}, func(full string) {
		deltas = append(deltas, full)
	})
	require.NoError(t, err)
	assert.Equal(t, "Cells divide.", got)
	assert.Equal(t, []string{"Cells ", "Cells divide."}, deltas)
}

func TestGenerateStream_QuizRejected(t *testing.T) {
	s := newService(t, &fakeUpstream{}, Options{})
	_, err := s.GenerateStream(context.Background(), Request{Kind: content.KindQuiz}, nil)
	require.Error(t, err)
}
