package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsRateLimit(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "status code", err: errors.New("openai request failed: 429 Too Many Requests"), want: true},
		{name: "rate word", err: errors.New("Rate limit exceeded for model"), want: true},
		{name: "rate prefix", err: errors.New("ratelimited by upstream"), want: true},
		{name: "sentinel", err: fmt.Errorf("wrapped: %w", ErrRateLimited), want: true},
		{name: "generate does not match", err: errors.New("failed to generate content"), want: false},
		{name: "other", err: errors.New("connection refused"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsRateLimit(tt.err))
		})
	}
}

func TestHashEmbedderDeterministic(t *testing.T) {
	p, err := NewEmbedProvider("hash", nil)
	require.NoError(t, err)
	emb := NewEmbedder(p, "fnv", 64)

	out, err := emb.Embed(context.Background(), []string{"alpha beta", "gamma", "alpha beta"}, TaskTypeDocument)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Len(t, out[0], 64)
	require.Equal(t, out[0], out[2])
	require.NotEqual(t, out[0], out[1])
	require.Equal(t, "hash:fnv", emb.ModelName())
	require.Equal(t, 64, emb.Dimension())
}

func TestHashEmbedderSharedTokensCorrelate(t *testing.T) {
	a := hashVector("solar panel efficiency", 256)
	b := hashVector("panel efficiency report", 256)
	c := hashVector("banana bread recipe", 256)
	require.Greater(t, cosine(a, b), cosine(a, c))
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider("nope", nil)
	require.Error(t, err)
	_, err = NewEmbedProvider("", nil)
	require.Error(t, err)
}

type fakeEmbedProvider struct {
	vectors [][]float32
	err     error
}

func (f *fakeEmbedProvider) Name() string { return "fake" }

func (f *fakeEmbedProvider) Embed(_ context.Context, _ string, _ []string, _ EmbedOptions) ([][]float32, error) {
	return f.vectors, f.err
}

func TestEmbedderRejectsWrongShape(t *testing.T) {
	emb := NewEmbedder(&fakeEmbedProvider{vectors: [][]float32{{1, 2}}}, "m", 2)
	_, err := emb.Embed(context.Background(), []string{"a", "b"}, TaskTypeDocument)
	require.Error(t, err)

	emb = NewEmbedder(&fakeEmbedProvider{vectors: [][]float32{{1, 2, 3}}}, "m", 2)
	_, err = emb.Embed(context.Background(), []string{"a"}, TaskTypeDocument)
	require.Error(t, err)

	out, err := emb.Embed(context.Background(), nil, TaskTypeDocument)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestOpenAIChat(t *testing.T) {
	var got openAIChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  the answer  "}}]}`))
	}))
	defer srv.Close()

	p, err := NewProvider("openai", map[string]interface{}{"api_key": "sk-test", "base_url": srv.URL})
	require.NoError(t, err)
	res, err := p.Chat(context.Background(), "gpt-4", ChatRequest{
		System:      "sys",
		Prompt:      "question",
		Temperature: ptrFloat32(0.7),
		MaxTokens:   500,
	})
	require.NoError(t, err)
	require.Equal(t, "the answer", res)
	require.Equal(t, "gpt-4", got.Model)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "system", got.Messages[0].Role)
	require.Equal(t, "user", got.Messages[1].Role)
	require.Equal(t, 500, got.MaxTokens)
	require.NotNil(t, got.Temperature)
	require.InDelta(t, 0.7, *got.Temperature, 1e-6)
}

func ptrFloat32(v float32) *float32 { return &v }

func TestOpenAIChatTemperature(t *testing.T) {
	var bodies []map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := map[string]interface{}{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
		bodies = append(bodies, m)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	p, err := NewProvider("openai", map[string]interface{}{"api_key": "sk-test", "base_url": srv.URL})
	require.NoError(t, err)
	_, err = p.Chat(context.Background(), "gpt-4", ChatRequest{Prompt: "q", Temperature: ptrFloat32(0)})
	require.NoError(t, err)
	_, err = p.Chat(context.Background(), "gpt-4", ChatRequest{Prompt: "q"})
	require.NoError(t, err)

	require.Len(t, bodies, 2)
	temp, ok := bodies[0]["temperature"]
	require.True(t, ok, "explicit zero temperature must be sent")
	require.Equal(t, float64(0), temp)
	_, ok = bodies[1]["temperature"]
	require.False(t, ok)
}

func TestOpenAIChatRateLimitedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	p, err := NewProvider("openai", map[string]interface{}{"api_key": "k", "base_url": srv.URL})
	require.NoError(t, err)
	_, err = p.Chat(context.Background(), "gpt-4", ChatRequest{Prompt: "q"})
	require.Error(t, err)
	require.True(t, IsRateLimit(err))
}

func TestOpenAIMissingKey(t *testing.T) {
	p, err := NewProvider("openai", nil)
	require.NoError(t, err)
	_, err = p.Chat(context.Background(), "gpt-4", ChatRequest{Prompt: "q"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenAIEmbeddingsOrderedByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"a", "b"}, req.Input)
		require.Zero(t, req.Dimensions)
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	// a custom base url needs no key, as with a local ollama server
	p, err := NewEmbedProvider("openai", map[string]interface{}{"base_url": srv.URL})
	require.NoError(t, err)
	out, err := NewEmbedder(p, "all-minilm", 2).Embed(context.Background(), []string{"a", "b"}, TaskTypeDocument)
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 0}, {0, 1}}, out)
}

func TestGeminiMissingKey(t *testing.T) {
	p, err := NewProvider("gemini", map[string]interface{}{"api_key": " "})
	require.NoError(t, err)
	_, err = p.Chat(context.Background(), "gemini-1.5-flash", ChatRequest{Prompt: "q"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestGroupEmbedderFallsBack(t *testing.T) {
	bad := NewEmbedder(&fakeEmbedProvider{err: errors.New("boom")}, "bad", 2)
	good := NewEmbedder(&fakeEmbedProvider{vectors: [][]float32{{1, 1}}}, "good", 2)
	emb, err := NewGroupEmbedder([]EmbedderEntry{{Name: "bad", Embedder: bad}, {Name: "good", Embedder: good}})
	require.NoError(t, err)
	out, err := emb.Embed(context.Background(), []string{"x"}, TaskTypeQuery)
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 1}}, out)
	require.Equal(t, "bad|good", emb.ModelName())
	require.Equal(t, 2, emb.Dimension())
}

func TestGroupEmbedderDimensionMismatch(t *testing.T) {
	a := NewEmbedder(&fakeEmbedProvider{}, "a", 2)
	b := NewEmbedder(&fakeEmbedProvider{}, "b", 3)
	_, err := NewGroupEmbedder([]EmbedderEntry{{Name: "a", Embedder: a}, {Name: "b", Embedder: b}})
	require.Error(t, err)
	_, err = NewGroupEmbedder(nil)
	require.Error(t, err)
}

type countingChat struct {
	calls int
	err   error
}

func (c *countingChat) Name() string { return "counting" }

func (c *countingChat) Chat(_ context.Context, _ string, _ ChatRequest) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return "ok", nil
}

func TestGuardOpensBreakerOnFailures(t *testing.T) {
	inner := &countingChat{err: errors.New("backend down")}
	p := WithGuard(inner, GuardConfig{MinRequests: 2, FailureRatio: 0.5, OpenTimeout: time.Minute})
	for i := 0; i < 2; i++ {
		_, err := p.Chat(context.Background(), "m", ChatRequest{Prompt: "q"})
		require.Error(t, err)
	}
	_, err := p.Chat(context.Background(), "m", ChatRequest{Prompt: "q"})
	require.Error(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestGuardIgnoresRateLimitForBreaker(t *testing.T) {
	inner := &countingChat{err: errors.New("429 Too Many Requests")}
	p := WithGuard(inner, GuardConfig{MinRequests: 1, FailureRatio: 0.1})
	for i := 0; i < 3; i++ {
		_, err := p.Chat(context.Background(), "m", ChatRequest{Prompt: "q"})
		require.True(t, IsRateLimit(err))
	}
	require.Equal(t, 3, inner.calls)
}

func TestGuardLimiterCancelledReadsAsRateLimit(t *testing.T) {
	inner := &countingChat{}
	p := WithGuard(inner, GuardConfig{RequestsPerMinute: 1, Burst: 1})
	_, err := p.Chat(context.Background(), "m", ChatRequest{Prompt: "q"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.Chat(ctx, "m", ChatRequest{Prompt: "q"})
	require.ErrorIs(t, err, ErrRateLimited)
	require.Equal(t, 1, inner.calls)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
