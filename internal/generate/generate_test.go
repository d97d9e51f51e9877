package generate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"aiunit/internal/assemble"
	"aiunit/internal/coverage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() *assemble.UpdateRequest {
	return &assemble.UpdateRequest{
		SourcePath: "src/calc.py",
		TestPath:   "tests/test_calc.py",
		SourceText: "def add(a, b):\n    return a + b\n",
		TestText:   "from calc import add\n",
		Missing:    coverage.NewLineSet(2),
	}
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "def test_x():\n    pass", "def test_x():\n    pass\n"},
		{"fenced with tag", "Here you go:\n```python\nimport calc\n```\nDone.", "import calc\n"},
		{"fenced without tag", "```\nimport calc\n\n```", "import calc\n"},
		{"blank", "   \n", ""},
		{"empty fence", "```python\n```", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCode(tt.in))
		})
	}
}

func TestUserPrompt(t *testing.T) {
	req := sampleRequest()
	req.StyleReference = "# File: tests/test_other.py\nimport other\n"
	p := UserPrompt(req)

	assert.Contains(t, p, "Source file src/calc.py")
	assert.Contains(t, p, "1| def add(a, b):")
	assert.Contains(t, p, "2|     return a + b")
	assert.Contains(t, p, "Lines not covered by the current tests: 2")
	assert.Contains(t, p, "Current test file tests/test_calc.py")
	assert.Contains(t, p, "for style reference")
	assert.Contains(t, p, "Use pytest.")

	req.TestText = ""
	assert.Contains(t, UserPrompt(req), "does not exist yet")

	req.Function = "add"
	fp := UserPrompt(req)
	assert.Contains(t, fp, "function add")
	assert.NotContains(t, fp, "1| def add")
}

func TestSystemPrompt_Framework(t *testing.T) {
	assert.Contains(t, SystemPrompt(sampleRequest()), "Framework: pytest")
	assert.Contains(t, SystemPrompt(&assemble.UpdateRequest{SourcePath: "x.go"}), "Framework: go test")
}

func TestOpenAIGenerator(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"finish_reason":"stop",
			"message":{"role":"assistant","content":"`+"```python\\nimport calc\\n\\ndef test_add():\\n    assert calc.add(1, 2) == 3\\n```"+`"}}]}`)
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(Options{APIKey: "test-key", BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "import calc\n\ndef test_add():\n    assert calc.add(1, 2) == 3\n", out)
	assert.Equal(t, "test-model", gotBody["model"])
}

func TestOpenAIGenerator_EmptyAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.Header.Get("Authorization"), "bad") {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"message":"invalid key","type":"auth"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"  "}}]}`)
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(Options{APIKey: "ok", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrEmptyResponse)

	g, err = NewOpenAIGenerator(Options{APIKey: "bad", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyResponse)
}

func TestGeminiGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/test-model:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"import calc\n"}]}}]}`)
	}))
	defer srv.Close()

	g, err := NewGeminiGenerator(context.Background(), Options{APIKey: "k", BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)
	out, err := g.Generate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "import calc\n", out)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(context.Background(), Options{Provider: "openai"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = New(context.Background(), Options{Provider: "gemini"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = New(context.Background(), Options{Provider: "llama", APIKey: "k"})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	g, err := New(context.Background(), Options{APIKey: "k"})
	require.NoError(t, err)
	assert.NotNil(t, g)
}

func TestMiddleware(t *testing.T) {
	t.Run("require output", func(t *testing.T) {
		g := Wrap(Func(func(context.Context, *assemble.UpdateRequest) (string, error) {
			return "\n\n", nil
		}), RequireOutput())
		_, err := g.Generate(context.Background(), sampleRequest())
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("timeout", func(t *testing.T) {
		g := Wrap(Func(func(ctx context.Context, _ *assemble.UpdateRequest) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}), Timeout(20*time.Millisecond))
		_, err := g.Generate(context.Background(), sampleRequest())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("rate limit waits between calls", func(t *testing.T) {
		var calls atomic.Int32
		g := Wrap(Func(func(context.Context, *assemble.UpdateRequest) (string, error) {
			calls.Add(1)
			return "ok\n", nil
		}), RateLimit(600)) // one call per 100ms

		start := time.Now()
		for i := 0; i < 3; i++ {
			_, err := g.Generate(context.Background(), sampleRequest())
			require.NoError(t, err)
		}
		assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("rate limit honours cancellation", func(t *testing.T) {
		g := Wrap(Func(func(context.Context, *assemble.UpdateRequest) (string, error) {
			return "ok\n", nil
		}), RateLimit(1))
		_, err := g.Generate(context.Background(), sampleRequest())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = g.Generate(ctx, sampleRequest())
		assert.Error(t, err)
	})

	t.Run("disabled middlewares pass through", func(t *testing.T) {
		inner := Func(func(context.Context, *assemble.UpdateRequest) (string, error) {
			return "", errors.New("boom")
		})
		g := Wrap(inner, RateLimit(0), Timeout(0))
		_, err := g.Generate(context.Background(), sampleRequest())
		assert.EqualError(t, err, "boom")
	})
}
