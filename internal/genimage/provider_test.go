package genimage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestGenerateParsesImageURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"url":"https://cdn.example/img.png"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "test-key", "dall-e-3", "1024x1024", 5*time.Second)
	url, err := p.Generate(context.Background(), "a red bicycle")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if url != "https://cdn.example/img.png" {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestGenerateAPIErrorIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit exceeded"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "k", "", "", 5*time.Second)
	_, err := p.Generate(context.Background(), "x")
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if !strings.Contains(pe.Error(), "rate limit exceeded") {
		t.Fatalf("unexpected message %q", pe.Error())
	}
}

func TestGenerateMalformedResponseIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "k", "", "", 5*time.Second)
	_, err := p.Generate(context.Background(), "x")
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}

func TestFallbackURLDeterministic(t *testing.T) {
	a := FallbackURL("a red bicycle")
	b := FallbackURL("a red bicycle")
	if a != b {
		t.Fatalf("fallback must be deterministic: %q vs %q", a, b)
	}
	if !strings.Contains(a, "a+red+bicycle") {
		t.Fatalf("expected encoded prompt in %q", a)
	}

	long := strings.Repeat("x", 200)
	u, err := url.Parse(FallbackURL(long))
	if err != nil {
		t.Fatalf("parse fallback url: %v", err)
	}
	if text := u.Query().Get("text"); len(text) != fallbackMaxText {
		t.Fatalf("fallback text not truncated to %d chars: %q", fallbackMaxText, text)
	}
}

func TestWeightedClassifierValues(t *testing.T) {
	c := &WeightedClassifier{}
	seen := map[SafetyLevel]bool{}
	for i := 0; i < 200; i++ {
		lvl := c.Classify(context.Background(), "u")
		switch lvl {
		case SafetySafe, SafetyModerate, SafetyUnsafe:
			seen[lvl] = true
		default:
			t.Fatalf("unexpected level %q", lvl)
		}
	}
	if !seen[SafetySafe] {
		t.Fatalf("expected safe to dominate the draw")
	}
}
