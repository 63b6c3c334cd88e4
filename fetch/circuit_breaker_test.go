package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestCircuitBreakerFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("bundle bytes"))
	}))
	defer server.Close()

	cbf := NewCircuitBreakerFetcher(NewFetcher())
	artifact, err := cbf.Fetch(context.Background(), server.URL+"/b.seext")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer func() { _ = artifact.Body.Close() }()

	body, _ := io.ReadAll(artifact.Body)
	if string(body) != "bundle bytes" {
		t.Errorf("body = %q", body)
	}
	for host, state := range cbf.BreakerStates() {
		if state != "closed" {
			t.Errorf("breaker for %s is %s, want closed", host, state)
		}
	}
}

func TestCircuitBreakerNotFoundDoesNotTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cbf := NewCircuitBreakerFetcher(NewFetcher(WithMaxRetries(0)))
	for range 10 {
		_, err := cbf.Fetch(context.Background(), server.URL+"/gone.seext")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Fetch = %v, want ErrNotFound", err)
		}
	}
	for _, state := range cbf.BreakerStates() {
		if state != "closed" {
			t.Errorf("breaker = %s, want closed after 404s", state)
		}
	}
}

func TestCircuitBreakerOpensOnFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cbf := NewCircuitBreakerFetcher(NewFetcher(WithMaxRetries(0), WithBaseDelay(0)))
	for range 10 {
		_, _ = cbf.Fetch(context.Background(), server.URL+"/catalog.txt")
	}

	if n := calls.Load(); n >= 10 {
		t.Errorf("server saw %d requests, expected the breaker to stop some", n)
	}
	_, err := cbf.Fetch(context.Background(), server.URL+"/catalog.txt")
	if !errors.Is(err, ErrUpstreamDown) {
		t.Errorf("Fetch with open breaker = %v, want ErrUpstreamDown", err)
	}
}

func TestCircuitBreakerPerHost(t *testing.T) {
	a := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("a"))
	}))
	defer a.Close()
	b := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("b"))
	}))
	defer b.Close()

	cbf := NewCircuitBreakerFetcher(NewFetcher())
	for _, u := range []string{a.URL, b.URL, a.URL} {
		artifact, err := cbf.Fetch(context.Background(), u+"/catalog.txt")
		if err != nil {
			t.Fatalf("Fetch %s failed: %v", u, err)
		}
		_ = artifact.Body.Close()
	}
	if n := len(cbf.BreakerStates()); n != 2 {
		t.Errorf("breakers = %d, want 2", n)
	}
}

func TestExtractHost(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://plugins.example.org/catalog/catalog.txt", "plugins.example.org"},
		{"https://mirror.example.org:8443/b.seext", "mirror.example.org:8443"},
		{"file:///home/me/bundles/b.seext", "file:"},
		{"not-a-valid-url", ":"},
	}
	for _, tt := range tests {
		if got := extractHost(tt.url); got != tt.want {
			t.Errorf("extractHost(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
