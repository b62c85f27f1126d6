package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDo_InjectsCorrelationID(t *testing.T) {
	var captured http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(0)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	if _, err := c.Do(context.Background(), req); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if captured.Get("X-Correlation-ID") == "" {
		t.Fatalf("missing X-Correlation-ID header")
	}
}

func TestDo_RetriesOnRateLimitThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(0)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := c.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestDo_ExhaustsRetriesAndFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := New(0)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	_, err := c.Do(context.Background(), req)
	if err == nil {
		t.Fatalf("expected a RateLimited error")
	}
	if _, ok := err.(RateLimited); !ok {
		t.Fatalf("err = %T, want RateLimited", err)
	}
}

func TestParseRetryAfter_Seconds(t *testing.T) {
	d := parseRetryAfter("2")
	if d != 2*time.Second {
		t.Fatalf("parseRetryAfter(2) = %v, want 2s", d)
	}
}
