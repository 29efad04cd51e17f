package httpx

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/andybalholm/brotli"
)

func TestGet_SendsHeadersAndDecodesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "danmu-test" {
			t.Errorf("User-Agent = %q", got)
		}
		if got := r.Header.Get("Referer"); got != "https://example.com/" {
			t.Errorf("Referer = %q", got)
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte("hello"))
		_ = gz.Close()
	}))
	defer srv.Close()

	c := New(WithUserAgent("danmu-test"))
	b, err := c.Get(context.Background(), srv.URL, http.Header{"Referer": {"https://example.com/"}})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("body = %q", b)
	}
}

func TestGet_DecodesBrotli(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, _ = bw.Write([]byte(`{"ok":true}`))
	_ = bw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	out, err := GetJSON[struct {
		OK bool `json:"ok"`
	}](context.Background(), New(), srv.URL, nil)
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if !out.OK {
		t.Fatal("expected ok=true")
	}
}

func TestGet_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New().Get(context.Background(), srv.URL, nil)
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("expected ErrStatus, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusNotFound {
		t.Fatalf("unexpected error %#v", err)
	}
}

func TestBreaker_IgnoresClientErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	c := New(WithCircuitBreaker(NewBreaker("test", DefaultBreaker, nil)))
	for i := 0; i < 10; i++ {
		if _, err := c.Get(context.Background(), srv.URL, nil); !errors.Is(err, ErrStatus) {
			t.Fatalf("attempt %d: expected status error, got %v", i, err)
		}
	}

	status.Store(http.StatusBadGateway)
	for i := 0; i < 5; i++ {
		_, _ = c.Get(context.Background(), srv.URL, nil)
	}
	if _, err := c.Get(context.Background(), srv.URL, nil); err == nil || errors.Is(err, ErrStatus) {
		t.Fatalf("expected open breaker, got %v", err)
	}
}

func TestGet_BodyOverLimit(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	b, err := New(WithMaxBody(64)).Get(context.Background(), srv.URL, nil)
	if err != nil || len(b) != 64 {
		t.Fatalf("body at the limit: len=%d err=%v", len(b), err)
	}

	c := New(WithMaxBody(63), WithCircuitBreaker(NewBreaker("test", DefaultBreaker, nil)))
	for i := 0; i < 10; i++ {
		if _, err := c.Get(context.Background(), srv.URL, nil); !errors.Is(err, ErrBodyTooLarge) {
			t.Fatalf("attempt %d: expected ErrBodyTooLarge, got %v", i, err)
		}
	}
}

func TestGetJSON_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	if _, err := GetJSON[map[string]any](context.Background(), New(), srv.URL, nil); err == nil {
		t.Fatal("expected decode error")
	}
}
