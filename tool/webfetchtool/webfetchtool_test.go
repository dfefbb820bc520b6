package webfetchtool_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"turnengine/tool"
	"turnengine/tool/webfetchtool"
)

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	f := webfetchtool.Fetch{Client: srv.Client(), MaxBytes: 1024}
	parts, err := f.Invoke(context.Background(), map[string]any{"url": srv.URL}, tool.SessionContext{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(parts) != 1 || parts[0].Text != "hello" {
		t.Fatalf("parts = %+v, want [{text hello}]", parts)
	}
}

func TestFetchServerErrorIsRetriable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := webfetchtool.Fetch{Client: srv.Client()}
	if _, err := f.Invoke(context.Background(), map[string]any{"url": srv.URL}, tool.SessionContext{}); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestFetchRequiresURL(t *testing.T) {
	f := webfetchtool.Fetch{}
	if _, err := f.Invoke(context.Background(), map[string]any{}, tool.SessionContext{}); err == nil {
		t.Fatal("expected error for missing url")
	}
}
