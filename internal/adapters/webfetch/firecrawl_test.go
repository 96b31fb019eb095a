package webfetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchContentReturnsMarkdown(t *testing.T) {
	markdown := strings.Repeat("InvoiceBot automates invoices. ", 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/scrape" {
			t.Fatalf("неожиданный путь: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Fatalf("ожидали Bearer key-1, получили %q", got)
		}
		fmt.Fprintf(w, `{"success":true,"data":{"markdown":%q}}`, markdown)
	}))
	defer srv.Close()

	f := NewFirecrawl("key-1", srv.URL, 0)
	content, err := f.FetchContent(context.Background(), "https://invoicebot.dev")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !strings.Contains(content, "InvoiceBot") {
		t.Fatalf("неожиданное содержимое: %s", content)
	}
}

func TestFetchContentTooShortIsNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":{"markdown":"too short"}}`)
	}))
	defer srv.Close()

	f := NewFirecrawl("key-1", srv.URL, 0)
	if _, err := f.FetchContent(context.Background(), "https://x.dev"); !errors.Is(err, ErrNoContent) {
		t.Fatalf("ожидали ErrNoContent, получили %v", err)
	}
}

func TestFetchContentWithoutKeyIsNotConfigured(t *testing.T) {
	f := NewFirecrawl("", "", 0)
	if _, err := f.FetchContent(context.Background(), "https://x.dev"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ожидали ErrNotConfigured, получили %v", err)
	}
}

func TestFetchContentAPIErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer srv.Close()

	f := NewFirecrawl("key-1", srv.URL, 0)
	if _, err := f.FetchContent(context.Background(), "https://x.dev"); err == nil {
		t.Fatal("ошибка API должна возвращаться вызывающему")
	}
}
