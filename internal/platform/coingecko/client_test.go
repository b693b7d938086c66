package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRefPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(apiKeyHeader); got != "demo-key" {
			t.Errorf("api key header = %q, want %q", got, "demo-key")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ethereum":{"usd":1820.53}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "demo-key", 2*time.Second)
	price, err := c.RefPrice(context.Background())
	if err != nil {
		t.Fatalf("RefPrice() error = %v", err)
	}
	if price != 1820.53 {
		t.Fatalf("RefPrice() = %v, want 1820.53", price)
	}
}

func TestRefPriceKeyPlaceholder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("x_cg_demo_api_key"); got != "demo-key" {
			t.Errorf("query api key = %q, want %q", got, "demo-key")
		}
		if r.Header.Get(apiKeyHeader) != "" {
			t.Error("api key header set alongside query placeholder")
		}
		w.Write([]byte(`{"bitcoin":{"usd":62000.1}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL+"?x_cg_demo_api_key={api_key}", "demo-key", 2*time.Second)
	price, err := c.RefPrice(context.Background())
	if err != nil {
		t.Fatalf("RefPrice() error = %v", err)
	}
	if price != 62000.1 {
		t.Fatalf("RefPrice() = %v, want 62000.1", price)
	}
}

func TestRefPriceErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"throttled"}`, "HTTP 429"},
		{"malformed body", http.StatusOK, `not json`, "decode response"},
		{"missing usd", http.StatusOK, `{"ethereum":{"eur":1700.0}}`, "no usd quote"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := NewClient(server.URL, "", time.Second)
			_, err := c.RefPrice(context.Background())
			if err == nil {
				t.Fatal("RefPrice() error = nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("RefPrice() error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}
