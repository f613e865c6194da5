package knowledge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSearch_UnconfiguredReturnsEmpty(t *testing.T) {
	r := NewRetriever(nil, nil, 5, nil)

	snippets, err := r.Search(context.Background(), "how do I check in?")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(snippets) != 0 {
		t.Fatalf("expected empty result, got %d", len(snippets))
	}
}

func TestVectorLiteral(t *testing.T) {
	got := vectorLiteral([]float32{0.5, -1, 0.25})
	if got != "[0.5,-1,0.25]" {
		t.Fatalf("unexpected literal %q", got)
	}
}

func TestFormatContext(t *testing.T) {
	if FormatContext(nil) != "" {
		t.Fatal("expected empty string for no snippets")
	}

	out := FormatContext([]Snippet{
		{Text: "Restart the device.", Source: "troubleshooting.md"},
		{Text: "Check Wi-Fi.", Source: "setup.md"},
	})
	if !strings.Contains(out, "[1] Restart the device. (troubleshooting.md)") {
		t.Fatalf("unexpected format: %q", out)
	}
	if !strings.Contains(out, "[2] Check Wi-Fi. (setup.md)") {
		t.Fatalf("unexpected format: %q", out)
	}
}

func TestHTTPEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["model"] != "embed-small" {
			t.Errorf("unexpected model %v", body["model"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{0.1, 0.2}}},
		})
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, "embed-small", "key")
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.1 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestHTTPEmbedder_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, "embed-small", "")
	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}
