// SPDX-License-Identifier: Apache-2.0

// Package knowledge retrieves support documentation snippets by vector
// similarity. When no database or embedder is configured the retriever
// degrades to an empty result set rather than failing lookups.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Embedder turns a query string into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Snippet is one retrieved chunk of documentation.
type Snippet struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

type Retriever struct {
	pool     *pgxpool.Pool
	embedder Embedder
	topK     int
	logger   *slog.Logger
}

func NewRetriever(pool *pgxpool.Pool, embedder Embedder, topK int, logger *slog.Logger) *Retriever {
	if topK <= 0 {
		topK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{pool: pool, embedder: embedder, topK: topK, logger: logger}
}

// Search returns the closest chunks to the query. An unconfigured retriever
// returns an empty slice and no error so tool callers see "no results"
// instead of an outage.
func (r *Retriever) Search(ctx context.Context, query string) ([]Snippet, error) {
	if r.pool == nil || r.embedder == nil {
		return []Snippet{}, nil
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT content, source, 1 - (embedding <=> $1::vector) AS score
		FROM kb_chunks
		ORDER BY embedding <=> $1::vector
		LIMIT $2`,
		vectorLiteral(vec), r.topK)
	if err != nil {
		return nil, fmt.Errorf("query kb_chunks: %w", err)
	}
	defer rows.Close()

	var out []Snippet
	for rows.Next() {
		var s Snippet
		if err := rows.Scan(&s.Text, &s.Source, &s.Score); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Snippet{}
	}
	return out, nil
}

// FormatContext renders snippets as a numbered block suitable for inclusion
// in a support reply.
func FormatContext(snippets []Snippet) string {
	if len(snippets) == 0 {
		return ""
	}
	var b strings.Builder
	for i, s := range snippets {
		fmt.Fprintf(&b, "[%d] %s (%s)\n", i+1, s.Text, s.Source)
	}
	return b.String()
}

// vectorLiteral renders a pgvector input literal, e.g. "[0.1,0.2]".
func vectorLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// HTTPEmbedder calls an OpenAI-compatible embeddings endpoint.
type HTTPEmbedder struct {
	url        string
	model      string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPEmbedder(url, model, apiKey string) *HTTPEmbedder {
	return &HTTPEmbedder{
		url:        url,
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(map[string]any{
		"model": e.model,
		"input": text,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings request: status %d", resp.StatusCode)
	}

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("embeddings response carried no vectors")
	}
	return out.Data[0].Embedding, nil
}
