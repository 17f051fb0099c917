package sparse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kailas-cloud/kindred/internal/domain"
	"github.com/kailas-cloud/kindred/internal/metrics"
)

const kindSparse = "sparse"

// TEIConfig configures the text-embeddings-inference sparse client.
type TEIConfig struct {
	URL      string // base URL, e.g. http://tei:8080
	Model    string // label only, used for metrics and cache keys
	MaxTerms int
	Timeout  time.Duration
}

// TEIClient calls POST /embed_sparse on a TEI server (SPLADE-style models).
type TEIClient struct {
	url      string
	model    string
	maxTerms int
	http     *http.Client
}

// NewTEIClient creates a TEI sparse embedder.
func NewTEIClient(cfg TEIConfig) *TEIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TEIClient{
		url:      strings.TrimRight(cfg.URL, "/"),
		model:    cfg.Model,
		maxTerms: cfg.MaxTerms,
		http:     &http.Client{Timeout: timeout},
	}
}

type teiRequest struct {
	Inputs   string `json:"inputs"`
	Truncate bool   `json:"truncate"`
}

type teiTerm struct {
	Index uint32  `json:"index"`
	Value float32 `json:"value"`
}

// EmbedSparse implements domain.SparseEmbedder.
func (c *TEIClient) EmbedSparse(ctx context.Context, text string) (domain.SparseResult, error) {
	body, err := json.Marshal(teiRequest{Inputs: text, Truncate: true})
	if err != nil {
		return domain.SparseResult{}, fmt.Errorf("marshal tei request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/embed_sparse", bytes.NewReader(body))
	if err != nil {
		return domain.SparseResult{}, fmt.Errorf("build tei request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.fail("transport")
		return domain.SparseResult{}, fmt.Errorf("tei request: %w: %w", err, domain.ErrEmbeddingProviderError)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.fail("api_error")
		return domain.SparseResult{}, fmt.Errorf("tei status %d: %s: %w",
			resp.StatusCode, strings.TrimSpace(string(msg)), domain.ErrEmbeddingProviderError)
	}

	var out [][]teiTerm
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.fail("decode")
		return domain.SparseResult{}, fmt.Errorf("decode tei response: %w: %w", err, domain.ErrEmbeddingProviderError)
	}
	if len(out) == 0 {
		c.fail("empty_response")
		return domain.SparseResult{}, fmt.Errorf("empty tei response: %w", domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(kindSparse, "tei", c.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(kindSparse, "tei", c.model).Observe(time.Since(start).Seconds())

	return domain.SparseResult{Vector: c.toVector(out[0])}, nil
}

func (c *TEIClient) toVector(terms []teiTerm) domain.SparseVector {
	weights := make(map[uint32]float32, len(terms))
	for _, t := range terms {
		if t.Value > 0 {
			weights[t.Index] += t.Value
		}
	}
	v := domain.NewSparseVector(weights)
	if c.maxTerms > 0 && v.Len() > c.maxTerms {
		v = topTerms(v, c.maxTerms)
	}
	return v
}

func (c *TEIClient) fail(errType string) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(kindSparse, "tei", c.model, "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(kindSparse, "tei", errType).Inc()
}

// HealthCheck calls GET /health on the TEI server.
func (c *TEIClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tei health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tei health status %d", resp.StatusCode)
	}
	return nil
}

// topTerms keeps the n heaviest terms (ties by lower index), indices stay sorted.
func topTerms(v domain.SparseVector, n int) domain.SparseVector {
	order := make([]int, v.Len())
	for i := range order {
		order[i] = i
	}
	sortByWeight(order, v)
	weights := make(map[uint32]float32, n)
	for _, i := range order[:n] {
		weights[v.Indices[i]] = v.Values[i]
	}
	return domain.NewSparseVector(weights)
}

func sortByWeight(order []int, v domain.SparseVector) {
	sort.Slice(order, func(a, b int) bool {
		wa, wb := v.Values[order[a]], v.Values[order[b]]
		if wa != wb {
			return wa > wb
		}
		return v.Indices[order[a]] < v.Indices[order[b]]
	})
}
