// Package sparse provides sparse (lexical) embedders: a local hashed BM25-style
// encoder and a client for text-embeddings-inference servers.
package sparse

import (
	"context"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/kailas-cloud/kindred/internal/domain"
	"github.com/kailas-cloud/kindred/internal/domain/text"
)

const (
	bm25K1     = 1.2
	skillBoost = 1.5
	skillsHead = "skills:"
)

// Field prefixes written by profile.Normalize. They carry no lexical signal.
var fieldHeads = []string{"name:", "bio:", "location:", skillsHead, "interests:"}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "he": {}, "her": {}, "his": {}, "i": {}, "in": {},
	"is": {}, "it": {}, "its": {}, "me": {}, "my": {}, "of": {}, "on": {}, "or": {}, "our": {},
	"she": {}, "so": {}, "that": {}, "the": {}, "their": {}, "them": {}, "they": {}, "this": {},
	"to": {}, "was": {}, "we": {}, "were": {}, "with": {}, "you": {}, "your": {}, "who": {},
	"what": {}, "which": {}, "someone": {}, "somebody": {}, "any": {}, "some": {},
}

// LocalEncoder is a deterministic in-process sparse embedder.
// Terms are hashed with FNV-32a; weights use BM25 term-frequency saturation.
// IDF is left to the index (Qdrant IDF modifier).
type LocalEncoder struct {
	maxTerms int
}

// NewLocalEncoder creates an encoder that keeps at most maxTerms terms (0 = unlimited).
func NewLocalEncoder(maxTerms int) *LocalEncoder {
	return &LocalEncoder{maxTerms: maxTerms}
}

// EmbedSparse implements domain.SparseEmbedder.
func (e *LocalEncoder) EmbedSparse(ctx context.Context, s string) (domain.SparseResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.SparseResult{}, err
	}
	return domain.SparseResult{Vector: e.Encode(s)}, nil
}

// Encode computes the sparse vector of s.
func (e *LocalEncoder) Encode(s string) domain.SparseVector {
	tf := make(map[uint32]float64)
	for _, line := range strings.Split(s, "\n") {
		line, boost := stripField(line)
		for _, w := range text.Words(line) {
			if _, stop := stopWords[w]; stop {
				continue
			}
			tf[termIndex(w)] += boost
		}
	}
	if len(tf) == 0 {
		return domain.SparseVector{}
	}

	type term struct {
		idx uint32
		w   float64
	}
	terms := make([]term, 0, len(tf))
	for idx, f := range tf {
		terms = append(terms, term{idx: idx, w: f * (bm25K1 + 1) / (f + bm25K1)})
	}
	if e.maxTerms > 0 && len(terms) > e.maxTerms {
		sort.Slice(terms, func(i, j int) bool {
			if terms[i].w != terms[j].w {
				return terms[i].w > terms[j].w
			}
			return terms[i].idx < terms[j].idx
		})
		terms = terms[:e.maxTerms]
	}

	weights := make(map[uint32]float32, len(terms))
	for _, t := range terms {
		weights[t.idx] = float32(t.w)
	}
	return domain.NewSparseVector(weights)
}

func stripField(line string) (string, float64) {
	trimmed := strings.TrimSpace(line)
	lower := strings.ToLower(trimmed)
	for _, head := range fieldHeads {
		if strings.HasPrefix(lower, head) {
			boost := 1.0
			if head == skillsHead {
				boost = skillBoost
			}
			return trimmed[len(head):], boost
		}
	}
	return line, 1.0
}

func termIndex(w string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(w))
	return h.Sum32()
}
