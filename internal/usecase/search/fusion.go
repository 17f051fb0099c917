package search

import (
	"fmt"
	"math"
	"sort"

	"github.com/kailas-cloud/kindred/internal/domain"
	"github.com/kailas-cloud/kindred/internal/domain/ranking"
)

// defaultRRFK is the Reciprocal Rank Fusion constant (standard value from Cormack et al. 2009).
const defaultRRFK = 60

// Fuser merges the dense and sparse candidate lists of one query.
// Output is sorted by fused score descending, ties by entity id ascending.
type Fuser interface {
	Fuse(dense, sparse []domain.Hit, limit int) []ranking.Entry
}

// NewFuser returns the fuser for strategy. k and alpha fall back to 60 and 0.5 when zero.
func NewFuser(strategy ranking.Strategy, k int, alpha float64) (Fuser, error) {
	switch strategy {
	case ranking.StrategyRRF:
		if k <= 0 {
			k = defaultRRFK
		}
		return rrfFuser{k: k}, nil
	case ranking.StrategyDBSF:
		if alpha == 0 {
			alpha = 0.5
		}
		if alpha < 0 || alpha > 1 {
			return nil, fmt.Errorf("dbsf alpha must be in [0,1], got %v", alpha)
		}
		return dbsfFuser{alpha: alpha}, nil
	default:
		return nil, fmt.Errorf("unknown fusion strategy %q", strategy)
	}
}

// rrfFuser: score(d) = sum of 1/(k + rank_i(d)) over the lists where d appears.
type rrfFuser struct {
	k int
}

func (f rrfFuser) Fuse(dense, sparse []domain.Hit, limit int) []ranking.Entry {
	merged := collect(dense, sparse)
	for _, e := range merged {
		if e.DenseRank > 0 {
			e.FusedScore += 1.0 / float64(f.k+e.DenseRank)
		}
		if e.SparseRank > 0 {
			e.FusedScore += 1.0 / float64(f.k+e.SparseRank)
		}
	}
	return finish(merged, limit)
}

// dbsfFuser standardizes each list to zero mean / unit variance and combines
// alpha*dense_z + (1-alpha)*sparse_z. A candidate missing from a list gets
// that list's lowest standardized score. With one list empty the other
// carries full weight.
type dbsfFuser struct {
	alpha float64
}

func (f dbsfFuser) Fuse(dense, sparse []domain.Hit, limit int) []ranking.Entry {
	merged := collect(dense, sparse)
	dz, sz := standardize(dense), standardize(sparse)

	wd, ws := f.alpha, 1-f.alpha
	switch {
	case len(dz.scores) == 0:
		wd, ws = 0, 1
	case len(sz.scores) == 0:
		wd, ws = 1, 0
	}

	for id, e := range merged {
		d, ok := dz.scores[id]
		if !ok {
			d = dz.floor
		}
		s, ok := sz.scores[id]
		if !ok {
			s = sz.floor
		}
		e.FusedScore = wd*d + ws*s
	}
	return finish(merged, limit)
}

type standardized struct {
	scores map[string]float64
	floor  float64
}

// standardize returns per-id z-scores. Lists with fewer than two candidates
// keep raw scores; a list with zero variance maps every candidate to 0.
func standardize(hits []domain.Hit) standardized {
	out := standardized{scores: make(map[string]float64, len(hits))}
	// summation runs in score order so results are bit-for-bit reproducible
	list := make([]domain.Hit, 0, len(hits))
	for _, h := range ordered(hits) {
		if _, dup := out.scores[h.EntityID]; !dup {
			out.scores[h.EntityID] = h.Score
			list = append(list, h)
		}
	}
	if len(list) == 0 {
		return out
	}

	if len(list) >= 2 {
		var mean float64
		for _, h := range list {
			mean += h.Score
		}
		mean /= float64(len(list))

		var variance float64
		for _, h := range list {
			variance += (h.Score - mean) * (h.Score - mean)
		}
		std := math.Sqrt(variance / float64(len(list)))

		for _, h := range list {
			if std == 0 {
				out.scores[h.EntityID] = 0
				continue
			}
			out.scores[h.EntityID] = (h.Score - mean) / std
		}
	}

	// list is sorted descending, so the last entry holds the minimum
	out.floor = out.scores[list[len(list)-1].EntityID]
	return out
}

// collect unions both lists by id. Ranks are 1-based positions after
// ordering each list by score, so the result does not depend on the order
// hits were delivered in.
func collect(dense, sparse []domain.Hit) map[string]*ranking.Entry {
	merged := make(map[string]*ranking.Entry, len(dense)+len(sparse))
	get := func(id string) *ranking.Entry {
		e, ok := merged[id]
		if !ok {
			e = &ranking.Entry{EntityID: id}
			merged[id] = e
		}
		return e
	}

	for i, h := range ordered(dense) {
		if e := get(h.EntityID); e.DenseRank == 0 {
			e.DenseRank = i + 1
			e.DenseScore = h.Score
		}
	}
	for i, h := range ordered(sparse) {
		if e := get(h.EntityID); e.SparseRank == 0 {
			e.SparseRank = i + 1
			e.SparseScore = h.Score
		}
	}
	return merged
}

func ordered(hits []domain.Hit) []domain.Hit {
	out := append([]domain.Hit(nil), hits...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}

func finish(merged map[string]*ranking.Entry, limit int) []ranking.Entry {
	entries := make([]ranking.Entry, 0, len(merged))
	for _, e := range merged {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].FusedScore != entries[j].FusedScore {
			return entries[i].FusedScore > entries[j].FusedScore
		}
		return entries[i].EntityID < entries[j].EntityID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
