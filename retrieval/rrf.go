package retrieval

import (
	"sort"

	"github.com/brunobiangulo/clausegraph/store"
)

const rrfK = 60 // RRF constant (standard value from literature)

// FusedResultInfo holds per-result method contribution metadata.
type FusedResultInfo struct {
	Methods []string `json:"methods"`
	VecRank int      `json:"vec_rank,omitempty"` // 1-based, 0 = not present
	FTSRank int      `json:"fts_rank,omitempty"` // 1-based, 0 = not present
	VecSim  float64  `json:"vec_similarity,omitempty"`
}

// fuseRRF combines vector and FTS results with Reciprocal Rank Fusion:
// score = sum(weight_i / (k + rank_i)). Per-result contribution info is
// keyed by contract id.
func fuseRRF(
	vecResults, ftsResults []store.SearchResult,
	weightVec, weightFTS float64,
	maxResults int,
) ([]store.SearchResult, map[string]FusedResultInfo) {
	type fusedEntry struct {
		result store.SearchResult
		score  float64
		info   FusedResultInfo
	}

	fused := make(map[string]*fusedEntry)
	var order []string
	entryFor := func(r store.SearchResult) *fusedEntry {
		e, ok := fused[r.ID]
		if !ok {
			e = &fusedEntry{result: r}
			fused[r.ID] = e
			order = append(order, r.ID)
		}
		return e
	}

	for rank, r := range vecResults {
		e := entryFor(r)
		e.score += weightVec / float64(rrfK+rank+1)
		e.info.Methods = append(e.info.Methods, "vector")
		e.info.VecRank = rank + 1
		e.info.VecSim = r.Score
	}

	for rank, r := range ftsResults {
		e := entryFor(r)
		e.score += weightFTS / float64(rrfK+rank+1)
		e.info.Methods = append(e.info.Methods, "fts")
		e.info.FTSRank = rank + 1
	}

	entries := make([]*fusedEntry, 0, len(fused))
	for _, id := range order {
		entries = append(entries, fused[id])
	}

	// Stable so ties keep first-seen order.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].score > entries[j].score
	})

	if maxResults > 0 && len(entries) > maxResults {
		entries = entries[:maxResults]
	}

	results := make([]store.SearchResult, len(entries))
	infoMap := make(map[string]FusedResultInfo, len(entries))
	for i, e := range entries {
		results[i] = e.result
		results[i].Score = e.score
		infoMap[e.result.ID] = e.info
	}
	return results, infoMap
}
