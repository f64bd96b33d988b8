// Package memory implements the Skill Memory: a content-addressed,
// semantically indexed store of verified artifacts with a two-stage
// retrieval pipeline (vector search then model-driven re-ranking), grounded
// on internal/cxdb/kilroy_registry.go's content-addressed upsert-by-key
// idiom, re-expressed over an in-memory cosine-similarity index instead of
// a CXDB event bundle.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Candidate is one vector-store hit: a skill's stable id, its similarity
// score, the stored document body (the skill's code), and its metadata.
type Candidate struct {
	ID       string
	Score    float64
	Document string
	Metadata map[string]string
}

// VectorStore upserts and nearest-neighbor queries over (id, vector,
// payload) tuples. Cross-process, it must tolerate multiple writers with
// upsert-by-id semantics (spec §5); this in-memory implementation satisfies
// that within one process via its mutex.
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float64, document string, metadata map[string]string) error
	Query(ctx context.Context, vector []float64, k int) ([]Candidate, error)
}

type entry struct {
	vector   []float64
	document string
	metadata map[string]string
}

// InMemoryVectorStore is the reference VectorStore: candidates are ranked
// by cosine similarity (spec §4.5: "HNSW, cosine space" — a brute-force
// cosine scan over a slice is the spec-conformant ordering without pulling
// in a live vector database, since the spec's non-goals exclude specifying
// one).
type InMemoryVectorStore struct {
	mu      sync.Mutex
	entries map[string]entry
}

// NewInMemoryVectorStore returns an empty store.
func NewInMemoryVectorStore() *InMemoryVectorStore {
	return &InMemoryVectorStore{entries: map[string]entry{}}
}

func (s *InMemoryVectorStore) Upsert(_ context.Context, id string, vector []float64, document string, metadata map[string]string) error {
	if id == "" {
		return fmt.Errorf("memory: upsert requires a non-empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	s.entries[id] = entry{vector: append([]float64(nil), vector...), document: document, metadata: md}
	return nil
}

func (s *InMemoryVectorStore) Query(_ context.Context, vector []float64, k int) ([]Candidate, error) {
	if k <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]Candidate, 0, len(s.entries))
	for id, e := range s.entries {
		candidates = append(candidates, Candidate{
			ID:       id,
			Score:    cosineSimilarity(vector, e.vector),
			Document: e.document,
			Metadata: e.metadata,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func cosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	for _, v := range a {
		na += v * v
	}
	for _, v := range b {
		nb += v * v
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
