package memory

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"

	"github.com/zeebo/blake3"

	"github.com/renbytes/uroboros/internal/embedding"
	"github.com/renbytes/uroboros/internal/types"
)

// kcFloor is the minimum number of candidates fetched from the vector store
// to give the re-ranker headroom (spec §4.5: "Kc = max(K, 10)").
const kcFloor = 10

// SkillMemory implements the spec's Skill Memory contract: content-addressed
// upsert-by-name storage plus two-stage retrieval (vector search, then
// model re-rank).
type SkillMemory struct {
	Embedder embedding.Embedder
	Store    VectorStore
	ReRanker ReRanker // may be nil: retrieval then just returns vector order
	Logger   *log.Logger
	EnvTag   string
}

// New constructs a SkillMemory. reranker may be nil.
func New(embedder embedding.Embedder, store VectorStore, reranker ReRanker, logger *log.Logger, envTag string) *SkillMemory {
	return &SkillMemory{Embedder: embedder, Store: store, ReRanker: reranker, Logger: logger, EnvTag: envTag}
}

// StoreSkill upserts skill by name. Embedding is computed from
// docstring⊕code, newline-normalized before submission to the Embedding
// Gateway (spec §4.5). The returned Skill carries the computed ContentHash
// and Embedding.
func (m *SkillMemory) StoreSkill(ctx context.Context, skill types.Skill) (types.Skill, error) {
	if skill.Name == "" {
		return types.Skill{}, fmt.Errorf("memory: skill name is required")
	}

	document := skill.Docstring + "\n" + skill.Code
	vec, err := m.Embedder.Embed(ctx, embedding.Normalize(document))
	if err != nil {
		return types.Skill{}, fmt.Errorf("memory: embed skill %s: %w", skill.Name, err)
	}
	skill.Embedding = vec
	skill.ContentHash = contentHash(document)

	tagsJSON, err := json.Marshal(skill.Tags)
	if err != nil {
		return types.Skill{}, fmt.Errorf("memory: marshal tags for %s: %w", skill.Name, err)
	}

	metadata := map[string]string{
		"name":            skill.Name,
		"docstring":       skill.Docstring,
		"tags_serialized": string(tagsJSON),
		"env_tag":         m.EnvTag,
		"content_hash":    skill.ContentHash,
	}
	if err := m.Store.Upsert(ctx, skill.Name, vec, skill.Code, metadata); err != nil {
		return types.Skill{}, fmt.Errorf("memory: upsert skill %s: %w", skill.Name, err)
	}
	m.logf("learned skill %s (%d bytes)", skill.Name, len(skill.Code))
	return skill, nil
}

// RetrieveRelevantSkills performs the two-stage retrieval pipeline: a
// vector search over Kc = max(limit, 10) candidates, then (when there are
// more candidates than limit) a model-driven re-rank. It never returns more
// than limit skills.
func (m *SkillMemory) RetrieveRelevantSkills(ctx context.Context, query string, limit int) ([]types.Skill, error) {
	if limit <= 0 {
		return nil, nil
	}
	vec, err := m.Embedder.Embed(ctx, embedding.Normalize(query))
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}

	kc := limit
	if kc < kcFloor {
		kc = kcFloor
	}
	candidates, err := m.Store.Query(ctx, vec, kc)
	if err != nil {
		return nil, fmt.Errorf("memory: query vector store: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	if len(candidates) > limit && m.ReRanker != nil {
		reranked, err := m.ReRanker.Rerank(ctx, query, candidates, limit)
		if err != nil {
			m.logf("re-rank errored, preserving vector order: %v", err)
		} else {
			candidates = reranked
		}
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	skills := make([]types.Skill, 0, len(candidates))
	for _, c := range candidates {
		var tags []string
		if raw := c.Metadata["tags_serialized"]; raw != "" {
			_ = json.Unmarshal([]byte(raw), &tags)
		}
		skills = append(skills, types.Skill{
			Name:        c.Metadata["name"],
			Code:        c.Document,
			Docstring:   c.Metadata["docstring"],
			Tags:        tags,
			ContentHash: c.Metadata["content_hash"],
		})
	}
	m.logf("retrieved %d skills for query %q", len(skills), truncateForLog(query))
	return skills, nil
}

func (m *SkillMemory) logf(format string, args ...any) {
	if m.Logger != nil {
		m.Logger.Printf(format, args...)
	}
}

func truncateForLog(s string) string {
	const max = 60
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func contentHash(document string) string {
	h := blake3.New()
	_, _ = h.Write([]byte(document))
	return hex.EncodeToString(h.Sum(nil))
}
