package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"chatpdf-go/internal/model"
)

// MemoryStore 是进程内的向量库，使用暴力余弦相似度检索。
// 用于本地开发（vector.backend=memory）和测试。
type MemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string][]model.EmbeddingRecord
}

// NewMemoryStore 创建一个空的 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{namespaces: make(map[string][]model.EmbeddingRecord)}
}

// ListNamespaces 实现 Store。
func (s *MemoryStore) ListNamespaces(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.namespaces))
	for ns := range s.namespaces {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out, nil
}

// HasNamespace 实现 Store。
func (s *MemoryStore) HasNamespace(_ context.Context, namespace string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.namespaces[namespace]
	return ok, nil
}

// Upsert 整体替换命名空间内容，写锁内一次性可见。
func (s *MemoryStore) Upsert(_ context.Context, namespace string, records []model.EmbeddingRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("命名空间 %s 没有可写入的记录", namespace)
	}
	dim := len(records[0].Vector)
	copied := make([]model.EmbeddingRecord, len(records))
	for i, r := range records {
		if len(r.Vector) != dim {
			return fmt.Errorf("向量维度不一致: chunk %d 为 %d, 期望 %d", r.Index, len(r.Vector), dim)
		}
		copied[i] = r
		copied[i].Vector = append([]float32(nil), r.Vector...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.namespaces[namespace] = copied
	return nil
}

// Search 实现 Store。
func (s *MemoryStore) Search(_ context.Context, namespace string, vector []float32, k int) ([]model.ScoredChunk, error) {
	s.mu.RLock()
	records := s.namespaces[namespace]
	s.mu.RUnlock()

	results := make([]model.ScoredChunk, 0, len(records))
	for _, r := range records {
		results = append(results, model.ScoredChunk{Chunk: r.Chunk, Score: cosineSimilarity(vector, r.Vector)})
	}
	sortByScore(results)
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// DeleteNamespace 实现 Store。
func (s *MemoryStore) DeleteNamespace(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, namespace)
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortByScore 按分数降序排列，分数相同时按分块顺序，保证结果稳定。
func sortByScore(results []model.ScoredChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Index < results[j].Index
	})
}
