// Package vectorindex 管理每个文档的向量命名空间：按需构建一次，之后只读检索。
package vectorindex

import (
	"context"

	"chatpdf-go/internal/model"
)

// Store 是向量数据库的最小能力集合。
//
// 实现必须保证：ListNamespaces 和 HasNamespace 只看得到所有记录都已提交的命名空间，
// 也就是说一个命名空间要么完整可见，要么完全不可见。
type Store interface {
	ListNamespaces(ctx context.Context) ([]string, error)
	// HasNamespace 按名称精确查找，开销与命名空间总数无关。
	HasNamespace(ctx context.Context, namespace string) (bool, error)
	Upsert(ctx context.Context, namespace string, records []model.EmbeddingRecord) error
	Search(ctx context.Context, namespace string, vector []float32, k int) ([]model.ScoredChunk, error)
	// DeleteNamespace 删除命名空间下的全部记录，不存在时不报错。
	DeleteNamespace(ctx context.Context, namespace string) error
}
