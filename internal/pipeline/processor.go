package pipeline

import (
	"context"
	"fmt"

	"chatpdf-go/internal/model"
	"chatpdf-go/internal/vectorindex"
	"chatpdf-go/pkg/log"
	"chatpdf-go/pkg/tasks"
)

// DocumentFinder 按 (FileID, UserID) 查找文档。
type DocumentFinder interface {
	FindByFileIDAndUser(ctx context.Context, fileID, userID string) (*model.Document, error)
}

// Indexer 保证文档已建立索引。vectorindex.Manager 满足该接口。
type Indexer interface {
	EnsureIndexed(ctx context.Context, doc *model.Document) (*vectorindex.Retriever, error)
}

// Processor 处理 Kafka 中的索引任务，实现 kafka.TaskProcessor。
type Processor struct {
	docs    DocumentFinder
	indexer Indexer
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(docs DocumentFinder, indexer Indexer) *Processor {
	return &Processor{docs: docs, indexer: indexer}
}

// Process 为任务中的文档预先构建向量命名空间。已就绪的文档直接返回。
func (p *Processor) Process(ctx context.Context, task tasks.IndexTask) error {
	log.Infof("[Processor] 开始处理索引任务, FileID: %s, UserID: %s", task.FileID, task.UserID)

	doc, err := p.docs.FindByFileIDAndUser(ctx, task.FileID, task.UserID)
	if err != nil {
		return fmt.Errorf("查找文档失败: %w", err)
	}
	if _, err := p.indexer.EnsureIndexed(ctx, doc); err != nil {
		log.Errorf("[Processor] 构建索引失败, FileID: %s, Error: %v", task.FileID, err)
		return err
	}

	log.Infof("[Processor] 索引任务完成, FileID: %s", task.FileID)
	return nil
}
