package pipeline

import (
	"context"
	"fmt"
	"unicode/utf8"

	"chatpdf-go/internal/model"
	"chatpdf-go/pkg/log"
	"chatpdf-go/pkg/storage"
)

// Ingestor 把一个文档变成有序的分块列表。
// 它不关心是否需要入库，幂等判断由向量索引管理器负责。
type Ingestor struct {
	fetcher   storage.Fetcher
	extractor Extractor
	splitter  *Splitter
}

// NewIngestor 创建一个新的 Ingestor 实例。
func NewIngestor(fetcher storage.Fetcher, extractor Extractor, splitter *Splitter) *Ingestor {
	return &Ingestor{
		fetcher:   fetcher,
		extractor: extractor,
		splitter:  splitter,
	}
}

// Ingest 下载文档（只尝试一次）、逐页提取文本并切块。
func (i *Ingestor) Ingest(ctx context.Context, doc *model.Document) ([]model.Chunk, error) {
	log.Infof("[Ingestor] 开始处理文档, FileID: %s, FileName: %s", doc.FileID, doc.FileName)

	// 1. 下载原始字节
	data, err := i.fetcher.Fetch(ctx, doc.URL)
	if err != nil {
		log.Errorf("[Ingestor] 下载文档失败, FileID: %s, URL: %s, Error: %v", doc.FileID, doc.URL, err)
		return nil, fmt.Errorf("%w: %w", model.ErrSourceUnavailable, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: 文件 %s 内容为空", model.ErrSourceUnavailable, doc.FileName)
	}
	log.Infof("[Ingestor] 步骤1: 文件下载成功, 大小: %d 字节", len(data))

	// 2. 提取文本
	pages, err := i.extractor.Extract(ctx, data, doc.FileName)
	if err != nil {
		log.Errorf("[Ingestor] 提取文本失败, FileID: %s, Error: %v", doc.FileID, err)
		return nil, fmt.Errorf("%w: %v", model.ErrUnsupportedFormat, err)
	}
	if !hasText(pages) {
		return nil, fmt.Errorf("%w: 文件 %s 中没有可提取的文本", model.ErrUnsupportedFormat, doc.FileName)
	}
	log.Infof("[Ingestor] 步骤2: 文本提取成功, 共 %d 页", len(pages))

	// 3. 切块
	chunks := i.splitter.Split(doc.FileID, pages)
	total := 0
	for _, c := range chunks {
		total += utf8.RuneCountInString(c.Text)
	}
	log.Infof("[Ingestor] 步骤3: 文本分块完成, 共 %d 个分块, %d 字符", len(chunks), total)
	return chunks, nil
}
