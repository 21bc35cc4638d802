package model

import "time"

// EsChunkDocument 代表存储在 Elasticsearch 分块索引中的文档结构。
type EsChunkDocument struct {
	VectorID    string    `json:"vector_id"` // namespace + "_" + chunk_index
	Namespace   string    `json:"namespace"`
	ChunkIndex  int       `json:"chunk_index"`
	Page        int       `json:"page"`
	TextContent string    `json:"text_content"`
	Vector      []float32 `json:"vector"`
}

// EsNamespaceDocument 是命名空间清单索引中的一条记录。
// 只有在该命名空间的所有分块写入完成后才会写入，它的存在即 READY。
type EsNamespaceDocument struct {
	Namespace  string    `json:"namespace"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}
