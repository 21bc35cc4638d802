package model

// Chunk 是文档文本中连续的一段，检索的最小单位。
type Chunk struct {
	DocumentID string `json:"documentId"`
	Index      int    `json:"index"` // 在文档内的顺序号
	Page       int    `json:"page"`  // 来源页码，从 1 开始
	Text       string `json:"text"`
}

// EmbeddingRecord 是写入向量库的一条记录，命名空间等于文档 ID。
type EmbeddingRecord struct {
	Chunk
	Vector []float32 `json:"vector"`
}

// ScoredChunk 是一条检索结果，Score 越大越相关。
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}
