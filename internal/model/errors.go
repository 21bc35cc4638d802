package model

import "errors"

// 错误类型，调用方通过 errors.Is 判断，handler 据此映射为 HTTP 状态码。
var (
	// ErrUnauthenticated 表示调用方身份无法确认。
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound 表示文档不存在或不属于调用方。
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput 表示请求参数不合法。
	ErrInvalidInput = errors.New("invalid input")

	// ErrSourceUnavailable 表示无法获取文档原始字节。
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrUnsupportedFormat 表示无法从文件中提取文本。
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrEmbeddingProvider 表示向量化服务调用失败（包括超时）。
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrGenerationProvider 表示大模型生成失败（包括超时）。
	ErrGenerationProvider = errors.New("generation provider error")

	// ErrStore 表示对话记录、文件表或向量库读写失败。
	ErrStore = errors.New("store error")
)
