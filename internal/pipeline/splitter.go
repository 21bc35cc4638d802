package pipeline

import (
	"fmt"
	"strings"

	"chatpdf-go/internal/model"
)

// Page 是从文件中提取出的一页纯文本。
type Page struct {
	Number int
	Text   string
}

// Splitter 以固定窗口和重叠将文本切块。
// 切块边界只取决于文本内容与 (size, overlap)，相同输入总是得到相同输出。
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter 创建切块器，要求 0 <= overlap < size。
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size 必须大于 0, 当前为 %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap (%d) 必须满足 0 <= overlap < size (%d)", overlap, size)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split 逐页切块，Index 在整个文档内连续编号。纯空白的窗口会被跳过。
func (s *Splitter) Split(documentID string, pages []Page) []model.Chunk {
	var chunks []model.Chunk
	for _, page := range pages {
		for _, text := range s.splitText(page.Text) {
			chunks = append(chunks, model.Chunk{
				DocumentID: documentID,
				Index:      len(chunks),
				Page:       page.Number,
				Text:       text,
			})
		}
	}
	return chunks
}

// splitText 将长文本按指定大小和重叠进行切分（按 rune 计数，避免截断多字节字符）。
func (s *Splitter) splitText(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var out []string
	step := s.size - s.overlap
	for i := 0; i < len(runes); i += step {
		end := i + s.size
		if end > len(runes) {
			end = len(runes)
		}
		if piece := strings.TrimSpace(string(runes[i:end])); piece != "" {
			out = append(out, piece)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
