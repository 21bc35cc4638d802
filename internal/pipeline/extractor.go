// Package pipeline 定义了文档处理的核心流程：下载、提取文本、切块。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"chatpdf-go/pkg/tika"

	"github.com/ledongthuc/pdf"
)

// Extractor 从文件字节中按页提取纯文本。
type Extractor interface {
	Extract(ctx context.Context, data []byte, fileName string) ([]Page, error)
}

var errNotPDF = errors.New("not a pdf document")

// PDFExtractor 使用 ledongthuc/pdf 逐页读取文本。
type PDFExtractor struct{}

// Extract 实现 Extractor。
func (PDFExtractor) Extract(_ context.Context, data []byte, _ string) (pages []Page, err error) {
	if !IsPDF(data) {
		return nil, errNotPDF
	}
	// pdf 库在遇到损坏的交叉引用表时会 panic
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("解析 PDF 失败: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("error creating PDF reader: %w", err)
	}

	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("读取第 %d 页失败: %w", i, err)
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}

// IsPDF 通过文件头判断是否为 PDF。
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// TikaExtractor 通过 Tika 服务提取其它格式，结果视为单页。
type TikaExtractor struct {
	client *tika.Client
}

// NewTikaExtractor 创建 TikaExtractor。
func NewTikaExtractor(client *tika.Client) *TikaExtractor {
	return &TikaExtractor{client: client}
}

// Extract 实现 Extractor。
func (e *TikaExtractor) Extract(ctx context.Context, data []byte, fileName string) ([]Page, error) {
	text, err := e.client.ExtractText(ctx, bytes.NewReader(data), fileName)
	if err != nil {
		return nil, err
	}
	return []Page{{Number: 1, Text: text}}, nil
}

// FormatExtractor 对 PDF 使用本地解析，其它格式交给 fallback（通常是 Tika）。
// fallback 为 nil 时只支持 PDF。
type FormatExtractor struct {
	pdf      Extractor
	fallback Extractor
}

// NewFormatExtractor 创建 FormatExtractor。
func NewFormatExtractor(fallback Extractor) *FormatExtractor {
	return &FormatExtractor{pdf: PDFExtractor{}, fallback: fallback}
}

// Extract 实现 Extractor。
func (e *FormatExtractor) Extract(ctx context.Context, data []byte, fileName string) ([]Page, error) {
	if IsPDF(data) {
		return e.pdf.Extract(ctx, data, fileName)
	}
	if e.fallback == nil {
		return nil, fmt.Errorf("不支持的文件格式: %s", fileName)
	}
	return e.fallback.Extract(ctx, data, fileName)
}

// hasText 报告是否至少有一页包含非空白文本。
func hasText(pages []Page) bool {
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}
