// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"
	"fmt"

	"chatpdf-go/internal/model"

	"gorm.io/gorm"
)

// DocumentRepository 定义了 files 表的持久化操作。
type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	// FindByFileIDAndUser 只返回属于该用户的文档，否则返回 model.ErrNotFound。
	FindByFileIDAndUser(ctx context.Context, fileID, userID string) (*model.Document, error)
	ListByUser(ctx context.Context, userID string) ([]model.Document, error)
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 在数据库中创建一条文件记录。
func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("%w: 保存文件记录失败: %v", model.ErrStore, err)
	}
	return nil
}

// FindByFileIDAndUser 根据文件 ID 和用户 ID 检索文件记录。
func (r *documentRepository) FindByFileIDAndUser(ctx context.Context, fileID, userID string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("file_id = ? AND user_id = ?", fileID, userID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: 文件 %s", model.ErrNotFound, fileID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: 查询文件记录失败: %v", model.ErrStore, err)
	}
	return &doc, nil
}

// ListByUser 按上传时间倒序列出用户的文件。
func (r *documentRepository) ListByUser(ctx context.Context, userID string) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("uploaded_at DESC, id DESC").Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: 查询文件列表失败: %v", model.ErrStore, err)
	}
	return docs, nil
}
