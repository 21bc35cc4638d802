package repository

import (
	"context"
	"fmt"
	"time"

	"chatpdf-go/internal/model"

	"gorm.io/gorm"
)

// ChatMessageRepository 是只追加的对话日志，按 (FileID, UserID) 隔离。
type ChatMessageRepository interface {
	// Append 原子地追加一轮对话，成功后 msg 的 ID/CreatedAt/Seq 会被填充。
	Append(ctx context.Context, msg *model.ChatMessage) error
	// History 按 CreatedAt、Seq 升序返回该 (FileID, UserID) 的全部对话。
	History(ctx context.Context, fileID, userID string) ([]model.ChatMessage, error)
}

type gormChatMessageRepository struct {
	db *gorm.DB
}

// NewChatMessageRepository 创建基于 GORM 的对话日志。
func NewChatMessageRepository(db *gorm.DB) ChatMessageRepository {
	return &gormChatMessageRepository{db: db}
}

// Append 实现 ChatMessageRepository。
func (r *gormChatMessageRepository) Append(ctx context.Context, msg *model.ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("%w: 保存对话失败: %v", model.ErrStore, err)
	}
	msg.Seq = int64(msg.ID)
	return nil
}

// History 实现 ChatMessageRepository。
func (r *gormChatMessageRepository) History(ctx context.Context, fileID, userID string) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	err := r.db.WithContext(ctx).
		Where("file_id = ? AND user_id = ?", fileID, userID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("%w: 查询对话历史失败: %v", model.ErrStore, err)
	}
	for i := range messages {
		messages[i].Seq = int64(messages[i].ID)
	}
	return messages, nil
}
