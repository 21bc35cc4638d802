package service

import (
	"context"

	"chatpdf-go/internal/model"
	"chatpdf-go/internal/repository"
)

// ConversationService 定义了对话历史查询的接口。
type ConversationService interface {
	GetConversationHistory(ctx context.Context, fileID, userID string) ([]model.ChatMessage, error)
}

type conversationService struct {
	docs     repository.DocumentRepository
	messages repository.ChatMessageRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(docs repository.DocumentRepository, messages repository.ChatMessageRepository) ConversationService {
	return &conversationService{docs: docs, messages: messages}
}

// GetConversationHistory 返回用户在某文档上的完整对话，文档必须属于该用户。
func (s *conversationService) GetConversationHistory(ctx context.Context, fileID, userID string) ([]model.ChatMessage, error) {
	if _, err := s.docs.FindByFileIDAndUser(ctx, fileID, userID); err != nil {
		return nil, err
	}
	return s.messages.History(ctx, fileID, userID)
}
