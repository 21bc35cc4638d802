package service

import (
	"context"
	"fmt"
	"strings"

	"chatpdf-go/internal/model"
	"chatpdf-go/internal/repository"
	"chatpdf-go/internal/vectorindex"
	"chatpdf-go/pkg/log"
)

// VectorIndex 是编排器需要的向量索引能力。vectorindex.Manager 满足该接口。
type VectorIndex interface {
	EnsureIndexed(ctx context.Context, doc *model.Document) (*vectorindex.Retriever, error)
	Retrieve(ctx context.Context, r *vectorindex.Retriever, query string, k int) ([]model.ScoredChunk, error)
}

// Rewriter 把追问改写为独立查询。
type Rewriter interface {
	Rewrite(ctx context.Context, history []model.ChatMessage, question string) (string, error)
}

// Synthesizer 基于分块生成回答。
type Synthesizer interface {
	Synthesize(ctx context.Context, chunks []model.ScoredChunk, history []model.ChatMessage, question string) (string, error)
}

// Answer 是一次问答的结果。
type Answer struct {
	Answer  string              `json:"answer"`
	Query   string              `json:"query"`
	Sources []model.ScoredChunk `json:"sources"`
	Message model.ChatMessage   `json:"message"`
}

// ChatService 定义了问答编排的接口。
type ChatService interface {
	AnswerQuestion(ctx context.Context, fileID, userID, question string) (*Answer, error)
}

type chatService struct {
	docs        repository.DocumentRepository
	messages    repository.ChatMessageRepository
	index       VectorIndex
	rewriter    Rewriter
	synthesizer Synthesizer
	topK        int
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	docs repository.DocumentRepository,
	messages repository.ChatMessageRepository,
	index VectorIndex,
	rewriter Rewriter,
	synthesizer Synthesizer,
	topK int,
) ChatService {
	return &chatService{
		docs:        docs,
		messages:    messages,
		index:       index,
		rewriter:    rewriter,
		synthesizer: synthesizer,
		topK:        topK,
	}
}

// AnswerQuestion 执行一轮完整的问答。
// 用户的问题一经写入便保留；任何后续步骤失败时不会写入 ai 回复。
func (s *chatService) AnswerQuestion(ctx context.Context, fileID, userID, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: 问题不能为空", model.ErrInvalidInput)
	}
	if userID == "" {
		return nil, model.ErrUnauthenticated
	}

	// 0. 确认文档存在且属于当前用户
	doc, err := s.docs.FindByFileIDAndUser(ctx, fileID, userID)
	if err != nil {
		return nil, err
	}

	// 1. 记录用户问题
	human := &model.ChatMessage{FileID: fileID, UserID: userID, Role: model.RoleHuman, Message: question}
	if err := s.messages.Append(ctx, human); err != nil {
		return nil, err
	}

	// 2. 读取历史（不含刚写入的这一轮）
	history, err := s.messages.History(ctx, fileID, userID)
	if err != nil {
		return nil, err
	}
	history = excludeTurn(history, human.Seq)

	// 3. 保证索引存在
	retriever, err := s.index.EnsureIndexed(ctx, doc)
	if err != nil {
		log.Errorf("[ChatService] 构建索引失败, FileID: %s, Error: %v", fileID, err)
		return nil, err
	}

	// 4. 改写查询
	query, err := s.rewriter.Rewrite(ctx, history, question)
	if err != nil {
		log.Errorf("[ChatService] 改写查询失败, FileID: %s, Error: %v", fileID, err)
		return nil, err
	}

	// 5. 检索
	chunks, err := s.index.Retrieve(ctx, retriever, query, s.topK)
	if err != nil {
		log.Errorf("[ChatService] 检索失败, FileID: %s, Error: %v", fileID, err)
		return nil, err
	}
	log.Infof("[ChatService] 检索到 %d 个分块, query: '%s'", len(chunks), query)

	// 6. 生成回答
	text, err := s.synthesizer.Synthesize(ctx, chunks, history, question)
	if err != nil {
		log.Errorf("[ChatService] 生成回答失败, FileID: %s, Error: %v", fileID, err)
		return nil, err
	}

	// 7. 记录回答
	ai := &model.ChatMessage{FileID: fileID, UserID: userID, Role: model.RoleAI, Message: text}
	if err := s.messages.Append(ctx, ai); err != nil {
		return nil, err
	}

	return &Answer{Answer: text, Query: query, Sources: chunks, Message: *ai}, nil
}

// excludeTurn 去掉 Seq 为 seq 的那一轮。并发写入时它不一定位于末尾。
func excludeTurn(history []model.ChatMessage, seq int64) []model.ChatMessage {
	out := make([]model.ChatMessage, 0, len(history))
	for _, m := range history {
		if m.Seq == seq {
			continue
		}
		out = append(out, m)
	}
	return out
}
