package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatpdf-go/internal/config"
	"chatpdf-go/internal/model"
	"chatpdf-go/pkg/llm"
)

// AnswerSynthesizer 基于检索到的分块与对话历史生成回答。
type AnswerSynthesizer struct {
	gen          Generator
	rules        string
	noResultText string
	params       *llm.GenerationParams
	timeout      time.Duration
}

// NewAnswerSynthesizer 创建 AnswerSynthesizer。
func NewAnswerSynthesizer(gen Generator, cfg config.LLMConfig, timeout time.Duration) *AnswerSynthesizer {
	rules := cfg.Prompt.Rules
	if rules == "" {
		rules = defaultAnswerRules
	}
	noRes := cfg.Prompt.NoResultText
	if noRes == "" {
		noRes = defaultNoResultText
	}
	return &AnswerSynthesizer{
		gen:          gen,
		rules:        rules,
		noResultText: noRes,
		params:       llm.ParamsFromConfig(cfg.Generation),
		timeout:      timeout,
	}
}

// Synthesize 调用一次大模型，原样返回回答。
func (s *AnswerSynthesizer) Synthesize(ctx context.Context, chunks []model.ScoredChunk, history []model.ChatMessage, question string) (string, error) {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: s.buildSystemMessage(chunks)})
	msgs = append(msgs, historyMessages(history)...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: question})

	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	answer, err := s.gen.Generate(callCtx, msgs, s.params)
	if err != nil {
		return "", fmt.Errorf("%w: 生成回答失败: %v", model.ErrGenerationProvider, err)
	}
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("%w: 模型返回了空回答", model.ErrGenerationProvider)
	}
	return answer, nil
}

// buildSystemMessage 按检索顺序拼接分块文本。
func (s *AnswerSynthesizer) buildSystemMessage(chunks []model.ScoredChunk) string {
	var sys strings.Builder
	sys.WriteString(s.rules)
	sys.WriteString("\n\n")
	if len(chunks) == 0 {
		sys.WriteString(s.noResultText)
		return sys.String()
	}
	for i, c := range chunks {
		if i > 0 {
			sys.WriteString("\n\n")
		}
		sys.WriteString(c.Text)
	}
	return sys.String()
}
