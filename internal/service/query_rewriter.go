package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"chatpdf-go/internal/config"
	"chatpdf-go/internal/model"
	"chatpdf-go/pkg/llm"
	"chatpdf-go/pkg/log"
)

var reSpace = regexp.MustCompile(`\s+`)

// QueryRewriter 结合对话历史把追问改写为可独立检索的查询。
type QueryRewriter struct {
	gen         Generator
	instruction string
	params      *llm.GenerationParams
	timeout     time.Duration
}

// NewQueryRewriter 创建 QueryRewriter。
func NewQueryRewriter(gen Generator, cfg config.LLMConfig, timeout time.Duration) *QueryRewriter {
	instruction := cfg.Prompt.Rewrite
	if instruction == "" {
		instruction = defaultRewriteInstruction
	}
	return &QueryRewriter{
		gen:         gen,
		instruction: instruction,
		params:      llm.ParamsFromConfig(cfg.Generation),
		timeout:     timeout,
	}
}

// Rewrite 返回独立的检索查询。历史为空时直接返回规范化后的问题，不调用大模型。
func (r *QueryRewriter) Rewrite(ctx context.Context, history []model.ChatMessage, question string) (string, error) {
	normalized := normalizeQuestion(question)
	if len(history) == 0 {
		return normalized, nil
	}

	msgs := historyMessages(history)
	msgs = append(msgs,
		llm.Message{Role: llm.RoleUser, Content: question},
		llm.Message{Role: llm.RoleUser, Content: r.instruction},
	)

	callCtx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	query, err := r.gen.Generate(callCtx, msgs, r.params)
	if err != nil {
		return "", fmt.Errorf("%w: 改写查询失败: %v", model.ErrGenerationProvider, err)
	}

	query = normalizeQuestion(query)
	if query == "" {
		log.Warnf("[QueryRewriter] 模型返回了空查询, 回退为原问题: '%s'", normalized)
		return normalized, nil
	}
	if query != normalized {
		log.Infof("[QueryRewriter] 改写查询: '%s' -> '%s'", normalized, query)
	}
	return query, nil
}

// normalizeQuestion 归一空白并去除首尾空白。
func normalizeQuestion(q string) string {
	return strings.TrimSpace(reSpace.ReplaceAllString(q, " "))
}
