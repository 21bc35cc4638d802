// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"time"

	"chatpdf-go/internal/model"
	"chatpdf-go/pkg/llm"
)

// Generator 是生成服务的最小能力。llm.Client 满足该接口。
type Generator interface {
	Generate(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error)
}

// 未配置提示词时使用的默认值。
const (
	defaultRewriteInstruction = "Given the above conversation, generate a search query to look up in order to get information relevant to the conversation"
	defaultAnswerRules        = "Role: You are a helpful assistant with a friendly and engaging personality. You are an expert in analyzing & summarizing documents and answering questions based on the below context provided:"
	defaultNoResultText       = "(no relevant passages were found in the document)"
)

// historyMessages 把对话记录转换为 role-based 消息：human -> user，ai -> assistant。
func historyMessages(history []model.ChatMessage) []llm.Message {
	msgs := make([]llm.Message, 0, len(history))
	for _, m := range history {
		role := llm.RoleAssistant
		if m.IsHuman() {
			role = llm.RoleUser
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Message})
	}
	return msgs
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
