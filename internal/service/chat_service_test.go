package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"chatpdf-go/internal/config"
	"chatpdf-go/internal/model"
	"chatpdf-go/internal/pipeline"
	"chatpdf-go/internal/vectorindex"
	"chatpdf-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const skyText = "The sky is blue. Grass is green. The sun is hot."

type pageExtractor struct{ text string }

func (e pageExtractor) Extract(context.Context, []byte, string) ([]pipeline.Page, error) {
	return []pipeline.Page{{Number: 1, Text: e.text}}, nil
}

type harness struct {
	svc      ChatService
	docs     *memDocumentRepo
	chats    *memChatRepo
	gen      *fakeGenerator
	embedder *wordEmbedder
}

// newHarness 组装真实的切块、向量索引与编排器，只替换外部服务。
func newHarness(t *testing.T, fetcher bytesFetcher, gen *fakeGenerator) *harness {
	t.Helper()
	splitter, err := pipeline.NewSplitter(20, 0)
	require.NoError(t, err)
	ingestor := pipeline.NewIngestor(fetcher, pageExtractor{text: skyText}, splitter)
	embedder := &wordEmbedder{}
	manager := vectorindex.NewManager(vectorindex.NewMemoryStore(), ingestor, embedder, vectorindex.Options{EmbedConcurrency: 2, Timeout: time.Second})

	docs := newMemDocumentRepo(model.Document{FileID: "doc-1", UserID: "alice", FileName: "sky.pdf", URL: "users/alice/files/doc-1/sky.pdf"})
	chats := &memChatRepo{}
	llmCfg := config.LLMConfig{}
	svc := NewChatService(docs, chats, manager,
		NewQueryRewriter(gen, llmCfg, time.Second),
		NewAnswerSynthesizer(gen, llmCfg, time.Second),
		1,
	)
	return &harness{svc: svc, docs: docs, chats: chats, gen: gen, embedder: embedder}
}

// answerFromContext 模拟一个只会复述上下文中第一个分块的模型；改写请求则返回 "sky color"。
func answerFromContext(msgs []llm.Message) (string, error) {
	last := msgs[len(msgs)-1].Content
	if strings.Contains(last, "generate a search query") {
		return "sky color", nil
	}
	if msgs[0].Role != llm.RoleSystem {
		return "", errors.New("missing system message")
	}
	parts := strings.SplitN(msgs[0].Content, "\n\n", 2)
	if len(parts) < 2 {
		return "I don't know.", nil
	}
	return parts[1], nil
}

func TestAnswerQuestion_SkyIsBlue(t *testing.T) {
	h := newHarness(t, bytesFetcher{data: []byte("%PDF-1.4")}, &fakeGenerator{fn: answerFromContext})
	ctx := context.Background()

	ans, err := h.svc.AnswerQuestion(ctx, "doc-1", "alice", "What color is the sky?")
	require.NoError(t, err)
	assert.Contains(t, ans.Answer, "blue")
	assert.Equal(t, "What color is the sky?", ans.Query)
	require.Len(t, ans.Sources, 1)
	assert.Contains(t, ans.Sources[0].Text, "sky")
	// 首轮没有历史，不需要改写
	assert.Equal(t, 1, h.gen.callCount())

	history, _ := h.chats.History(ctx, "doc-1", "alice")
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleHuman, history[0].Role)
	assert.Equal(t, model.RoleAI, history[1].Role)
	assert.Equal(t, ans.Answer, history[1].Message)

	embedsAfterFirst := h.embedder.calls.Load()

	// 第二轮：追问会基于历史改写，索引不会重建
	ans2, err := h.svc.AnswerQuestion(ctx, "doc-1", "alice", "Why is it like that?")
	require.NoError(t, err)
	assert.Equal(t, "sky color", ans2.Query)
	assert.Contains(t, ans2.Answer, "blue")
	assert.Equal(t, embedsAfterFirst+1, h.embedder.calls.Load())

	rewriteCall := h.gen.calls[1]
	require.Len(t, rewriteCall, 4)
	assert.Equal(t, "What color is the sky?", rewriteCall[0].Content)
	assert.Equal(t, llm.RoleAssistant, rewriteCall[1].Role)
	assert.Equal(t, "Why is it like that?", rewriteCall[2].Content)

	history, _ = h.chats.History(ctx, "doc-1", "alice")
	assert.Len(t, history, 4)
}

func TestAnswerQuestion_OtherUsersDocumentIsNotFound(t *testing.T) {
	h := newHarness(t, bytesFetcher{data: []byte("%PDF-1.4")}, &fakeGenerator{fn: answerFromContext})

	_, err := h.svc.AnswerQuestion(context.Background(), "doc-1", "mallory", "What color is the sky?")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Empty(t, h.chats.messages)
	assert.Zero(t, h.gen.callCount())
}

func TestAnswerQuestion_SynthesisFailureKeepsOnlyHumanTurn(t *testing.T) {
	gen := &fakeGenerator{fn: func([]llm.Message) (string, error) { return "", errors.New("503") }}
	h := newHarness(t, bytesFetcher{data: []byte("%PDF-1.4")}, gen)

	_, err := h.svc.AnswerQuestion(context.Background(), "doc-1", "alice", "What color is the sky?")
	assert.ErrorIs(t, err, model.ErrGenerationProvider)

	history, _ := h.chats.History(context.Background(), "doc-1", "alice")
	require.Len(t, history, 1)
	assert.Equal(t, model.RoleHuman, history[0].Role)
}

func TestAnswerQuestion_RewriteFailureKeepsOnlyHumanTurn(t *testing.T) {
	gen := &fakeGenerator{fn: func(msgs []llm.Message) (string, error) {
		if strings.Contains(msgs[len(msgs)-1].Content, "generate a search query") {
			return "", errors.New("timeout")
		}
		return answerFromContext(msgs)
	}}
	h := newHarness(t, bytesFetcher{data: []byte("%PDF-1.4")}, gen)
	ctx := context.Background()

	_, err := h.svc.AnswerQuestion(ctx, "doc-1", "alice", "What color is the sky?")
	require.NoError(t, err)

	_, err = h.svc.AnswerQuestion(ctx, "doc-1", "alice", "And the grass?")
	assert.ErrorIs(t, err, model.ErrGenerationProvider)

	history, _ := h.chats.History(ctx, "doc-1", "alice")
	require.Len(t, history, 3)
	assert.Equal(t, model.RoleHuman, history[2].Role)
	assert.Equal(t, "And the grass?", history[2].Message)
}

func TestAnswerQuestion_SourceUnavailable(t *testing.T) {
	h := newHarness(t, bytesFetcher{err: errors.New("404")}, &fakeGenerator{fn: answerFromContext})

	_, err := h.svc.AnswerQuestion(context.Background(), "doc-1", "alice", "What color is the sky?")
	assert.ErrorIs(t, err, model.ErrSourceUnavailable)

	history, _ := h.chats.History(context.Background(), "doc-1", "alice")
	require.Len(t, history, 1)
	assert.Zero(t, h.gen.callCount())
}

func TestAnswerQuestion_EmptyQuestion(t *testing.T) {
	h := newHarness(t, bytesFetcher{data: []byte("%PDF-1.4")}, &fakeGenerator{fn: answerFromContext})
	_, err := h.svc.AnswerQuestion(context.Background(), "doc-1", "alice", "   ")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	assert.Empty(t, h.chats.messages)
}

func TestAnswerQuestion_IsolatedPerUser(t *testing.T) {
	h := newHarness(t, bytesFetcher{data: []byte("%PDF-1.4")}, &fakeGenerator{fn: answerFromContext})
	require.NoError(t, h.docs.Create(context.Background(), &model.Document{FileID: "doc-2", UserID: "bob", URL: "k"}))

	_, err := h.svc.AnswerQuestion(context.Background(), "doc-1", "alice", "What color is the sky?")
	require.NoError(t, err)

	bobHistory, _ := h.chats.History(context.Background(), "doc-1", "bob")
	assert.Empty(t, bobHistory)
}

func TestExcludeTurn(t *testing.T) {
	history := []model.ChatMessage{{Seq: 1}, {Seq: 2}, {Seq: 3}}
	out := excludeTurn(history, 2)
	require.Len(t, out, 2)
	assert.EqualValues(t, 1, out[0].Seq)
	assert.EqualValues(t, 3, out[1].Seq)
}
