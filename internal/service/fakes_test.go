package service

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"chatpdf-go/internal/model"
	"chatpdf-go/pkg/llm"
	"chatpdf-go/pkg/tasks"
)

type fakeGenerator struct {
	mu    sync.Mutex
	calls [][]llm.Message
	fn    func(msgs []llm.Message) (string, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, msgs []llm.Message, _ *llm.GenerationParams) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, msgs)
	g.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return g.fn(msgs)
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type memDocumentRepo struct {
	mu   sync.Mutex
	docs map[string]model.Document
}

func newMemDocumentRepo(docs ...model.Document) *memDocumentRepo {
	r := &memDocumentRepo{docs: make(map[string]model.Document)}
	for _, d := range docs {
		r.docs[d.FileID] = d
	}
	return r
}

func (r *memDocumentRepo) Create(_ context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.FileID]; ok {
		return model.ErrStore
	}
	r.docs[doc.FileID] = *doc
	return nil
}

func (r *memDocumentRepo) FindByFileIDAndUser(_ context.Context, fileID, userID string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[fileID]
	if !ok || doc.UserID != userID {
		return nil, model.ErrNotFound
	}
	return &doc, nil
}

func (r *memDocumentRepo) ListByUser(_ context.Context, userID string) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Document
	for _, d := range r.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

type memChatRepo struct {
	mu       sync.Mutex
	messages []model.ChatMessage
}

func (r *memChatRepo) Append(_ context.Context, msg *model.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg.ID = uint(len(r.messages) + 1)
	msg.Seq = int64(msg.ID)
	msg.CreatedAt = time.Now()
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *memChatRepo) History(_ context.Context, fileID, userID string) ([]model.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ChatMessage
	for _, m := range r.messages {
		if m.FileID == fileID && m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

var vocabulary = []string{"sky", "blue", "grass", "green", "sun", "hot", "color"}

// wordEmbedder 按固定词表统计词频生成向量。
type wordEmbedder struct {
	calls atomic.Int64
}

func (e *wordEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	vec := make([]float32, len(vocabulary)+1)
	vec[len(vocabulary)] = 0.01
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,?!")
		for i, v := range vocabulary {
			if w == v {
				vec[i]++
			}
		}
	}
	return vec, nil
}

type bytesFetcher struct {
	data []byte
	err  error
}

func (f bytesFetcher) Fetch(context.Context, string) ([]byte, error) { return f.data, f.err }

type fakeObjectStore struct {
	puts map[string][]byte
	err  error
}

func (s *fakeObjectStore) Put(_ context.Context, objectName string, r io.Reader, _ int64, _ string) error {
	if s.err != nil {
		return s.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if s.puts == nil {
		s.puts = make(map[string][]byte)
	}
	s.puts[objectName] = data
	return nil
}

func (s *fakeObjectStore) PresignedURL(_ context.Context, uri string, _ time.Duration) (string, error) {
	return "https://minio.local/" + uri + "?sig=x", nil
}

type fakeQueue struct {
	tasks []tasks.IndexTask
	err   error
}

func (q *fakeQueue) ProduceIndexTask(_ context.Context, task tasks.IndexTask) error {
	q.tasks = append(q.tasks, task)
	return q.err
}
