package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chatpdf-go/internal/model"
	"chatpdf-go/pkg/log"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// State 是一个文档命名空间的索引状态。
type State string

const (
	StateAbsent   State = "ABSENT"
	StateBuilding State = "BUILDING"
	StateReady    State = "READY"
)

// Embedder 把一段文本转换为向量。embedding.Client 满足该接口。
type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Ingestor 把文档变成有序分块。pipeline.Ingestor 满足该接口。
type Ingestor interface {
	Ingest(ctx context.Context, doc *model.Document) ([]model.Chunk, error)
}

// Retriever 是一个已就绪命名空间的只读句柄。
type Retriever struct {
	namespace string
}

// Namespace 返回句柄对应的命名空间（即文档 ID）。
func (r *Retriever) Namespace() string {
	return r.namespace
}

// Options 是 Manager 的可调参数。
type Options struct {
	// EmbedConcurrency 是构建时并发向量化的上限，<=0 时按 1 处理。
	EmbedConcurrency int
	// Timeout 是每次外部调用（向量化、向量库）的超时，<=0 表示不限制。
	Timeout time.Duration
}

// Manager 负责"每个文档只构建一次"的向量索引。
type Manager struct {
	store    Store
	ingestor Ingestor
	embedder Embedder
	opts     Options

	group    singleflight.Group
	mu       sync.Mutex
	building map[string]struct{}
}

// NewManager 创建一个新的 Manager 实例。
func NewManager(store Store, ingestor Ingestor, embedder Embedder, opts Options) *Manager {
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = 1
	}
	return &Manager{
		store:    store,
		ingestor: ingestor,
		embedder: embedder,
		opts:     opts,
		building: make(map[string]struct{}),
	}
}

// EnsureIndexed 保证文档的命名空间处于 READY 状态并返回检索句柄。
// 已就绪时不会触发下载和向量化；同一文档的并发调用共享同一次构建。
func (m *Manager) EnsureIndexed(ctx context.Context, doc *model.Document) (*Retriever, error) {
	namespace := doc.FileID
	ready, err := m.isReady(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if ready {
		return &Retriever{namespace: namespace}, nil
	}

	// 构建与发起者的取消解耦：某个等待者放弃时，其余等待者仍能拿到结果。
	buildCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(namespace, func() (interface{}, error) {
		// 双重检查：上一轮构建可能刚刚完成
		ready, err := m.isReady(buildCtx, namespace)
		if err != nil {
			return nil, err
		}
		if ready {
			return nil, nil
		}
		return nil, m.build(buildCtx, doc)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return &Retriever{namespace: namespace}, nil
	}
}

// Retrieve 对查询向量化并返回最相关的 k 个分块，按分数降序。
// 检索不经过构建锁。
func (m *Manager) Retrieve(ctx context.Context, r *Retriever, query string, k int) ([]model.ScoredChunk, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: retriever 为空", model.ErrInvalidInput)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: top_k 必须大于 0", model.ErrInvalidInput)
	}

	vector, err := m.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: 查询向量化失败: %v", model.ErrEmbeddingProvider, err)
	}

	callCtx, cancel := m.withTimeout(ctx)
	defer cancel()
	results, err := m.store.Search(callCtx, r.namespace, vector, k)
	if err != nil {
		return nil, fmt.Errorf("%w: 向量检索失败: %v", model.ErrStore, err)
	}
	sortByScore(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Status 返回文档命名空间的当前状态。
func (m *Manager) Status(ctx context.Context, documentID string) (State, error) {
	if m.isBuilding(documentID) {
		return StateBuilding, nil
	}
	ready, err := m.isReady(ctx, documentID)
	if err != nil {
		return "", err
	}
	if ready {
		return StateReady, nil
	}
	return StateAbsent, nil
}

func (m *Manager) build(ctx context.Context, doc *model.Document) (err error) {
	namespace := doc.FileID
	m.setBuilding(namespace, true)
	defer m.setBuilding(namespace, false)

	start := time.Now()
	log.Infof("[VectorIndex] 命名空间 %s 不存在, 开始构建", namespace)

	// 为避免上次失败留下的残余记录，构建前先清理（幂等）
	if err := m.deleteNamespace(ctx, namespace); err != nil {
		return fmt.Errorf("%w: 清理命名空间 %s 失败: %v", model.ErrStore, namespace, err)
	}
	defer func() {
		if err != nil {
			if delErr := m.deleteNamespace(ctx, namespace); delErr != nil {
				log.Warnf("[VectorIndex] 构建失败后清理命名空间 %s 失败: %v", namespace, delErr)
			}
		}
	}()

	chunks, err := m.ingestor.Ingest(ctx, doc)
	if err != nil {
		return err
	}

	records, err := m.embedChunks(ctx, chunks)
	if err != nil {
		log.Errorf("[VectorIndex] 命名空间 %s 向量化失败: %v", namespace, err)
		return err
	}

	callCtx, cancel := m.withTimeout(ctx)
	defer cancel()
	if err := m.store.Upsert(callCtx, namespace, records); err != nil {
		log.Errorf("[VectorIndex] 命名空间 %s 写入失败: %v", namespace, err)
		return fmt.Errorf("%w: 写入向量库失败: %v", model.ErrStore, err)
	}

	log.Infow("[VectorIndex] 命名空间构建完成",
		"namespace", namespace,
		"chunks", len(records),
		"elapsed", time.Since(start).String(),
	)
	return nil
}

// embedChunks 以有限并发向量化所有分块，结果顺序与输入一致。
func (m *Manager) embedChunks(ctx context.Context, chunks []model.Chunk) ([]model.EmbeddingRecord, error) {
	records := make([]model.EmbeddingRecord, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.EmbedConcurrency)

	for i, chunk := range chunks {
		g.Go(func() error {
			vector, err := m.embed(gctx, chunk.Text)
			if err != nil {
				return fmt.Errorf("%w: 分块 %d 向量化失败: %v", model.ErrEmbeddingProvider, chunk.Index, err)
			}
			records[i] = model.EmbeddingRecord{Chunk: chunk, Vector: vector}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (m *Manager) embed(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := m.withTimeout(ctx)
	defer cancel()
	vector, err := m.embedder.CreateEmbedding(callCtx, text)
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, errors.New("返回了空向量")
	}
	return vector, nil
}

func (m *Manager) isReady(ctx context.Context, namespace string) (bool, error) {
	callCtx, cancel := m.withTimeout(ctx)
	defer cancel()
	ok, err := m.store.HasNamespace(callCtx, namespace)
	if err != nil {
		return false, fmt.Errorf("%w: 查询命名空间失败: %v", model.ErrStore, err)
	}
	return ok, nil
}

func (m *Manager) deleteNamespace(ctx context.Context, namespace string) error {
	callCtx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.store.DeleteNamespace(callCtx, namespace)
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.opts.Timeout)
}

func (m *Manager) setBuilding(namespace string, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if on {
		m.building[namespace] = struct{}{}
	} else {
		delete(m.building, namespace)
	}
}

func (m *Manager) isBuilding(namespace string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.building[namespace]
	return ok
}
