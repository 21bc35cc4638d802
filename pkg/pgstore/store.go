// Package pgstore 提供了基于 Postgres + pgvector 的向量库实现。
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chatpdf-go/internal/model"

	"github.com/pgvector/pgvector-go"
)

// Store 用 pgvector 实现 vectorindex.Store。
// 分块与命名空间记录在同一个事务中提交，命名空间表中存在即代表 READY。
type Store struct {
	db   *sql.DB
	dims int
}

// NewStore 创建 Store，dims 为向量维度。
func NewStore(db *sql.DB, dims int) *Store {
	return &Store{db: db, dims: dims}
}

// EnsureSchema 创建扩展与表（幂等）。
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.dims <= 0 {
		return errors.New("vector dimensions must be greater than zero")
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS embedding_records (
			namespace    TEXT    NOT NULL,
			chunk_index  INTEGER NOT NULL,
			page         INTEGER NOT NULL,
			text_content TEXT    NOT NULL,
			embedding    vector(%d) NOT NULL,
			PRIMARY KEY (namespace, chunk_index)
		)`, s.dims),
		`
		CREATE TABLE IF NOT EXISTS vector_namespaces (
			namespace   TEXT PRIMARY KEY,
			chunk_count INTEGER NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// ListNamespaces 实现 vectorindex.Store。
func (s *Store) ListNamespaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT namespace FROM vector_namespaces ORDER BY namespace`)
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, fmt.Errorf("failed to scan namespace: %w", err)
		}
		out = append(out, ns)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating through namespaces: %w", rows.Err())
	}
	return out, nil
}

// HasNamespace 实现 vectorindex.Store。
func (s *Store) HasNamespace(ctx context.Context, namespace string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM vector_namespaces WHERE namespace = $1)`, namespace,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check namespace: %w", err)
	}
	return exists, nil
}

// Upsert 在一个事务内写入全部分块和命名空间记录。
func (s *Store) Upsert(ctx context.Context, namespace string, records []model.EmbeddingRecord) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embedding_records (namespace, chunk_index, page, text_content, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (namespace, chunk_index) DO UPDATE
		SET page = EXCLUDED.page,
		    text_content = EXCLUDED.text_content,
		    embedding = EXCLUDED.embedding
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if len(r.Vector) == 0 {
			return fmt.Errorf("vector of chunk %d cannot be empty", r.Index)
		}
		if _, err = stmt.ExecContext(ctx, namespace, r.Index, r.Page, r.Text, pgvector.NewVector(r.Vector)); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", r.Index, err)
		}
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO vector_namespaces (namespace, chunk_count)
		VALUES ($1, $2)
		ON CONFLICT (namespace) DO UPDATE SET chunk_count = EXCLUDED.chunk_count
	`, namespace, len(records)); err != nil {
		return fmt.Errorf("failed to insert namespace: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Search 按余弦距离升序检索，Score = 1 - distance。
func (s *Store) Search(ctx context.Context, namespace string, vector []float32, k int) ([]model.ScoredChunk, error) {
	if len(vector) == 0 {
		return nil, errors.New("query vector cannot be empty")
	}
	if k <= 0 {
		return nil, errors.New("limit must be greater than zero")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_index, page, text_content, 1 - (embedding <=> $2) AS score
		FROM embedding_records
		WHERE namespace = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`, namespace, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search query: %w", err)
	}
	defer rows.Close()

	var results []model.ScoredChunk
	for rows.Next() {
		r := model.ScoredChunk{Chunk: model.Chunk{DocumentID: namespace}}
		if err := rows.Scan(&r.Index, &r.Page, &r.Text, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		results = append(results, r)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating through chunks: %w", rows.Err())
	}
	return results, nil
}

// DeleteNamespace 实现 vectorindex.Store。
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM vector_namespaces WHERE namespace = $1`, namespace); err != nil {
		return fmt.Errorf("failed to delete namespace: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM embedding_records WHERE namespace = $1`, namespace); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return tx.Commit()
}
