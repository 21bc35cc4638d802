// Package es 提供了基于 Elasticsearch 的向量库实现。
//
// 每个文档的分块写入同一个分块索引，用 namespace 字段区分；
// 另有一个命名空间清单索引，只有在某命名空间的全部分块写入并刷新后才会写入清单，
// 因此清单中存在即代表 READY。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatpdf-go/internal/config"
	"chatpdf-go/internal/model"
	"chatpdf-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// 单次 bulk 请求包含的分块数。
const bulkBatchSize = 500

// 列出清单时每页的命名空间数。
const namespacePageSize = 1000

// NewClient 根据配置创建 Elasticsearch 客户端，addresses 支持逗号分隔的多个地址。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	var addresses []string
	for _, a := range strings.Split(esCfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addresses = append(addresses, a)
		}
	}
	cfg := elasticsearch.Config{
		Addresses: addresses,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	return elasticsearch.NewClient(cfg)
}

// VectorStore 用 Elasticsearch 实现 vectorindex.Store。
type VectorStore struct {
	client         *elasticsearch.Client
	chunkIndex     string
	namespaceIndex string
	dims           int
}

// NewVectorStore 创建 VectorStore，并在索引不存在时创建它们。
func NewVectorStore(ctx context.Context, client *elasticsearch.Client, esCfg config.ElasticsearchConfig, dims int) (*VectorStore, error) {
	s := &VectorStore{
		client:         client,
		chunkIndex:     esCfg.IndexName,
		namespaceIndex: esCfg.NamespaceIndex,
		dims:           dims,
	}
	if err := s.createIndexIfNotExists(ctx, s.chunkIndex, s.chunkMapping()); err != nil {
		return nil, err
	}
	if err := s.createIndexIfNotExists(ctx, s.namespaceIndex, namespaceMapping); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *VectorStore) chunkMapping() string {
	return fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"vector_id": { "type": "keyword" },
				"namespace": { "type": "keyword" },
				"chunk_index": { "type": "integer" },
				"page": { "type": "integer" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, s.dims)
}

const namespaceMapping = `{
	"mappings": {
		"properties": {
			"namespace": { "type": "keyword" },
			"chunk_count": { "type": "integer" },
			"created_at": { "type": "date" }
		}
	}
}`

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (s *VectorStore) createIndexIfNotExists(ctx context.Context, indexName, mapping string) error {
	res, err := s.client.Indices.Exists([]string{indexName}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	// 如果 res.StatusCode 是 200，说明索引已存在
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = s.client.Indices.Create(
		indexName,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// ListNamespaces 从清单索引中列出所有已就绪的命名空间，按 namespace 排序分页（search_after）。
func (s *VectorStore) ListNamespaces(ctx context.Context) ([]string, error) {
	var out []string
	var after []interface{}
	for {
		body := map[string]interface{}{
			"size":    namespacePageSize,
			"_source": []string{"namespace"},
			"query":   map[string]interface{}{"match_all": map[string]interface{}{}},
			"sort":    []interface{}{map[string]interface{}{"namespace": "asc"}},
		}
		if after != nil {
			body["search_after"] = after
		}
		var resp struct {
			Hits struct {
				Hits []struct {
					Source model.EsNamespaceDocument `json:"_source"`
					Sort   []interface{}             `json:"sort"`
				} `json:"hits"`
			} `json:"hits"`
		}
		if err := s.search(ctx, s.namespaceIndex, body, &resp); err != nil {
			return nil, err
		}
		hits := resp.Hits.Hits
		for _, hit := range hits {
			out = append(out, hit.Source.Namespace)
		}
		if len(hits) < namespacePageSize || len(hits[len(hits)-1].Sort) == 0 {
			return out, nil
		}
		after = hits[len(hits)-1].Sort
	}
}

// HasNamespace 按文档 ID 直接查找清单记录。
func (s *VectorStore) HasNamespace(ctx context.Context, namespace string) (bool, error) {
	res, err := s.client.Exists(s.namespaceIndex, namespace, s.client.Exists.WithContext(ctx))
	if err != nil {
		return false, err
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("查询命名空间清单收到意外的状态码: %d", res.StatusCode)
	}
}

// Upsert 分批写入分块并等待刷新，全部成功后再写清单记录。
func (s *VectorStore) Upsert(ctx context.Context, namespace string, records []model.EmbeddingRecord) error {
	for start := 0; start < len(records); start += bulkBatchSize {
		end := start + bulkBatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := s.bulkIndex(ctx, namespace, records[start:end]); err != nil {
			return err
		}
	}

	manifest := model.EsNamespaceDocument{
		Namespace:  namespace,
		ChunkCount: len(records),
		CreatedAt:  time.Now(),
	}
	docBytes, err := json.Marshal(manifest)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      s.namespaceIndex,
		DocumentID: namespace,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("写入命名空间清单出错: %s", res.String())
		return errors.New("failed to index namespace manifest")
	}
	return nil
}

func (s *VectorStore) bulkIndex(ctx context.Context, namespace string, records []model.EmbeddingRecord) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		doc := model.EsChunkDocument{
			VectorID:    fmt.Sprintf("%s_%d", namespace, r.Index),
			Namespace:   namespace,
			ChunkIndex:  r.Index,
			Page:        r.Page,
			TextContent: r.Text,
			Vector:      r.Vector,
		}
		meta := map[string]interface{}{
			"index": map[string]interface{}{"_index": s.chunkIndex, "_id": doc.VectorID},
		}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{
		Index:   s.chunkIndex,
		Body:    &buf,
		Refresh: "wait_for",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("批量索引分块出错: %s", res.String())
		return errors.New("failed to bulk index chunks")
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if bulkResp.Errors {
		for _, item := range bulkResp.Items {
			for _, result := range item {
				if result.Error != nil {
					return fmt.Errorf("bulk 写入失败: %s: %s", result.Error.Type, result.Error.Reason)
				}
			}
		}
		return errors.New("bulk 写入部分失败")
	}
	return nil
}

// Search 在命名空间内做 kNN 检索。ES 的 cosine 得分为 (1+cos)/2，这里换算回 cos。
func (s *VectorStore) Search(ctx context.Context, namespace string, vector []float32, k int) ([]model.ScoredChunk, error) {
	numCandidates := k * 10
	if numCandidates < 100 {
		numCandidates = 100
	}
	body := map[string]interface{}{
		"size": k,
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": numCandidates,
			"filter": map[string]interface{}{
				"term": map[string]interface{}{"namespace": namespace},
			},
		},
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
	}
	var resp struct {
		Hits struct {
			Hits []struct {
				Source model.EsChunkDocument `json:"_source"`
				Score  float64               `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := s.search(ctx, s.chunkIndex, body, &resp); err != nil {
		return nil, err
	}

	results := make([]model.ScoredChunk, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		results = append(results, model.ScoredChunk{
			Chunk: model.Chunk{
				DocumentID: hit.Source.Namespace,
				Index:      hit.Source.ChunkIndex,
				Page:       hit.Source.Page,
				Text:       hit.Source.TextContent,
			},
			Score: 2*hit.Score - 1,
		})
	}
	return results, nil
}

// DeleteNamespace 先删除清单记录（使其不再可见），再删除全部分块。
func (s *VectorStore) DeleteNamespace(ctx context.Context, namespace string) error {
	delReq := esapi.DeleteRequest{
		Index:      s.namespaceIndex,
		DocumentID: namespace,
		Refresh:    "true",
	}
	res, err := delReq.Do(ctx, s.client)
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("删除命名空间清单失败: %s", res.Status())
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"namespace": namespace},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return err
	}
	refresh := true
	dbqReq := esapi.DeleteByQueryRequest{
		Index:   []string{s.chunkIndex},
		Body:    &buf,
		Refresh: &refresh,
	}
	res, err = dbqReq.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("删除命名空间分块失败: %s", res.String())
	}
	return nil
}

func (s *VectorStore) search(ctx context.Context, index string, body interface{}, out interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return fmt.Errorf("failed to encode es query: %w", err)
	}
	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode es response: %w", err)
	}
	return nil
}
