package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatpdf-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEmbedding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bge-large", req.Model)
		assert.Equal(t, []string{"hello"}, req.Input)

		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	c := NewClient(config.EmbeddingConfig{APIKey: "secret", BaseURL: srv.URL, Model: "bge-large"}, srv.Client())
	vec, err := c.CreateEmbedding(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestCreateEmbedding_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{}`},
		{"empty data", http.StatusOK, `{"data":[]}`},
		{"bad json", http.StatusOK, `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(config.EmbeddingConfig{BaseURL: srv.URL}, srv.Client())
			_, err := c.CreateEmbedding(context.Background(), "x")
			assert.Error(t, err)
		})
	}
}

func TestCreateEmbedding_CancelledWhileRateLimited(t *testing.T) {
	c := NewClient(config.EmbeddingConfig{BaseURL: "http://127.0.0.1:0", RateLimit: 0.001}, nil)
	// 第一次消耗掉令牌，第二次必须等待，取消的 context 让 Wait 立即返回错误。
	_, _ = c.CreateEmbedding(context.Background(), "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.CreateEmbedding(ctx, "y")
	assert.Error(t, err)
}
