// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"chatpdf-go/internal/middleware"
	"chatpdf-go/internal/model"
	"chatpdf-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// errorKind 把错误类型映射为 HTTP 状态码和稳定的 kind 字符串。
func errorKind(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, model.ErrSourceUnavailable):
		return http.StatusUnprocessableEntity, "source_unavailable"
	case errors.Is(err, model.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "unsupported_format"
	case errors.Is(err, model.ErrEmbeddingProvider):
		return http.StatusServiceUnavailable, "embedding_provider"
	case errors.Is(err, model.ErrGenerationProvider):
		return http.StatusServiceUnavailable, "generation_provider"
	case errors.Is(err, model.ErrStore):
		return http.StatusInternalServerError, "store"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func respondError(c *gin.Context, err error) {
	status, kind := errorKind(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s %s 失败: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"code": status, "kind": kind, "message": err.Error(), "data": nil})
}

func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": message, "data": data})
}

// requireUser 取出当前用户 ID，不存在时写入 401 并返回 false。
func requireUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, model.ErrUnauthenticated)
		return "", false
	}
	return userID, true
}
