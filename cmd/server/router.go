package main

import (
	"net/http"

	"chatpdf-go/internal/handler"
	"chatpdf-go/internal/middleware"

	"github.com/gin-gonic/gin"
)

// newRouter 创建路由引擎并注册全部路由。
func newRouter(a *app) *gin.Engine {
	gin.SetMode(a.cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok", "data": nil})
	})

	chatHandler := handler.NewChatHandler(a.chatService, a.conversationService, a.jwtManager)
	documentHandler := handler.NewDocumentHandler(a.documentService)

	apiV1 := r.Group("/api/v1")
	{
		// Document 路由组，需要认证
		documents := apiV1.Group("/documents")
		documents.Use(middleware.AuthMiddleware(a.jwtManager))
		{
			documents.POST("/upload", documentHandler.Upload)
			documents.POST("", documentHandler.Register)
			documents.GET("", documentHandler.List)
			documents.GET("/:fileId", documentHandler.Get)
			documents.POST("/:fileId/embeddings", documentHandler.GenerateEmbeddings)
			documents.GET("/:fileId/status", documentHandler.Status)
			documents.GET("/:fileId/download", documentHandler.Download)
		}

		// Chat 路由组，需要认证
		chat := apiV1.Group("/chat")
		chat.Use(middleware.AuthMiddleware(a.jwtManager))
		{
			chat.POST("/:fileId", chatHandler.Ask)
			chat.GET("/:fileId", chatHandler.History)
		}

		// WebSocket 无法携带 Authorization 头，token 放在路径中
		apiV1.GET("/ws/chat/:token", chatHandler.Websocket)
	}
	return r
}
