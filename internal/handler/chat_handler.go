package handler

import (
	"context"
	"net/http"

	"chatpdf-go/internal/model"
	"chatpdf-go/internal/service"
	"chatpdf-go/pkg/log"
	"chatpdf-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// AskRequest 是提问请求体。
type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

// wsRequest 是 WebSocket 中的一条提问。
type wsRequest struct {
	FileID   string `json:"fileId"`
	Question string `json:"question"`
}

// ChatHandler 负责问答与对话历史相关的请求。
type ChatHandler struct {
	chatService         service.ChatService
	conversationService service.ConversationService
	jwtManager          *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, conversationService service.ConversationService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService:         chatService,
		conversationService: conversationService,
		jwtManager:          jwtManager,
	}
}

// Ask 处理 POST /chat/:fileId。
func (h *ChatHandler) Ask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "kind": "invalid_input", "message": "请求参数错误: " + err.Error(), "data": nil})
		return
	}

	answer, err := h.chatService.AnswerQuestion(c.Request.Context(), c.Param("fileId"), userID, req.Question)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", answer)
}

// History 处理 GET /chat/:fileId，返回该用户在此文档上的对话记录。
func (h *ChatHandler) History(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	history, err := h.conversationService.GetConversationHistory(c.Request.Context(), c.Param("fileId"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if history == nil {
		history = []model.ChatMessage{}
	}
	respondOK(c, "获取对话历史成功", history)
}

// Websocket 处理 GET /ws/chat/:token。每条消息是一个 {fileId, question}，
// 每个问题回复一条 JSON：成功时为回答，失败时带 kind。
func (h *ChatHandler) Websocket(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Param("token"))
	if err != nil {
		respondError(c, model.ErrUnauthenticated)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("WebSocket 连接已建立，用户: %s", claims.UserID)

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}
		if err := conn.WriteJSON(h.answerOne(c.Request.Context(), claims.UserID, req)); err != nil {
			log.Warnf("写入 WebSocket 消息失败: %v", err)
			return
		}
	}
}

func (h *ChatHandler) answerOne(ctx context.Context, userID string, req wsRequest) gin.H {
	answer, err := h.chatService.AnswerQuestion(ctx, req.FileID, userID, req.Question)
	if err != nil {
		status, kind := errorKind(err)
		return gin.H{"type": "error", "fileId": req.FileID, "code": status, "kind": kind, "message": err.Error()}
	}
	return gin.H{"type": "answer", "fileId": req.FileID, "answer": answer.Answer, "query": answer.Query, "sources": answer.Sources}
}
