package handler

import (
	"net/http"

	"chatpdf-go/internal/model"
	"chatpdf-go/internal/service"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// Upload 处理 multipart 文件上传，表单字段名为 file。
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "kind": "invalid_input", "message": "缺少上传文件", "data": nil})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "kind": "invalid_input", "message": "无法读取上传文件", "data": nil})
		return
	}
	defer file.Close()

	doc, err := h.docService.Upload(c.Request.Context(), userID, fileHeader.Filename, fileHeader.Size, file)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "文件上传成功", doc)
}

// Register 登记一个已有地址的文件。
func (h *DocumentHandler) Register(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req service.RegisterDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "kind": "invalid_input", "message": "请求参数错误: " + err.Error(), "data": nil})
		return
	}
	doc, err := h.docService.Register(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "文件登记成功", doc)
}

// List 列出当前用户的文件。
func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	docs, err := h.docService.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	respondOK(c, "获取文件列表成功", docs)
}

// Get 返回单个文件的元数据。
func (h *DocumentHandler) Get(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	doc, err := h.docService.Get(c.Request.Context(), c.Param("fileId"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", doc)
}

// GenerateEmbeddings 同步构建文件的向量索引。
func (h *DocumentHandler) GenerateEmbeddings(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	fileID := c.Param("fileId")
	state, err := h.docService.GenerateEmbeddings(c.Request.Context(), fileID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "索引已就绪", gin.H{"fileId": fileID, "status": state})
}

// Status 返回文件的索引状态。
func (h *DocumentHandler) Status(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	fileID := c.Param("fileId")
	state, err := h.docService.Status(c.Request.Context(), fileID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", gin.H{"fileId": fileID, "status": state})
}

// Download 返回文件的临时下载链接。
func (h *DocumentHandler) Download(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	link, err := h.docService.DownloadURL(c.Request.Context(), c.Param("fileId"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", gin.H{"downloadUrl": link})
}
