package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"chatpdf-go/internal/model"
	"chatpdf-go/internal/repository"
	"chatpdf-go/internal/vectorindex"
	"chatpdf-go/pkg/log"
	"chatpdf-go/pkg/storage"
	"chatpdf-go/pkg/tasks"
	"chatpdf-go/pkg/tika"

	"github.com/google/uuid"
)

// 下载链接有效期。
const downloadURLExpiry = time.Hour

// ObjectStore 是上传与下载链接所需的对象存储能力。storage.MinIOStore 满足该接口。
type ObjectStore interface {
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, uri string, expiry time.Duration) (string, error)
}

// IndexQueue 异步投递索引任务。kafka.Producer 满足该接口。
type IndexQueue interface {
	ProduceIndexTask(ctx context.Context, task tasks.IndexTask) error
}

// IndexController 是文档服务需要的索引能力。vectorindex.Manager 满足该接口。
type IndexController interface {
	EnsureIndexed(ctx context.Context, doc *model.Document) (*vectorindex.Retriever, error)
	Status(ctx context.Context, documentID string) (vectorindex.State, error)
}

// RegisterDocumentRequest 登记一个已存在于 URL 或对象存储中的文件。
type RegisterDocumentRequest struct {
	FileName string `json:"fileName"`
	URL      string `json:"url" binding:"required"`
	Size     int64  `json:"size"`
}

// DocumentService 定义了文档相关的业务逻辑接口。
type DocumentService interface {
	Upload(ctx context.Context, userID, fileName string, size int64, r io.Reader) (*model.Document, error)
	Register(ctx context.Context, userID string, req RegisterDocumentRequest) (*model.Document, error)
	List(ctx context.Context, userID string) ([]model.Document, error)
	Get(ctx context.Context, fileID, userID string) (*model.Document, error)
	GenerateEmbeddings(ctx context.Context, fileID, userID string) (vectorindex.State, error)
	Status(ctx context.Context, fileID, userID string) (vectorindex.State, error)
	DownloadURL(ctx context.Context, fileID, userID string) (string, error)
}

type documentService struct {
	docs    repository.DocumentRepository
	objects ObjectStore
	queue   IndexQueue
	index   IndexController
}

// NewDocumentService 创建一个新的 DocumentService 实例。
// objects 为 nil 时不支持上传；queue 为 nil 时在后台 goroutine 中直接构建索引。
func NewDocumentService(docs repository.DocumentRepository, objects ObjectStore, queue IndexQueue, index IndexController) DocumentService {
	return &documentService{docs: docs, objects: objects, queue: queue, index: index}
}

// Upload 把文件写入对象存储、登记文件记录并投递索引任务。
func (s *documentService) Upload(ctx context.Context, userID, fileName string, size int64, r io.Reader) (*model.Document, error) {
	if s.objects == nil {
		return nil, fmt.Errorf("%w: 未配置对象存储", model.ErrStore)
	}
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." || fileName == "/" {
		return nil, fmt.Errorf("%w: 文件名不能为空", model.ErrInvalidInput)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: 文件内容为空", model.ErrInvalidInput)
	}

	fileID := uuid.NewString()
	objectName := storage.ObjectName(userID, fileID, fileName)
	if err := s.objects.Put(ctx, objectName, r, size, tika.DetectMimeType(fileName)); err != nil {
		log.Errorf("[DocumentService] 上传文件到对象存储失败, Object: %s, Error: %v", objectName, err)
		return nil, fmt.Errorf("%w: 上传文件失败: %v", model.ErrStore, err)
	}
	log.Infof("[DocumentService] 文件已上传, FileID: %s, Object: %s, Size: %d", fileID, objectName, size)

	doc := &model.Document{
		FileID:     fileID,
		UserID:     userID,
		FileName:   fileName,
		URL:        objectName,
		Size:       size,
		UploadedAt: time.Now(),
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	s.enqueue(ctx, doc)
	return doc, nil
}

// Register 登记文件元数据，文件字节已经位于 req.URL。
func (s *documentService) Register(ctx context.Context, userID string, req RegisterDocumentRequest) (*model.Document, error) {
	location := strings.TrimSpace(req.URL)
	if location == "" {
		return nil, fmt.Errorf("%w: url 不能为空", model.ErrInvalidInput)
	}
	// 对象 key 只能指向调用方自己的目录，其它位置只接受 http(s) 地址
	if !storage.IsWebURL(location) && !storage.OwnedBy(location, userID) {
		return nil, fmt.Errorf("%w: 不允许登记该位置: %s", model.ErrInvalidInput, location)
	}
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		fileName = fileNameFromLocation(location)
	}

	doc := &model.Document{
		FileID:     uuid.NewString(),
		UserID:     userID,
		FileName:   fileName,
		URL:        location,
		Size:       req.Size,
		UploadedAt: time.Now(),
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	log.Infof("[DocumentService] 文件已登记, FileID: %s, URL: %s", doc.FileID, doc.URL)
	s.enqueue(ctx, doc)
	return doc, nil
}

// List 列出用户的全部文件。
func (s *documentService) List(ctx context.Context, userID string) ([]model.Document, error) {
	return s.docs.ListByUser(ctx, userID)
}

// Get 返回用户的某个文件。
func (s *documentService) Get(ctx context.Context, fileID, userID string) (*model.Document, error) {
	return s.docs.FindByFileIDAndUser(ctx, fileID, userID)
}

// GenerateEmbeddings 同步构建索引，已就绪时直接返回。
func (s *documentService) GenerateEmbeddings(ctx context.Context, fileID, userID string) (vectorindex.State, error) {
	doc, err := s.docs.FindByFileIDAndUser(ctx, fileID, userID)
	if err != nil {
		return "", err
	}
	if _, err := s.index.EnsureIndexed(ctx, doc); err != nil {
		return "", err
	}
	return vectorindex.StateReady, nil
}

// Status 返回文件的索引状态。
func (s *documentService) Status(ctx context.Context, fileID, userID string) (vectorindex.State, error) {
	if _, err := s.docs.FindByFileIDAndUser(ctx, fileID, userID); err != nil {
		return "", err
	}
	return s.index.Status(ctx, fileID)
}

// DownloadURL 返回文件的下载地址：http(s) 原样返回，对象存储生成临时链接。
func (s *documentService) DownloadURL(ctx context.Context, fileID, userID string) (string, error) {
	doc, err := s.docs.FindByFileIDAndUser(ctx, fileID, userID)
	if err != nil {
		return "", err
	}
	if storage.IsWebURL(doc.URL) {
		return doc.URL, nil
	}
	if s.objects == nil {
		return "", fmt.Errorf("%w: 未配置对象存储", model.ErrStore)
	}
	link, err := s.objects.PresignedURL(ctx, doc.URL, downloadURLExpiry)
	if err != nil {
		return "", fmt.Errorf("%w: 生成下载链接失败: %v", model.ErrStore, err)
	}
	return link, nil
}

// enqueue 投递索引任务。投递失败不影响上传结果，首次提问时仍会按需构建。
func (s *documentService) enqueue(ctx context.Context, doc *model.Document) {
	if s.queue != nil {
		task := tasks.IndexTask{FileID: doc.FileID, UserID: doc.UserID}
		if err := s.queue.ProduceIndexTask(ctx, task); err != nil {
			log.Errorf("[DocumentService] 发送索引任务到Kafka失败, FileID: %s, Error: %v", doc.FileID, err)
		} else {
			log.Infof("[DocumentService] 索引任务已发送到Kafka, FileID: %s", doc.FileID)
		}
		return
	}
	if s.index == nil {
		return
	}
	go func(doc model.Document) {
		if _, err := s.index.EnsureIndexed(context.Background(), &doc); err != nil && !errors.Is(err, context.Canceled) {
			log.Warnf("[DocumentService] 后台构建索引失败, FileID: %s, Error: %v", doc.FileID, err)
		}
	}(*doc)
}

func fileNameFromLocation(location string) string {
	if u, err := url.Parse(location); err == nil && u.Path != "" {
		if name := filepath.Base(u.Path); name != "." && name != "/" {
			return name
		}
	}
	return location
}
