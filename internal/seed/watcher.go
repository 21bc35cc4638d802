// Package seed 把种子目录中的 PDF 以指定用户的身份导入，并持续监听新文件。
package seed

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chatpdf-go/internal/model"
	"chatpdf-go/pkg/log"

	"github.com/fsnotify/fsnotify"
)

// settleDelay 是文件最后一次写入后到开始导入的等待时间。
const settleDelay = 500 * time.Millisecond

// Uploader 是导入所需的文档服务能力。service.DocumentService 满足该接口。
type Uploader interface {
	Upload(ctx context.Context, userID, fileName string, size int64, r io.Reader) (*model.Document, error)
	List(ctx context.Context, userID string) ([]model.Document, error)
}

// Watcher 扫描并监听一个目录，导入其中的 PDF 文件（按文件名幂等）。
type Watcher struct {
	dir      string
	owner    string
	uploader Uploader

	mu       sync.Mutex
	imported map[string]struct{}
	pending  map[string]*time.Timer
}

// NewWatcher 创建一个新的 Watcher。
func NewWatcher(dir, owner string, uploader Uploader) *Watcher {
	return &Watcher{
		dir:      dir,
		owner:    owner,
		uploader: uploader,
		imported: make(map[string]struct{}),
		pending:  make(map[string]*time.Timer),
	}
}

// Run 先做一次全量扫描，然后监听目录直到 ctx 结束。
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil || !info.IsDir() {
		log.Infof("[Seed] 目录 '%s' 不存在或不可用，跳过初始化导入", w.dir)
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建目录监听失败: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("监听目录 %s 失败: %w", w.dir, err)
	}

	if err := w.Scan(ctx); err != nil {
		log.Warnf("[Seed] 初始扫描失败: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.schedule(ctx, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("[Seed] 目录监听出错: %v", err)
		}
	}
}

// Scan 导入目录下所有尚未导入的 PDF。
func (w *Watcher) Scan(ctx context.Context) error {
	if err := w.loadExisting(ctx); err != nil {
		return err
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("读取目录 %s 失败: %w", w.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w.importFile(ctx, filepath.Join(w.dir, e.Name()))
	}
	return nil
}

// loadExisting 以 owner 已有的文件名初始化去重集合。
func (w *Watcher) loadExisting(ctx context.Context) error {
	docs, err := w.uploader.List(ctx, w.owner)
	if err != nil {
		return fmt.Errorf("获取已导入文件失败: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, d := range docs {
		w.imported[d.FileName] = struct{}{}
	}
	return nil
}

// schedule 在文件写入平静 settleDelay 后再导入，连续的写事件只会触发一次。
func (w *Watcher) schedule(ctx context.Context, path string) {
	if !isPDFName(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(settleDelay)
		return
	}
	w.pending[path] = time.AfterFunc(settleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.importFile(ctx, path)
	})
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

// importFile 导入单个文件，失败只记录日志。
func (w *Watcher) importFile(ctx context.Context, path string) {
	if ctx.Err() != nil || !isPDFName(path) {
		return
	}
	name := filepath.Base(path)

	w.mu.Lock()
	if _, done := w.imported[name]; done {
		w.mu.Unlock()
		log.Infof("[Seed] 已存在，跳过: %s", name)
		return
	}
	// 先占位，防止并发的事件重复导入
	w.imported[name] = struct{}{}
	w.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		w.forget(name)
		log.Warnf("[Seed] 打开文件失败: %s, err=%v", path, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		w.forget(name)
		log.Infof("[Seed] 空文件或无法读取, 跳过: %s", path)
		return
	}

	doc, err := w.uploader.Upload(ctx, w.owner, name, info.Size(), f)
	if err != nil {
		w.forget(name)
		log.Warnf("[Seed] 导入失败: %s, err=%v", path, err)
		return
	}
	log.Infof("[Seed] 导入完成并已触发向量化: %s, FileID: %s", name, doc.FileID)
}

func (w *Watcher) forget(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.imported, name)
}

func isPDFName(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
