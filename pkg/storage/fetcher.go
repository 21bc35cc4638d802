package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Fetcher 根据 uri 读取原始字节。
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// DefaultMaxDownloadBytes 是未配置上限时单个文件的最大下载字节数。
const DefaultMaxDownloadBytes int64 = 50 << 20

// ErrTooLarge 表示远程文件超过了下载上限。
var ErrTooLarge = errors.New("file exceeds download limit")

// HTTPFetcher 通过 GET 下载 http(s) 地址。
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher 创建 HTTPFetcher，client 为 nil 时使用 http.DefaultClient，
// maxBytes <= 0 时使用 DefaultMaxDownloadBytes。
func NewHTTPFetcher(client *http.Client, maxBytes int64) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDownloadBytes
	}
	return &HTTPFetcher{client: client, maxBytes: maxBytes}
}

// Fetch 下载 uri 的内容，非 200 状态或超过上限都视为失败。
func (f *HTTPFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("创建下载请求失败: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("下载 %s 失败: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("下载 %s 返回非 200 状态码: %s", uri, resp.Status)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: %s 大小为 %d 字节, 上限 %d", ErrTooLarge, uri, resp.ContentLength, f.maxBytes)
	}
	// 多读一个字节以发现没有声明长度的超限响应
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("读取下载内容失败: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %s 超过 %d 字节", ErrTooLarge, uri, f.maxBytes)
	}
	return data, nil
}

// Router 按 scheme 把请求分发给对应的 Fetcher：http(s) 走 HTTP，其余走对象存储。
type Router struct {
	objects Fetcher
	web     Fetcher
}

// NewRouter 创建一个 Router。objects 可以为 nil（只支持 URL）。
func NewRouter(objects, web Fetcher) *Router {
	return &Router{objects: objects, web: web}
}

// Fetch 实现 Fetcher。
func (r *Router) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if IsWebURL(uri) {
		if r.web == nil {
			return nil, fmt.Errorf("未配置 HTTP 下载: %s", uri)
		}
		return r.web.Fetch(ctx, uri)
	}
	if r.objects == nil {
		return nil, fmt.Errorf("未配置对象存储: %s", uri)
	}
	return r.objects.Fetch(ctx, uri)
}

// IsWebURL 报告 uri 是否为 http(s) 地址。
func IsWebURL(uri string) bool {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://")
}
