package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"chatpdf-go/internal/seed"
	"chatpdf-go/pkg/log"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `启动 HTTP 服务。启用 Kafka 时同时运行索引任务消费者，
配置了 seed.dir 时导入并监听种子目录。`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目

	// 等待中断信号以实现优雅停机
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var wg sync.WaitGroup
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer func() {
		cancelBg()
		wg.Wait()
	}()

	// 启动后台 Kafka 消费者
	if consumer := a.newConsumer(); consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Run(bgCtx)
		}()
	}

	// 导入种子目录（归属 seed.owner），已导入则跳过
	if cfg.Seed.Dir != "" {
		if cfg.Seed.Owner == "" {
			log.Warnf("seed.dir 已配置但 seed.owner 为空，跳过初始化导入")
		} else {
			watcher := seed.NewWatcher(cfg.Seed.Dir, cfg.Seed.Owner, a.documentService)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := watcher.Run(bgCtx); err != nil {
					log.Warnf("种子目录监听退出: %v", err)
				}
			}()
		}
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: newRouter(a),
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP 服务监听失败: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP 服务器关闭失败: %w", err)
	}
	log.Info("服务已优雅关闭")
	return nil
}
