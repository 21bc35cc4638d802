// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatpdf-go/internal/config"
	"chatpdf-go/pkg/log"
	"chatpdf-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// 同一任务最多处理失败的次数，达到后提交 offset 不再重试。
const maxAttempts = 3

// 同一条消息两次重试之间的等待时间。
const defaultRetryDelay = time.Second

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IndexTask) error
}

// Producer 发送索引任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// ProduceIndexTask 发送一个索引任务到 Kafka，以 FileID 作为消息 key。
func (p *Producer) ProduceIndexTask(ctx context.Context, task tasks.IndexTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.FileID),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer 消费索引任务，使用 Redis 记录每个任务的失败次数。
//
// kafka-go 的消费组不会重新投递未提交的消息，只有重平衡或重启后才会从
// 已提交的 offset 继续，因此失败的消息在提交前就地重试。
type Consumer struct {
	reader     *kafka.Reader
	rdb        *redis.Client
	processor  TaskProcessor
	retryDelay time.Duration
}

// NewConsumer 创建消费者。
func NewConsumer(cfg config.KafkaConfig, rdb *redis.Client, processor TaskProcessor) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, rdb: rdb, processor: processor, retryDelay: defaultRetryDelay}
}

// Run 阻塞消费直到 ctx 被取消。
func (c *Consumer) Run(ctx context.Context) {
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", c.reader.Config().Topic)
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)
		if !c.process(ctx, m.Value) {
			// 只有 ctx 被取消时才会走到这里，offset 保持未提交，重启后重新消费
			continue
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

// process 重复处理一条消息直到可以提交 offset。
// 返回 false 表示 ctx 已取消，消息不应提交。
func (c *Consumer) process(ctx context.Context, value []byte) bool {
	for attempt := 1; ; attempt++ {
		if c.handle(ctx, value) {
			return true
		}
		// Redis 不可用时计数无法推进，用本地次数兜底
		if attempt >= maxAttempts {
			log.Errorf("消息连续处理失败 %d 次，提交 offset 终止重试", attempt)
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.retryDelay):
		}
	}
}

// handle 处理一条消息，返回是否应提交 offset。
func (c *Consumer) handle(ctx context.Context, value []byte) bool {
	var task tasks.IndexTask
	if err := json.Unmarshal(value, &task); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		// 消息格式错误，直接提交，避免阻塞队列
		return true
	}

	attemptsKey := fmt.Sprintf("kafka:attempts:%s", task.FileID)
	log.Infof("开始处理索引任务: FileID=%s, UserID=%s", task.FileID, task.UserID)
	if err := c.processor.Process(ctx, task); err != nil {
		log.Errorf("处理索引任务失败: FileID=%s, Error: %v", task.FileID, err)
		// 使用 Redis 计数失败次数，达到阈值后提交 offset 终止重试
		attempts, incErr := c.rdb.Incr(ctx, attemptsKey).Result()
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
			return false
		}
		_ = c.rdb.Expire(ctx, attemptsKey, 24*time.Hour).Err()
		if attempts >= maxAttempts {
			log.Errorf("索引任务多次失败(>=%d)，提交 offset 终止重试: FileID=%s", maxAttempts, task.FileID)
			return true
		}
		return false
	}

	log.Infof("索引任务处理成功: FileID=%s", task.FileID)
	_ = c.rdb.Del(ctx, attemptsKey).Err()
	return true
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
