package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chatpdf-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// appendTurnScript 以 Redis 服务器时间作为 created_at 并追加到列表尾部，
// 列表顺序与时间戳在同一个原子操作内确定，二者不会相互矛盾。
var appendTurnScript = redis.NewScript(`
local t = redis.call('TIME')
local ms = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local turn = cjson.encode({role = ARGV[1], message = ARGV[2], created_at = ms})
local n = redis.call('RPUSH', KEYS[1], turn)
return {n, ms}
`)

type redisTurn struct {
	Role      string `json:"role"`
	Message   string `json:"message"`
	CreatedAt int64  `json:"created_at"` // unix 毫秒
}

type redisChatMessageRepository struct {
	redisClient *redis.Client
}

// NewRedisChatMessageRepository 创建基于 Redis 列表的对话日志，Seq 为列表中的位置（从 1 开始）。
func NewRedisChatMessageRepository(redisClient *redis.Client) ChatMessageRepository {
	return &redisChatMessageRepository{redisClient: redisClient}
}

func chatKey(fileID, userID string) string {
	return fmt.Sprintf("chat:%s:%s", fileID, userID)
}

// Append 实现 ChatMessageRepository。
func (r *redisChatMessageRepository) Append(ctx context.Context, msg *model.ChatMessage) error {
	res, err := appendTurnScript.Run(ctx, r.redisClient, []string{chatKey(msg.FileID, msg.UserID)}, msg.Role, msg.Message).Result()
	if err != nil {
		return fmt.Errorf("%w: 保存对话失败: %v", model.ErrStore, err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return fmt.Errorf("%w: 追加脚本返回了意外的结果: %v", model.ErrStore, res)
	}
	seq, _ := vals[0].(int64)
	ms, _ := vals[1].(int64)
	msg.Seq = seq
	msg.ID = uint(seq)
	msg.CreatedAt = time.UnixMilli(ms)
	return nil
}

// History 实现 ChatMessageRepository。
func (r *redisChatMessageRepository) History(ctx context.Context, fileID, userID string) ([]model.ChatMessage, error) {
	items, err := r.redisClient.LRange(ctx, chatKey(fileID, userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: 查询对话历史失败: %v", model.ErrStore, err)
	}
	messages := make([]model.ChatMessage, 0, len(items))
	for i, item := range items {
		var turn redisTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("%w: 解析对话记录失败: %v", model.ErrStore, err)
		}
		messages = append(messages, model.ChatMessage{
			ID:        uint(i + 1),
			FileID:    fileID,
			UserID:    userID,
			Role:      turn.Role,
			Message:   turn.Message,
			CreatedAt: time.UnixMilli(turn.CreatedAt),
			Seq:       int64(i + 1),
		})
	}
	return messages, nil
}
