package model

import "time"

// 对话角色。
const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// ChatMessage 对应 chat_messages 表中的一轮对话。
// 只追加不修改；同一 (FileID, UserID) 下按 CreatedAt、Seq 排序。
type ChatMessage struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID    string    `gorm:"type:varchar(64);not null;index:idx_chat_file_user,priority:1" json:"fileId"`
	UserID    string    `gorm:"type:varchar(128);not null;index:idx_chat_file_user,priority:2" json:"userId"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
	// Seq 在同一 (FileID, UserID) 内单调递增；MySQL 实现中等于自增 ID。
	Seq int64 `gorm:"-" json:"seq"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// IsHuman 报告该消息是否来自用户。
func (m ChatMessage) IsHuman() bool {
	return m.Role == RoleHuman
}
