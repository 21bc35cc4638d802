// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Document 对应 files 表，记录一个上传的文件。
// 文件上传后不可变，FileID 是下游唯一的句柄（同时也是向量命名空间）。
type Document struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	FileID     string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"fileId"`
	UserID     string    `gorm:"type:varchar(128);not null;index" json:"userId"`
	FileName   string    `gorm:"type:varchar(255);not null" json:"fileName"`
	URL        string    `gorm:"type:varchar(1024);not null" json:"url"` // 对象 key 或 http(s) 地址
	Size       int64     `gorm:"not null;default:0" json:"size"`
	UploadedAt time.Time `gorm:"not null" json:"uploadedAt"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "files"
}
