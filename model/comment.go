package model

import (
	"time"
)

// Comment 时间戳锚定的反馈评论。
// AuthorID 与 AnonymousID 二者只有一个有效：注册用户评论带 AuthorID，
// 匿名评论带浏览器侧生成的 AnonymousID（uuid）和展示名。
// ParentCommentID 非空时为楼中楼回复，回复不再带时间戳锚点语义。
type Comment struct {
	ID              int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	TrackID         int64     `json:"trackId" gorm:"index;not null"`
	VersionID       *int64    `json:"versionId" gorm:"index"`
	ParentCommentID *int64    `json:"parentCommentId" gorm:"index"`
	AuthorID        *int64    `json:"authorId" gorm:"index"`
	AnonymousID     *string   `json:"anonymousId" gorm:"size:36;index"`
	DisplayName     string    `json:"displayName" gorm:"size:100"`
	Body            string    `json:"body" gorm:"type:text;not null"`
	Timestamp       float64   `json:"timestamp"` // 音频内锚点位置，单位秒
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`

	// 可选的附件对象（图片、参考音频、PDF等），存储于对象存储
	AttachmentKey      *string `json:"attachmentKey" gorm:"size:255"`
	AttachmentFileName *string `json:"attachmentFileName" gorm:"size:255"`
}

// TableName 指定表名
func (Comment) TableName() string {
	return "comments"
}

// IsReply 是否为楼中楼回复
func (c *Comment) IsReply() bool {
	return c.ParentCommentID != nil
}
