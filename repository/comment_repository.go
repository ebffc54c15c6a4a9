package repository

import (
	"context"
	"fmt"

	"soundsketch/errs"
	"soundsketch/model"

	"gorm.io/gorm"
)

// CommentRepository 评论数据访问接口
type CommentRepository interface {
	Create(ctx context.Context, comment *model.Comment) error
	GetByID(ctx context.Context, id int64) (*model.Comment, error)
	// ListByTrack 返回曲目全部评论，按音频内时间戳升序
	ListByTrack(ctx context.Context, trackID int64) ([]*model.Comment, error)
	// ListByVersion 只返回锚定到某个版本的评论
	ListByVersion(ctx context.Context, versionID int64) ([]*model.Comment, error)
	// ListReplies 返回某条评论的楼中楼回复，按创建时间升序
	ListReplies(ctx context.Context, parentID int64) ([]*model.Comment, error)
	// UpdateBody 修改评论内容
	UpdateBody(ctx context.Context, id int64, body string) error
	Delete(ctx context.Context, id int64) error
}

// gormCommentRepository GORM 实现
type gormCommentRepository struct {
	db *gorm.DB
}

// NewGormCommentRepository 创建 GORM 评论仓库
func NewGormCommentRepository(db *gorm.DB) CommentRepository {
	return &gormCommentRepository{db: db}
}

// Create 创建评论
func (r *gormCommentRepository) Create(ctx context.Context, comment *model.Comment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

// GetByID 根据ID获取评论
func (r *gormCommentRepository) GetByID(ctx context.Context, id int64) (*model.Comment, error) {
	var comment model.Comment
	err := r.db.WithContext(ctx).First(&comment, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: comment %d", errs.ErrNotFound, id)
		}
		return nil, err
	}
	return &comment, nil
}

// ListByTrack 获取曲目的全部评论
func (r *gormCommentRepository) ListByTrack(ctx context.Context, trackID int64) ([]*model.Comment, error) {
	var comments []*model.Comment
	err := r.db.WithContext(ctx).
		Where("track_id = ?", trackID).
		Order("timestamp ASC, id ASC").
		Find(&comments).Error
	if err != nil {
		return nil, err
	}
	return comments, nil
}

// ListByVersion 获取某个版本的评论
func (r *gormCommentRepository) ListByVersion(ctx context.Context, versionID int64) ([]*model.Comment, error) {
	var comments []*model.Comment
	err := r.db.WithContext(ctx).
		Where("version_id = ?", versionID).
		Order("timestamp ASC, id ASC").
		Find(&comments).Error
	if err != nil {
		return nil, err
	}
	return comments, nil
}

// ListReplies 获取某条评论的全部回复
func (r *gormCommentRepository) ListReplies(ctx context.Context, parentID int64) ([]*model.Comment, error) {
	var replies []*model.Comment
	err := r.db.WithContext(ctx).
		Where("parent_comment_id = ?", parentID).
		Order("created_at ASC, id ASC").
		Find(&replies).Error
	if err != nil {
		return nil, err
	}
	return replies, nil
}

// UpdateBody 修改评论内容
func (r *gormCommentRepository) UpdateBody(ctx context.Context, id int64, body string) error {
	res := r.db.WithContext(ctx).Model(&model.Comment{}).
		Where("id = ?", id).
		Update("body", body)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: comment %d", errs.ErrNotFound, id)
	}
	return nil
}

// Delete 删除评论
func (r *gormCommentRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&model.Comment{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: comment %d", errs.ErrNotFound, id)
	}
	return nil
}
