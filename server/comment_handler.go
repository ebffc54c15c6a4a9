package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"soundsketch/core/ratelimit"
	"soundsketch/core/upload"
	"soundsketch/logger"
	"soundsketch/model"
	"soundsketch/storage"

	"github.com/google/uuid"
)

// CreateCommentRequest 评论创建请求体。
// 注册用户带令牌即可；匿名访客必须带 anonymousId（浏览器侧生成并保存的uuid）
// 和 displayName。
type CreateCommentRequest struct {
	VersionID          *int64  `json:"versionId"`
	ParentCommentID    *int64  `json:"parentCommentId"`
	Body               string  `json:"body"`
	Timestamp          float64 `json:"timestamp"` // 音频内锚点位置，单位秒
	AnonymousID        string  `json:"anonymousId"`
	DisplayName        string  `json:"displayName"`
	AttachmentKey      string  `json:"attachmentKey"`
	AttachmentFileName string  `json:"attachmentFileName"`
}

// CreateCommentHandler 创建时间戳锚定的评论。
// 注册用户限流每用户每分钟 10 条；匿名访客限流每曲目每分钟 5 条。
func (h *APIHandler) CreateCommentHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err, "Invalid track id")
		return
	}
	if _, err := h.trackRepo.GetTrackByID(r.Context(), trackID); err != nil {
		writeError(w, err, "Failed to load track")
		return
	}

	var req CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Body == "" {
		http.Error(w, "Comment body is required", http.StatusBadRequest)
		return
	}
	if req.Timestamp < 0 {
		http.Error(w, "Timestamp must not be negative", http.StatusBadRequest)
		return
	}
	if req.ParentCommentID != nil {
		parent, err := h.commentRepo.GetByID(r.Context(), *req.ParentCommentID)
		if err != nil {
			writeError(w, err, "Failed to load parent comment")
			return
		}
		if parent.TrackID != trackID {
			http.Error(w, "Parent comment belongs to another track", http.StatusBadRequest)
			return
		}
		// 只支持一层楼中楼，对回复的回复挂到同一个父评论下
		if parent.IsReply() {
			http.Error(w, "Cannot reply to a reply", http.StatusBadRequest)
			return
		}
	}

	comment := &model.Comment{
		TrackID:         trackID,
		VersionID:       req.VersionID,
		ParentCommentID: req.ParentCommentID,
		Body:            req.Body,
		Timestamp:       req.Timestamp,
	}

	userID, authErr := GetUserIDFromContext(r.Context())
	if authErr == nil {
		// 注册用户评论
		if err := h.limiter.Check(r.Context(), ratelimit.CommentUserKey(userID),
			ratelimit.CommentUserMax, ratelimit.CommentUserWindow); err != nil {
			writeError(w, err, "Comment rate limit exceeded")
			return
		}
		comment.AuthorID = &userID
		if username, err := GetUsernameFromContext(r.Context()); err == nil {
			comment.DisplayName = username
		}
	} else {
		// 匿名评论
		if req.AnonymousID == "" || req.DisplayName == "" {
			http.Error(w, "anonymousId and displayName are required for anonymous comments", http.StatusBadRequest)
			return
		}
		if _, err := uuid.Parse(req.AnonymousID); err != nil {
			http.Error(w, "anonymousId must be a valid uuid", http.StatusBadRequest)
			return
		}
		if err := h.limiter.Check(r.Context(), ratelimit.CommentAnonKey(trackID),
			ratelimit.CommentAnonMax, ratelimit.CommentAnonWindow); err != nil {
			writeError(w, err, "Comment rate limit exceeded")
			return
		}
		anonID := req.AnonymousID
		comment.AnonymousID = &anonID
		comment.DisplayName = req.DisplayName
	}

	if req.AttachmentKey != "" {
		key := req.AttachmentKey
		name := req.AttachmentFileName
		comment.AttachmentKey = &key
		comment.AttachmentFileName = &name
	}

	if err := h.commentRepo.Create(r.Context(), comment); err != nil {
		writeError(w, err, "Failed to create comment")
		return
	}

	logger.Info("评论已创建",
		logger.Int64("trackID", trackID),
		logger.Int64("commentID", comment.ID),
		logger.Bool("anonymous", comment.AuthorID == nil))
	writeJSON(w, http.StatusCreated, comment)
}

// ListCommentsHandler 列出曲目评论，按音频内时间戳升序。
// 传 versionId 查询参数时只返回锚定到该版本的评论。
func (h *APIHandler) ListCommentsHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err, "Invalid track id")
		return
	}

	var comments []*model.Comment
	if versionStr := r.URL.Query().Get("versionId"); versionStr != "" {
		versionID, err := strconv.ParseInt(versionStr, 10, 64)
		if err != nil {
			http.Error(w, "Invalid versionId", http.StatusBadRequest)
			return
		}
		comments, err = h.commentRepo.ListByVersion(r.Context(), versionID)
		if err != nil {
			writeError(w, err, "Failed to list comments")
			return
		}
	} else {
		comments, err = h.commentRepo.ListByTrack(r.Context(), trackID)
		if err != nil {
			writeError(w, err, "Failed to list comments")
			return
		}
	}
	if comments == nil {
		comments = []*model.Comment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

// ListRepliesHandler 列出某条评论的楼中楼回复，按创建时间升序
func (h *APIHandler) ListRepliesHandler(w http.ResponseWriter, r *http.Request) {
	commentID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err, "Invalid comment id")
		return
	}
	if _, err := h.commentRepo.GetByID(r.Context(), commentID); err != nil {
		writeError(w, err, "Failed to load comment")
		return
	}

	replies, err := h.commentRepo.ListReplies(r.Context(), commentID)
	if err != nil {
		writeError(w, err, "Failed to list replies")
		return
	}
	if replies == nil {
		replies = []*model.Comment{}
	}
	writeJSON(w, http.StatusOK, replies)
}

// UpdateCommentRequest 评论编辑请求体。
// 匿名评论编辑时要带创建时的 anonymousId。
type UpdateCommentRequest struct {
	Body        string `json:"body"`
	AnonymousID string `json:"anonymousId"`
}

// UpdateCommentHandler 编辑评论内容。注册用户只能编辑自己的评论；
// 匿名评论凭创建时的 anonymousId 编辑。只允许修改正文。
func (h *APIHandler) UpdateCommentHandler(w http.ResponseWriter, r *http.Request) {
	commentID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err, "Invalid comment id")
		return
	}
	var req UpdateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Body == "" {
		http.Error(w, "Comment body is required", http.StatusBadRequest)
		return
	}

	comment, err := h.commentRepo.GetByID(r.Context(), commentID)
	if err != nil {
		writeError(w, err, "Failed to load comment")
		return
	}

	if comment.AuthorID != nil {
		userID, err := GetUserIDFromContext(r.Context())
		if err != nil || *comment.AuthorID != userID {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	} else {
		if comment.AnonymousID == nil || req.AnonymousID == "" || *comment.AnonymousID != req.AnonymousID {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	if err := h.commentRepo.UpdateBody(r.Context(), commentID, req.Body); err != nil {
		writeError(w, err, "Failed to update comment")
		return
	}
	comment.Body = req.Body
	logger.Info("评论已编辑", logger.Int64("commentID", commentID))
	writeJSON(w, http.StatusOK, comment)
}

// DeleteCommentHandler 删除评论。评论作者或曲目创建者可删除；
// 带附件的评论删除后尽力回收附件对象。
func (h *APIHandler) DeleteCommentHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	commentID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err, "Invalid comment id")
		return
	}

	comment, err := h.commentRepo.GetByID(r.Context(), commentID)
	if err != nil {
		writeError(w, err, "Failed to load comment")
		return
	}
	track, err := h.trackRepo.GetTrackByID(r.Context(), comment.TrackID)
	if err != nil {
		writeError(w, err, "Failed to load track")
		return
	}
	isAuthor := comment.AuthorID != nil && *comment.AuthorID == userID
	if !isAuthor && track.CreatorID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if err := h.commentRepo.Delete(r.Context(), commentID); err != nil {
		writeError(w, err, "Failed to delete comment")
		return
	}
	if comment.AttachmentKey != nil {
		h.removeObjects([]string{*comment.AttachmentKey})
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// AttachmentUploadURLHandler 为评论附件签发直传URL。
// 附件在评论创建前上传；返回的 key 随后写进评论记录。
func (h *APIHandler) AttachmentUploadURLHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileName string `json:"fileName"`
		FileSize int64  `json:"fileSize"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := upload.ValidateAttachmentFile(req.FileName, req.FileSize); err != nil {
		writeError(w, err, "Invalid attachment")
		return
	}

	key, err := storage.AllocateKey(storage.ScopeAttachments, "", storage.RolePlain, upload.FileExtension(req.FileName))
	if err != nil {
		writeError(w, err, "Failed to allocate object key")
		return
	}
	url, err := h.presign.IssueUpload(r.Context(), key, storage.DefaultUploadTTL)
	if err != nil {
		writeError(w, err, "Failed to issue upload URL")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":         key,
		"url":         url,
		"contentType": upload.MIMEForExtension(upload.FileExtension(req.FileName)),
	})
}

// AttachmentDownloadURLHandler 返回评论附件的下载URL
func (h *APIHandler) AttachmentDownloadURLHandler(w http.ResponseWriter, r *http.Request) {
	commentID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err, "Invalid comment id")
		return
	}
	comment, err := h.commentRepo.GetByID(r.Context(), commentID)
	if err != nil {
		writeError(w, err, "Failed to load comment")
		return
	}
	if comment.AttachmentKey == nil {
		http.Error(w, "Comment has no attachment", http.StatusNotFound)
		return
	}

	url, err := h.urlCache.Get(r.Context(), *comment.AttachmentKey)
	if err != nil {
		writeError(w, err, "Failed to issue attachment URL")
		return
	}
	resp := map[string]string{"url": url}
	if comment.AttachmentFileName != nil {
		resp["fileName"] = *comment.AttachmentFileName
	}
	writeJSON(w, http.StatusOK, resp)
}
