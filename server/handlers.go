package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"soundsketch/config"
	"soundsketch/core/auth"
	"soundsketch/core/ratelimit"
	"soundsketch/core/upload"
	"soundsketch/errs"
	"soundsketch/logger"
	"soundsketch/repository"
	"soundsketch/storage"

	"github.com/gorilla/mux"
	"github.com/minio/minio-go/v7"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	cfg          *config.Config
	userRepo     repository.UserRepository
	trackRepo    repository.TrackRepository
	versionRepo  repository.VersionRepository
	commentRepo  repository.CommentRepository
	orchestrator *upload.Orchestrator
	presign      *storage.PresignService
	signer       storage.DownloadSigner
	urlCache     *storage.URLCache
	limiter      *ratelimit.Limiter
	minioClient  *minio.Client
	progressHub  *ProgressHub
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	cfg *config.Config,
	userRepo repository.UserRepository,
	trackRepo repository.TrackRepository,
	versionRepo repository.VersionRepository,
	commentRepo repository.CommentRepository,
	orchestrator *upload.Orchestrator,
	presign *storage.PresignService,
	urlCache *storage.URLCache,
	limiter *ratelimit.Limiter,
	minioClient *minio.Client,
	progressHub *ProgressHub,
) *APIHandler {
	h := &APIHandler{
		cfg:          cfg,
		userRepo:     userRepo,
		trackRepo:    trackRepo,
		versionRepo:  versionRepo,
		commentRepo:  commentRepo,
		orchestrator: orchestrator,
		presign:      presign,
		urlCache:     urlCache,
		limiter:      limiter,
		minioClient:  minioClient,
		progressHub:  progressHub,
	}
	if presign != nil {
		h.signer = presign
	}
	return h
}

// writeJSON 输出JSON响应
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// statusForError 把业务错误映射为HTTP状态码
func statusForError(err error) int {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError 记录并输出业务错误。5xx 不向客户端回显内部细节。
func writeError(w http.ResponseWriter, err error, msg string) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, logger.ErrorField(err))
		writeJSON(w, status, map[string]string{"error": msg})
		return
	}
	logger.Warn(msg, logger.ErrorField(err))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// pathID 解析路由变量中的数字ID
func pathID(r *http.Request, name string) (int64, error) {
	idStr := mux.Vars(r)[name]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", errs.ErrValidation, name, idStr)
	}
	return id, nil
}

// AuthMiddleware is a middleware function that checks for a valid JWT token
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ParseToken(parts[1])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", claims.UserID)
		ctx = context.WithValue(ctx, "username", claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// OptionalAuthMiddleware 尝试解析令牌但不强制要求。
// 分享页的评论端点同时服务注册用户和匿名访客。
func (h *APIHandler) OptionalAuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			if claims, err := auth.ParseToken(parts[1]); err == nil {
				ctx := context.WithValue(r.Context(), "userID", claims.UserID)
				ctx = context.WithValue(ctx, "username", claims.Username)
				r = r.WithContext(ctx)
			}
		}
		next.ServeHTTP(w, r)
	}
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value("userID").(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// GetUsernameFromContext extracts the username from the request context
func GetUsernameFromContext(ctx context.Context) (string, error) {
	username, ok := ctx.Value("username").(string)
	if !ok {
		return "", fmt.Errorf("username not found in context")
	}
	return username, nil
}
