package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"soundsketch/core/ratelimit"
	"soundsketch/core/upload"
	"soundsketch/errs"
	"soundsketch/logger"
	"soundsketch/storage"

	"github.com/google/uuid"
)

// UploadVersionHandler 上传曲目的新版本。
// Expected multipart form fields:
// - audioFile: the audio file (WAV, FLAC, MP3, M4A, AAC, OGG)
// - versionName: version label, e.g. "v2 rough mix"
// - changeNotes: optional notes (optional)
// - sessionId: optional progress session id; generated when absent
func (h *APIHandler) UploadVersionHandler(w http.ResponseWriter, r *http.Request) {
	track, ok := h.ownedTrack(w, r)
	if !ok {
		return
	}
	userID, _ := GetUserIDFromContext(r.Context())

	// 上传限流：每用户每小时 5 次
	if err := h.limiter.Check(r.Context(), ratelimit.UploadKey(userID), ratelimit.UploadMax, ratelimit.UploadWindow); err != nil {
		if errors.Is(err, errs.ErrRateLimited) {
			writeError(w, err, "Upload rate limit exceeded")
			return
		}
		writeError(w, err, "Failed to check rate limit")
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32MB max memory
		http.Error(w, "Failed to parse multipart form", http.StatusBadRequest)
		return
	}

	audioFile, audioHeader, err := r.FormFile("audioFile")
	if err != nil {
		http.Error(w, "Missing 'audioFile' in form", http.StatusBadRequest)
		return
	}
	defer audioFile.Close()

	// 扩展名和声明大小先行校验，不合格的文件不落盘
	if err := upload.ValidateAudioFile(audioHeader.Filename, audioHeader.Size); err != nil {
		writeError(w, err, "Invalid audio file")
		return
	}

	versionName := r.FormValue("versionName")
	if versionName == "" {
		http.Error(w, "versionName is required", http.StatusBadRequest)
		return
	}

	sessionID := r.FormValue("sessionId")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// 把上传内容落盘到临时文件，转码和对象上传都读本地文件
	tempDir, err := os.MkdirTemp(h.cfg.TempDir, "upload-*")
	if err != nil {
		writeError(w, err, "Failed to create temp directory")
		return
	}
	defer os.RemoveAll(tempDir)

	tempPath := filepath.Join(tempDir, filepath.Base(audioHeader.Filename))
	tempFile, err := os.Create(tempPath)
	if err != nil {
		writeError(w, err, "Failed to spool upload")
		return
	}
	written, err := io.Copy(tempFile, audioFile)
	tempFile.Close()
	if err != nil {
		writeError(w, err, "Failed to spool upload")
		return
	}

	logger.Info("开始上传版本",
		logger.Int64("trackID", track.ID),
		logger.String("fileName", audioHeader.Filename),
		logger.Int64("size", written),
		logger.String("session", sessionID))

	versionID, err := h.orchestrator.UploadFile(r.Context(), &upload.Request{
		FilePath:    tempPath,
		FileName:    audioHeader.Filename,
		FileSize:    written,
		TrackID:     track.ID,
		VersionName: versionName,
		ChangeNotes: r.FormValue("changeNotes"),
		UploadedBy:  userID,
		OnProgress: func(p upload.Progress) {
			h.progressHub.Publish(sessionID, p)
		},
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// 客户端中断：已写入对象存储的分片留给离线清理
			logger.Warn("上传被中断",
				logger.Int64("trackID", track.ID),
				logger.String("session", sessionID))
			return
		}
		writeError(w, err, "Upload failed")
		return
	}

	version, err := h.versionRepo.GetByID(r.Context(), versionID)
	if err != nil {
		writeError(w, err, "Failed to load created version")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"version":   version,
		"sessionId": sessionID,
	})
}

// removeObjects 尽力回收存储对象；与请求生命周期解耦。
func (h *APIHandler) removeObjects(keys []string) {
	if h.minioClient == nil || len(keys) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		// 对象删除失败不影响已提交的元数据变更
		storage.RemoveObjects(ctx, h.minioClient, h.presign.Bucket(), keys)
	}()
}
