package server

import (
	"fmt"
	"net/http"

	"soundsketch/errs"
	"soundsketch/storage"
)

// StreamURLHandler 返回版本流式文件的下载URL。
// URL 经过进程内缓存，55 分钟内同一对象不重复签发。
func (h *APIHandler) StreamURLHandler(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err, "Invalid version id")
		return
	}
	version, err := h.versionRepo.GetByID(r.Context(), versionID)
	if err != nil {
		writeError(w, err, "Failed to load version")
		return
	}

	url, err := h.urlCache.Get(r.Context(), version.StreamingKey)
	if err != nil {
		writeError(w, err, "Failed to issue stream URL")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// DownloadURLHandler 返回版本原始文件的下载URL（无原件时退回流式文件）。
// 下载开关关闭时对所有请求者一律拒绝，创建者也不例外；
// 创建者想取回原件需要先打开开关。
func (h *APIHandler) DownloadURLHandler(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err, "Invalid version id")
		return
	}
	version, err := h.versionRepo.GetByID(r.Context(), versionID)
	if err != nil {
		writeError(w, err, "Failed to load version")
		return
	}
	track, err := h.trackRepo.GetTrackByID(r.Context(), version.TrackID)
	if err != nil {
		writeError(w, err, "Failed to load track")
		return
	}

	if !track.DownloadsEnabled {
		writeError(w,
			fmt.Errorf("%w: downloads are disabled for this track", errs.ErrNotAuthorized),
			"Downloads disabled")
		return
	}

	key := version.StreamingKey
	fileName := version.FileName
	if version.HasOriginal() {
		key = version.OriginalKey.String
		fileName = version.OriginalFileName.String
	}

	url, err := h.signer.IssueDownload(r.Context(), key, storage.DefaultDownloadTTL)
	if err != nil {
		writeError(w, err, "Failed to issue download URL")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url":      url,
		"fileName": fileName,
	})
}
