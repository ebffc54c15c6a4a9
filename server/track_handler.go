package server

import (
	"encoding/json"
	"net/http"

	"soundsketch/logger"
	"soundsketch/model"

	"github.com/gorilla/mux"
)

// CreateTrackHandler 创建曲目
func (h *APIHandler) CreateTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "Title is required", http.StatusBadRequest)
		return
	}

	track := &model.Track{
		CreatorID:   userID,
		Title:       req.Title,
		Description: req.Description,
	}
	if _, err := h.trackRepo.CreateTrack(r.Context(), track); err != nil {
		writeError(w, err, "Failed to create track")
		return
	}

	logger.Info("曲目已创建", logger.Int64("trackID", track.ID), logger.Int64("creatorID", userID))
	writeJSON(w, http.StatusCreated, track)
}

// GetTracksHandler 列出当前用户的曲目
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	tracks, err := h.trackRepo.GetTracksByCreator(r.Context(), userID)
	if err != nil {
		writeError(w, err, "Failed to list tracks")
		return
	}
	if tracks == nil {
		tracks = []*model.Track{}
	}
	writeJSON(w, http.StatusOK, tracks)
}

// GetTrackHandler 获取单个曲目
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err, "Invalid track id")
		return
	}
	track, err := h.trackRepo.GetTrackByID(r.Context(), trackID)
	if err != nil {
		writeError(w, err, "Failed to load track")
		return
	}
	writeJSON(w, http.StatusOK, track)
}

// GetSharedTrackHandler 通过分享链接ID获取曲目，无需认证
func (h *APIHandler) GetSharedTrackHandler(w http.ResponseWriter, r *http.Request) {
	shareableID := mux.Vars(r)["shareable_id"]
	track, err := h.trackRepo.GetTrackByShareableID(r.Context(), shareableID)
	if err != nil {
		writeError(w, err, "Failed to load shared track")
		return
	}

	versions, err := h.versionRepo.ListByTrack(r.Context(), track.ID)
	if err != nil {
		writeError(w, err, "Failed to load versions")
		return
	}
	if versions == nil {
		versions = []*model.Version{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"track":    track,
		"versions": versions,
	})
}

// UpdateTrackHandler 更新曲目标题和描述
func (h *APIHandler) UpdateTrackHandler(w http.ResponseWriter, r *http.Request) {
	track, ok := h.ownedTrack(w, r)
	if !ok {
		return
	}

	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		req.Title = track.Title
	}

	if err := h.trackRepo.UpdateTrack(r.Context(), track.ID, req.Title, req.Description); err != nil {
		writeError(w, err, "Failed to update track")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// SetDownloadsEnabledHandler 开关原始文件下载
func (h *APIHandler) SetDownloadsEnabledHandler(w http.ResponseWriter, r *http.Request) {
	track, ok := h.ownedTrack(w, r)
	if !ok {
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.trackRepo.SetDownloadsEnabled(r.Context(), track.ID, req.Enabled); err != nil {
		writeError(w, err, "Failed to update downloads flag")
		return
	}
	logger.Info("下载开关已更新",
		logger.Int64("trackID", track.ID),
		logger.Bool("enabled", req.Enabled))
	writeJSON(w, http.StatusOK, map[string]bool{"downloadsEnabled": req.Enabled})
}

// DeleteTrackHandler 删除曲目及其全部版本
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	track, ok := h.ownedTrack(w, r)
	if !ok {
		return
	}

	// 先收集对象键，删除元数据后尽力回收存储对象
	versions, err := h.versionRepo.ListByTrack(r.Context(), track.ID)
	if err != nil {
		writeError(w, err, "Failed to load versions")
		return
	}
	var keys []string
	for _, v := range versions {
		keys = append(keys, v.StreamingKey)
		if v.HasOriginal() {
			keys = append(keys, v.OriginalKey.String)
		}
	}

	if err := h.trackRepo.DeleteTrack(r.Context(), track.ID); err != nil {
		writeError(w, err, "Failed to delete track")
		return
	}
	h.removeObjects(keys)

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ownedTrack 解析路由中的曲目ID并校验请求者是创建者。
func (h *APIHandler) ownedTrack(w http.ResponseWriter, r *http.Request) (*model.Track, bool) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	trackID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err, "Invalid track id")
		return nil, false
	}
	track, err := h.trackRepo.GetTrackByID(r.Context(), trackID)
	if err != nil {
		writeError(w, err, "Failed to load track")
		return nil, false
	}
	if track.CreatorID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return nil, false
	}
	return track, true
}
