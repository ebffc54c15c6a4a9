package server

import (
	"net/http"

	"soundsketch/logger"
	"soundsketch/model"
)

// ListVersionsHandler 列出曲目的全部版本，新版本在前
func (h *APIHandler) ListVersionsHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err, "Invalid track id")
		return
	}
	versions, err := h.versionRepo.ListByTrack(r.Context(), trackID)
	if err != nil {
		writeError(w, err, "Failed to list versions")
		return
	}
	if versions == nil {
		versions = []*model.Version{}
	}
	writeJSON(w, http.StatusOK, versions)
}

// GetVersionHandler 获取单个版本
func (h *APIHandler) GetVersionHandler(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, version)
}

// DeleteVersionHandler 删除版本。元数据删除（含最新版本指针重指）提交后，
// 尽力回收该版本的存储对象。
func (h *APIHandler) DeleteVersionHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	versionID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err, "Invalid version id")
		return
	}

	deleted, err := h.versionRepo.Delete(r.Context(), versionID, userID)
	if err != nil {
		writeError(w, err, "Failed to delete version")
		return
	}

	keys := []string{deleted.StreamingKey}
	if deleted.HasOriginal() {
		keys = append(keys, deleted.OriginalKey.String)
	}
	h.removeObjects(keys)

	logger.Info("版本删除完成",
		logger.Int64("versionID", versionID),
		logger.Int64("userID", userID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
