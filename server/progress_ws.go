package server

import (
	"net/http"
	"sync"

	"soundsketch/core/upload"
	"soundsketch/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ProgressHub 按会话ID分发上传进度事件。
// 上传处理器是发布方，每个会话可以有多个订阅的 WebSocket 连接
// （例如用户在多个标签页打开同一个上传页面）。
type ProgressHub struct {
	mu       sync.Mutex
	sessions map[string][]chan upload.Progress
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{sessions: make(map[string][]chan upload.Progress)}
}

// Subscribe 订阅某个上传会话的进度事件
func (hub *ProgressHub) Subscribe(sessionID string) chan upload.Progress {
	ch := make(chan upload.Progress, 32)
	hub.mu.Lock()
	hub.sessions[sessionID] = append(hub.sessions[sessionID], ch)
	hub.mu.Unlock()
	return ch
}

// Unsubscribe 取消订阅并关闭通道
func (hub *ProgressHub) Unsubscribe(sessionID string, ch chan upload.Progress) {
	hub.mu.Lock()
	subs := hub.sessions[sessionID]
	for i, sub := range subs {
		if sub == ch {
			hub.sessions[sessionID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(hub.sessions[sessionID]) == 0 {
		delete(hub.sessions, sessionID)
	}
	hub.mu.Unlock()
}

// Publish 推送一个进度事件。订阅方消费过慢时丢弃旧事件，
// 进度流只关心最新状态。
func (hub *ProgressHub) Publish(sessionID string, p upload.Progress) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for _, ch := range hub.sessions[sessionID] {
		select {
		case ch <- p:
		default:
		}
	}
}

// UploadProgressWSHandler 通过 WebSocket 推送上传会话的进度事件，
// 会话进入终态（done/failed）后关闭连接。
func (h *APIHandler) UploadProgressWSHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	if sessionID == "" {
		http.Error(w, "Missing session id", http.StatusBadRequest)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	ch := h.progressHub.Subscribe(sessionID)
	defer h.progressHub.Unsubscribe(sessionID, ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case p, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(p); err != nil {
				logger.Warn("进度推送失败", logger.String("session", sessionID), logger.ErrorField(err))
				return
			}
			if p.Stage == upload.StageDone || p.Stage == upload.StageFailed {
				return
			}
		}
	}
}
