package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"soundsketch/core/ratelimit"
	"soundsketch/errs"
	"soundsketch/model"

	"github.com/gorilla/mux"
)

type fakeCommentRepo struct {
	comments map[int64]*model.Comment
	nextID   int64
}

func newFakeCommentRepo() *fakeCommentRepo {
	return &fakeCommentRepo{comments: make(map[int64]*model.Comment), nextID: 1}
}

func (f *fakeCommentRepo) Create(ctx context.Context, comment *model.Comment) error {
	comment.ID = f.nextID
	f.nextID++
	cp := *comment
	f.comments[comment.ID] = &cp
	return nil
}

func (f *fakeCommentRepo) GetByID(ctx context.Context, id int64) (*model.Comment, error) {
	c, ok := f.comments[id]
	if !ok {
		return nil, fmt.Errorf("%w: comment %d", errs.ErrNotFound, id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCommentRepo) ListByTrack(ctx context.Context, trackID int64) ([]*model.Comment, error) {
	var out []*model.Comment
	for _, c := range f.comments {
		if c.TrackID == trackID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCommentRepo) ListByVersion(ctx context.Context, versionID int64) ([]*model.Comment, error) {
	return nil, nil
}

func (f *fakeCommentRepo) ListReplies(ctx context.Context, parentID int64) ([]*model.Comment, error) {
	var out []*model.Comment
	for _, c := range f.comments {
		if c.ParentCommentID != nil && *c.ParentCommentID == parentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCommentRepo) UpdateBody(ctx context.Context, id int64, body string) error {
	c, ok := f.comments[id]
	if !ok {
		return fmt.Errorf("%w: comment %d", errs.ErrNotFound, id)
	}
	c.Body = body
	return nil
}

func (f *fakeCommentRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := f.comments[id]; !ok {
		return fmt.Errorf("%w: comment %d", errs.ErrNotFound, id)
	}
	delete(f.comments, id)
	return nil
}

const anonID = "3e0f3b9a-0b2a-4c4e-9a5f-2f6d1c8e7a01"

func newCommentTestHandler() (*APIHandler, *fakeCommentRepo) {
	commentRepo := newFakeCommentRepo()
	trackRepo := &fakeTrackRepo{tracks: map[int64]*model.Track{
		10: {ID: 10, CreatorID: 7, Title: "demo"},
		11: {ID: 11, CreatorID: 7, Title: "other"},
	}}
	return &APIHandler{
		trackRepo:   trackRepo,
		commentRepo: commentRepo,
		limiter:     ratelimit.NewLimiter(ratelimit.NewMemoryStore()),
	}, commentRepo
}

func commentRouter(h *APIHandler) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/tracks/{id}/comments", h.CreateCommentHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/comments/{id}/replies", h.ListRepliesHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/comments/{id}", h.UpdateCommentHandler).Methods(http.MethodPut)
	return router
}

func postComment(router *mux.Router, trackID int64, body map[string]interface{}) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/api/tracks/%d/comments", trackID), bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateReply(t *testing.T) {
	h, repo := newCommentTestHandler()
	router := commentRouter(h)

	rec := postComment(router, 10, map[string]interface{}{
		"body": "听起来贝斯有点闷", "timestamp": 42.5,
		"anonymousId": anonID, "displayName": "访客A",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("parent status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	rec = postComment(router, 10, map[string]interface{}{
		"body": "同感，200Hz 附近可以削一点", "parentCommentId": 1,
		"anonymousId": anonID, "displayName": "访客B",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("reply status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	reply, err := repo.GetByID(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if reply.ParentCommentID == nil || *reply.ParentCommentID != 1 {
		t.Errorf("reply not linked to parent: %+v", reply)
	}
}

func TestCreateReplyToReplyRejected(t *testing.T) {
	h, _ := newCommentTestHandler()
	router := commentRouter(h)

	postComment(router, 10, map[string]interface{}{
		"body": "顶楼", "anonymousId": anonID, "displayName": "访客A",
	})
	postComment(router, 10, map[string]interface{}{
		"body": "一层回复", "parentCommentId": 1,
		"anonymousId": anonID, "displayName": "访客B",
	})

	rec := postComment(router, 10, map[string]interface{}{
		"body": "回复的回复", "parentCommentId": 2,
		"anonymousId": anonID, "displayName": "访客C",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreateReplyParentOnAnotherTrack(t *testing.T) {
	h, _ := newCommentTestHandler()
	router := commentRouter(h)

	postComment(router, 10, map[string]interface{}{
		"body": "顶楼", "anonymousId": anonID, "displayName": "访客A",
	})

	rec := postComment(router, 11, map[string]interface{}{
		"body": "跨曲目的回复", "parentCommentId": 1,
		"anonymousId": anonID, "displayName": "访客B",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListReplies(t *testing.T) {
	h, _ := newCommentTestHandler()
	router := commentRouter(h)

	postComment(router, 10, map[string]interface{}{
		"body": "顶楼", "anonymousId": anonID, "displayName": "访客A",
	})
	postComment(router, 10, map[string]interface{}{
		"body": "回复1", "parentCommentId": 1,
		"anonymousId": anonID, "displayName": "访客B",
	})
	postComment(router, 10, map[string]interface{}{
		"body": "回复2", "parentCommentId": 1,
		"anonymousId": anonID, "displayName": "访客C",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/comments/1/replies", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var replies []*model.Comment
	if err := json.Unmarshal(rec.Body.Bytes(), &replies); err != nil {
		t.Fatal(err)
	}
	if len(replies) != 2 {
		t.Errorf("got %d replies, want 2", len(replies))
	}
}

func putComment(router *mux.Router, commentID int64, userID int64, body map[string]interface{}) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPut,
		fmt.Sprintf("/api/comments/%d", commentID), bytes.NewReader(payload))
	if userID != 0 {
		req = req.WithContext(context.WithValue(req.Context(), "userID", userID))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestUpdateCommentByAuthor(t *testing.T) {
	h, repo := newCommentTestHandler()
	router := commentRouter(h)

	authorID := int64(7)
	repo.Create(context.Background(), &model.Comment{
		TrackID: 10, AuthorID: &authorID, Body: "原始内容",
	})

	rec := putComment(router, 1, 7, map[string]interface{}{"body": "改过的内容"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	updated, _ := repo.GetByID(context.Background(), 1)
	if updated.Body != "改过的内容" {
		t.Errorf("body = %q, want the edited text", updated.Body)
	}
}

func TestUpdateCommentByOtherUserForbidden(t *testing.T) {
	h, repo := newCommentTestHandler()
	router := commentRouter(h)

	authorID := int64(7)
	repo.Create(context.Background(), &model.Comment{
		TrackID: 10, AuthorID: &authorID, Body: "原始内容",
	})

	rec := putComment(router, 1, 8, map[string]interface{}{"body": "别人的修改"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	kept, _ := repo.GetByID(context.Background(), 1)
	if kept.Body != "原始内容" {
		t.Errorf("body changed despite forbidden edit")
	}
}

func TestUpdateAnonymousComment(t *testing.T) {
	h, repo := newCommentTestHandler()
	router := commentRouter(h)

	anon := anonID
	repo.Create(context.Background(), &model.Comment{
		TrackID: 10, AnonymousID: &anon, DisplayName: "访客A", Body: "原始内容",
	})

	// anonymousId 不匹配时拒绝
	rec := putComment(router, 1, 0, map[string]interface{}{
		"body": "冒充的修改", "anonymousId": "00000000-0000-0000-0000-000000000000",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	rec = putComment(router, 1, 0, map[string]interface{}{
		"body": "本人修改", "anonymousId": anon,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	updated, _ := repo.GetByID(context.Background(), 1)
	if updated.Body != "本人修改" {
		t.Errorf("body = %q, want the edited text", updated.Body)
	}
}
