package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"soundsketch/errs"
	"soundsketch/model"
	"soundsketch/storage"

	"github.com/gorilla/mux"
)

type fakeTrackRepo struct {
	tracks map[int64]*model.Track
}

func (f *fakeTrackRepo) CreateTrack(ctx context.Context, track *model.Track) (int64, error) {
	return 0, fmt.Errorf("not implemented")
}
func (f *fakeTrackRepo) GetTrackByID(ctx context.Context, id int64) (*model.Track, error) {
	t, ok := f.tracks[id]
	if !ok {
		return nil, fmt.Errorf("%w: track %d", errs.ErrNotFound, id)
	}
	return t, nil
}
func (f *fakeTrackRepo) GetTrackByShareableID(ctx context.Context, shareableID string) (*model.Track, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeTrackRepo) GetTracksByCreator(ctx context.Context, creatorID int64) ([]*model.Track, error) {
	return nil, nil
}
func (f *fakeTrackRepo) UpdateTrack(ctx context.Context, id int64, title, description string) error {
	return nil
}
func (f *fakeTrackRepo) SetDownloadsEnabled(ctx context.Context, id int64, enabled bool) error {
	return nil
}
func (f *fakeTrackRepo) DeleteTrack(ctx context.Context, id int64) error { return nil }

type fakeVersionRepo struct {
	versions map[int64]*model.Version
}

func (f *fakeVersionRepo) Create(ctx context.Context, version *model.Version) (int64, error) {
	return 0, fmt.Errorf("not implemented")
}
func (f *fakeVersionRepo) GetByID(ctx context.Context, id int64) (*model.Version, error) {
	v, ok := f.versions[id]
	if !ok {
		return nil, fmt.Errorf("%w: version %d", errs.ErrNotFound, id)
	}
	return v, nil
}
func (f *fakeVersionRepo) ListByTrack(ctx context.Context, trackID int64) ([]*model.Version, error) {
	return nil, nil
}
func (f *fakeVersionRepo) Delete(ctx context.Context, versionID, requesterID int64) (*model.Version, error) {
	return nil, fmt.Errorf("not implemented")
}

type countingSigner struct {
	calls int
}

func (s *countingSigner) IssueDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.calls++
	return "https://signed.example/" + key, nil
}

func newDownloadTestHandler(downloadsEnabled bool) (*APIHandler, *countingSigner) {
	signer := &countingSigner{}
	trackRepo := &fakeTrackRepo{tracks: map[int64]*model.Track{
		10: {ID: 10, CreatorID: 7, Title: "demo", DownloadsEnabled: downloadsEnabled},
	}}
	versionRepo := &fakeVersionRepo{versions: map[int64]*model.Version{
		1: {
			ID: 1, TrackID: 10,
			StreamingKey: "tracks/10/abc-stream.mp3",
			FileName:     "song.wav",
			OriginalKey:  sql.NullString{String: "tracks/10/abc-original.wav", Valid: true},
			OriginalFileName: sql.NullString{
				String: "song.wav", Valid: true,
			},
		},
		2: {
			ID: 2, TrackID: 10,
			StreamingKey: "tracks/10/def.mp3",
			FileName:     "demo.mp3",
		},
	}}
	return &APIHandler{
		trackRepo:   trackRepo,
		versionRepo: versionRepo,
		signer:      signer,
		urlCache:    storage.NewURLCache(signer),
	}, signer
}

func doDownloadRequest(h *APIHandler, versionID int64, userID int64) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	router.HandleFunc("/api/versions/{id}/download", h.DownloadURLHandler)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/versions/%d/download", versionID), nil)
	if userID != 0 {
		req = req.WithContext(context.WithValue(req.Context(), "userID", userID))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestDownloadBlockedWhenDisabled(t *testing.T) {
	h, signer := newDownloadTestHandler(false)

	rec := doDownloadRequest(h, 1, 0) // anonymous visitor
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if signer.calls != 0 {
		t.Errorf("no URL should be signed for a blocked download")
	}
}

func TestDownloadBlockedForCreatorWhenDisabled(t *testing.T) {
	// 开关对所有请求者生效，创建者也不能绕过
	h, signer := newDownloadTestHandler(false)

	rec := doDownloadRequest(h, 1, 7) // track creator
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %s", rec.Code, rec.Body.String())
	}
	if signer.calls != 0 {
		t.Errorf("no URL should be signed for a blocked download")
	}
}

func TestDownloadAllowedForCreatorWhenEnabled(t *testing.T) {
	h, _ := newDownloadTestHandler(true)

	rec := doDownloadRequest(h, 1, 7) // track creator, downloads on
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["url"] != "https://signed.example/tracks/10/abc-original.wav" {
		t.Errorf("url = %q, want original object URL", resp["url"])
	}
	if resp["fileName"] != "song.wav" {
		t.Errorf("fileName = %q, want song.wav", resp["fileName"])
	}
}

func TestDownloadAllowedWhenEnabled(t *testing.T) {
	h, _ := newDownloadTestHandler(true)

	rec := doDownloadRequest(h, 1, 0) // anonymous visitor, downloads on
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["url"] != "https://signed.example/tracks/10/abc-original.wav" {
		t.Errorf("url = %q, want original object URL", resp["url"])
	}
}

func TestDownloadFallsBackToStreamingWithoutOriginal(t *testing.T) {
	h, _ := newDownloadTestHandler(true)

	rec := doDownloadRequest(h, 2, 0)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["url"] != "https://signed.example/tracks/10/def.mp3" {
		t.Errorf("url = %q, want streaming object URL", resp["url"])
	}
	if resp["fileName"] != "demo.mp3" {
		t.Errorf("fileName = %q, want demo.mp3", resp["fileName"])
	}
}

func TestStreamURLUsesCache(t *testing.T) {
	h, signer := newDownloadTestHandler(true)

	router := mux.NewRouter()
	router.HandleFunc("/api/versions/{id}/stream-url", h.StreamURLHandler)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/versions/1/stream-url", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	}
	if signer.calls != 1 {
		t.Errorf("signer called %d times, want 1 (cached)", signer.calls)
	}
}
