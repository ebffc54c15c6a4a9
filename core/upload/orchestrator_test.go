package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"soundsketch/errs"
	"soundsketch/model"
)

type fakeConverter struct {
	converted  bool
	probedPath string
}

func (f *fakeConverter) Convert(ctx context.Context, inputFile, outputFile string, onProgress func(float64)) error {
	f.converted = true
	data, err := os.ReadFile(inputFile)
	if err != nil {
		return err
	}
	if onProgress != nil {
		onProgress(50)
	}
	if err := os.WriteFile(outputFile, append([]byte("mp3:"), data...), 0644); err != nil {
		return err
	}
	if onProgress != nil {
		onProgress(100)
	}
	return nil
}

func (f *fakeConverter) ProbeDuration(ctx context.Context, inputFile string) (float64, error) {
	f.probedPath = inputFile
	return 183.5, nil
}

type fakeSigner struct {
	baseURL string
	keys    []string
}

func (f *fakeSigner) IssueUpload(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	f.keys = append(f.keys, objectKey)
	return f.baseURL + "/" + objectKey, nil
}

type fakeRegistry struct {
	created *model.Version
	err     error
}

func (f *fakeRegistry) Create(ctx context.Context, version *model.Version) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.created = version
	return 77, nil
}

type receivedPut struct {
	path        string
	contentType string
	bodySize    int
}

func newPutServer(t *testing.T, status int) (*httptest.Server, func() []receivedPut) {
	t.Helper()
	var mu sync.Mutex
	var puts []receivedPut
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("unexpected method %s", r.Method)
		}
		buf := make([]byte, 0, 64)
		tmp := make([]byte, 1024)
		for {
			n, err := r.Body.Read(tmp)
			buf = append(buf, tmp[:n]...)
			if err != nil {
				break
			}
		}
		mu.Lock()
		puts = append(puts, receivedPut{
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			bodySize:    len(buf),
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	return server, func() []receivedPut {
		mu.Lock()
		defer mu.Unlock()
		out := append([]receivedPut(nil), puts...)
		return out
	}
}

func writeTempAudio(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestUploadLosslessProducesStreamingAndOriginal(t *testing.T) {
	server, puts := newPutServer(t, http.StatusOK)
	defer server.Close()

	converter := &fakeConverter{}
	signer := &fakeSigner{baseURL: server.URL}
	registry := &fakeRegistry{}
	orch := NewOrchestrator(converter, signer, registry, "test-bucket", t.TempDir())

	content := "RIFF-wav-payload"
	path := writeTempAudio(t, "song.wav", content)

	var mu sync.Mutex
	var events []Progress
	req := &Request{
		FilePath:    path,
		FileName:    "song.wav",
		FileSize:    int64(len(content)),
		TrackID:     42,
		VersionName: "v2 rough mix",
		ChangeNotes: "tightened the low end",
		UploadedBy:  7,
		OnProgress: func(p Progress) {
			mu.Lock()
			events = append(events, p)
			mu.Unlock()
		},
	}

	id, err := orch.UploadFile(context.Background(), req)
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if id != 77 {
		t.Errorf("version ID = %d, want 77", id)
	}
	if !converter.converted {
		t.Error("lossless source should be transcoded")
	}

	got := puts()
	if len(got) != 2 {
		t.Fatalf("expected 2 PUTs, got %d", len(got))
	}
	var streamPut, originalPut *receivedPut
	for i := range got {
		switch {
		case strings.Contains(got[i].path, "-stream."):
			streamPut = &got[i]
		case strings.Contains(got[i].path, "-original."):
			originalPut = &got[i]
		}
	}
	if streamPut == nil || originalPut == nil {
		t.Fatalf("missing streaming or original PUT: %+v", got)
	}
	if !strings.HasPrefix(streamPut.path, "/tracks/42/") || !strings.HasSuffix(streamPut.path, "-stream.mp3") {
		t.Errorf("streaming key path = %q", streamPut.path)
	}
	if !strings.HasPrefix(originalPut.path, "/tracks/42/") || !strings.HasSuffix(originalPut.path, "-original.wav") {
		t.Errorf("original key path = %q", originalPut.path)
	}
	if streamPut.contentType != "audio/mpeg" {
		t.Errorf("streaming Content-Type = %q, want audio/mpeg", streamPut.contentType)
	}
	if originalPut.contentType != "audio/wav" {
		t.Errorf("original Content-Type = %q, want audio/wav", originalPut.contentType)
	}
	if originalPut.bodySize != len(content) {
		t.Errorf("original body size = %d, want %d", originalPut.bodySize, len(content))
	}

	v := registry.created
	if v == nil {
		t.Fatal("version was not committed")
	}
	if v.TrackID != 42 || v.UploadedBy != 7 {
		t.Errorf("version track/uploader = %d/%d", v.TrackID, v.UploadedBy)
	}
	if v.FileFormat != "mp3" {
		t.Errorf("streaming format = %q, want mp3", v.FileFormat)
	}
	if v.Duration != 183.5 {
		t.Errorf("duration = %v, want 183.5", v.Duration)
	}
	if !v.OriginalKey.Valid || !strings.HasSuffix(v.OriginalKey.String, "-original.wav") {
		t.Errorf("original key = %+v", v.OriginalKey)
	}
	if !v.OriginalFileName.Valid || v.OriginalFileName.String != "song.wav" {
		t.Errorf("original file name = %+v", v.OriginalFileName)
	}
	if !v.OriginalFileSize.Valid || v.OriginalFileSize.Int64 != int64(len(content)) {
		t.Errorf("original file size = %+v", v.OriginalFileSize)
	}
	if !v.OriginalFileFormat.Valid || v.OriginalFileFormat.String != "wav" {
		t.Errorf("original format = %+v", v.OriginalFileFormat)
	}
	if !v.ChangeNotes.Valid || v.ChangeNotes.String != "tightened the low end" {
		t.Errorf("change notes = %+v", v.ChangeNotes)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) == 0 {
		t.Fatal("no progress events")
	}
	last := -1.0
	for _, e := range events {
		if e.Percent < last {
			t.Fatalf("progress went backwards: %v after %v", e.Percent, last)
		}
		last = e.Percent
	}
	final := events[len(events)-1]
	if final.Stage != StageDone || final.Percent != 100 {
		t.Errorf("final event = %+v, want done/100", final)
	}
}

func TestUploadLossySkipsConversion(t *testing.T) {
	server, puts := newPutServer(t, http.StatusOK)
	defer server.Close()

	converter := &fakeConverter{}
	signer := &fakeSigner{baseURL: server.URL}
	registry := &fakeRegistry{}
	orch := NewOrchestrator(converter, signer, registry, "test-bucket", t.TempDir())

	content := "ID3-mp3-payload"
	path := writeTempAudio(t, "demo.mp3", content)

	id, err := orch.UploadFile(context.Background(), &Request{
		FilePath:    path,
		FileName:    "demo.mp3",
		FileSize:    int64(len(content)),
		TrackID:     42,
		VersionName: "demo take",
		UploadedBy:  7,
	})
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if id != 77 {
		t.Errorf("version ID = %d, want 77", id)
	}
	if converter.converted {
		t.Error("lossy source must not be transcoded")
	}
	if converter.probedPath != path {
		t.Errorf("duration probed on %q, want source file %q", converter.probedPath, path)
	}

	got := puts()
	if len(got) != 1 {
		t.Fatalf("expected 1 PUT, got %d", len(got))
	}
	if !strings.HasPrefix(got[0].path, "/tracks/42/") || !strings.HasSuffix(got[0].path, ".mp3") {
		t.Errorf("key path = %q", got[0].path)
	}
	if strings.Contains(got[0].path, "-stream.") || strings.Contains(got[0].path, "-original.") {
		t.Errorf("single upload should use a plain key, got %q", got[0].path)
	}
	if got[0].bodySize != len(content) {
		t.Errorf("body size = %d, want %d", got[0].bodySize, len(content))
	}

	v := registry.created
	if v == nil {
		t.Fatal("version was not committed")
	}
	if v.HasOriginal() {
		t.Errorf("lossy upload must not record an original: %+v", v.OriginalKey)
	}
	if v.FileFormat != "mp3" || v.FileSize != int64(len(content)) {
		t.Errorf("streaming format/size = %q/%d", v.FileFormat, v.FileSize)
	}
}

func TestUploadValidationErrors(t *testing.T) {
	registry := &fakeRegistry{}
	orch := NewOrchestrator(&fakeConverter{}, &fakeSigner{}, registry, "test-bucket", t.TempDir())

	tests := []struct {
		name     string
		fileName string
		size     int64
	}{
		{"oversized", "big.mp3", MaxAudioFileSize + 1},
		{"bad extension", "notes.txt", 1024},
		{"no extension", "mystery", 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var failed bool
			_, err := orch.UploadFile(context.Background(), &Request{
				FilePath: "/nonexistent",
				FileName: tt.fileName,
				FileSize: tt.size,
				TrackID:  1,
				OnProgress: func(p Progress) {
					if p.Stage == StageFailed {
						failed = true
					}
				},
			})
			if !errors.Is(err, errs.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
			if !failed {
				t.Error("expected a failed progress event")
			}
		})
	}
	if registry.created != nil {
		t.Error("rejected uploads must not commit a version")
	}
}

func TestUploadTransferFailure(t *testing.T) {
	server, _ := newPutServer(t, http.StatusInternalServerError)
	defer server.Close()

	registry := &fakeRegistry{}
	orch := NewOrchestrator(&fakeConverter{}, &fakeSigner{baseURL: server.URL}, registry, "test-bucket", t.TempDir())

	path := writeTempAudio(t, "demo.mp3", "payload")
	_, err := orch.UploadFile(context.Background(), &Request{
		FilePath: path,
		FileName: "demo.mp3",
		FileSize: 7,
		TrackID:  1,
	})
	if !errors.Is(err, errs.ErrUpload) {
		t.Errorf("err = %v, want ErrUpload", err)
	}
	if registry.created != nil {
		t.Error("failed transfer must not commit a version")
	}
}

func TestUploadCancelledContext(t *testing.T) {
	registry := &fakeRegistry{}
	orch := NewOrchestrator(&fakeConverter{}, &fakeSigner{}, registry, "test-bucket", t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := writeTempAudio(t, "song.wav", "payload")
	_, err := orch.UploadFile(ctx, &Request{
		FilePath: path,
		FileName: "song.wav",
		FileSize: 7,
		TrackID:  1,
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if registry.created != nil {
		t.Error("cancelled upload must not commit a version")
	}
}

func TestUploadRegistryFailure(t *testing.T) {
	server, _ := newPutServer(t, http.StatusOK)
	defer server.Close()

	registry := &fakeRegistry{err: fmt.Errorf("%w: insert failed", errs.ErrUpload)}
	orch := NewOrchestrator(&fakeConverter{}, &fakeSigner{baseURL: server.URL}, registry, "test-bucket", t.TempDir())

	path := writeTempAudio(t, "demo.mp3", "payload")
	_, err := orch.UploadFile(context.Background(), &Request{
		FilePath: path,
		FileName: "demo.mp3",
		FileSize: 7,
		TrackID:  1,
	})
	if !errors.Is(err, errs.ErrUpload) {
		t.Errorf("err = %v, want wrapped registry error", err)
	}
}
