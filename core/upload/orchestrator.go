package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"soundsketch/core/audio"
	"soundsketch/errs"
	"soundsketch/logger"
	"soundsketch/model"
	"soundsketch/storage"
)

// Converter 转码能力的抽象，生产实现为 core/audio.Transcoder。
type Converter interface {
	Convert(ctx context.Context, inputFile, outputFile string, onProgress func(float64)) error
	ProbeDuration(ctx context.Context, inputFile string) (float64, error)
}

// UploadSigner issues presigned PUT URLs for object keys. ttl <= 0 selects the
// service default.
type UploadSigner interface {
	IssueUpload(ctx context.Context, objectKey string, ttl time.Duration) (string, error)
}

// VersionRegistry commits an uploaded version's metadata and maintains the
// track's latest-version pointer.
type VersionRegistry interface {
	Create(ctx context.Context, version *model.Version) (int64, error)
}

// Request 一次音频上传会话的全部输入。FilePath 指向已落盘的临时文件。
type Request struct {
	FilePath    string
	FileName    string
	FileSize    int64
	TrackID     int64
	VersionName string
	ChangeNotes string
	UploadedBy  int64
	OnProgress  Reporter
}

// Orchestrator 驱动整条音频上传流水线：
// 校验 -> (无损则转码) -> 探测时长 -> 申请预签名地址 -> 并发上传 -> 提交版本记录。
// 中途失败或取消不回收已写入对象存储的分片，留给离线清理任务。
type Orchestrator struct {
	converter  Converter
	signer     UploadSigner
	registry   VersionRegistry
	bucket     string
	tempDir    string
	httpClient *http.Client
}

func NewOrchestrator(converter Converter, signer UploadSigner, registry VersionRegistry, bucket, tempDir string) *Orchestrator {
	return &Orchestrator{
		converter: converter,
		signer:    signer,
		registry:  registry,
		bucket:    bucket,
		tempDir:   tempDir,
		httpClient: &http.Client{
			Timeout: 15 * time.Minute,
		},
	}
}

// UploadFile runs the full pipeline for one audio upload and returns the
// committed version's ID. Lossless sources (WAV/FLAC) produce two objects, a
// transcoded MP3 streaming encode plus the untouched original; lossy sources
// are uploaded as-is. Progress reaches 100 only after every sub-step finishes.
func (o *Orchestrator) UploadFile(ctx context.Context, req *Request) (int64, error) {
	needsConversion := audio.IsLossless(req.FileName)

	// 进度权重：转码 30 + 流式上传 35 + 原件上传 35；无需转码时单次上传占满 100
	weights := map[string]float64{partStream: 100}
	if needsConversion {
		weights = map[string]float64{partConvert: 30, partStream: 35, partOriginal: 35}
	}
	tracker := newProgressTracker(req.OnProgress, weights)

	tracker.setStage(StageValidating)
	if err := ValidateAudioFile(req.FileName, req.FileSize); err != nil {
		tracker.fail()
		return 0, err
	}

	streamingPath := req.FilePath
	streamingExt := FileExtension(req.FileName)

	if needsConversion {
		if err := ctx.Err(); err != nil {
			tracker.fail()
			return 0, err
		}
		tracker.setStage(StageConverting)

		workDir, err := os.MkdirTemp(o.tempDir, "transcode-*")
		if err != nil {
			tracker.fail()
			return 0, fmt.Errorf("%w: failed to create work directory: %v", errs.ErrConversion, err)
		}
		defer os.RemoveAll(workDir)

		streamingPath = filepath.Join(workDir, "stream.mp3")
		streamingExt = "mp3"
		err = o.converter.Convert(ctx, req.FilePath, streamingPath, func(pct float64) {
			tracker.update(partConvert, pct/100)
		})
		if err != nil {
			tracker.fail()
			return 0, err
		}
	}

	if err := ctx.Err(); err != nil {
		tracker.fail()
		return 0, err
	}

	// 时长取自实际入库播放的那份文件
	duration, err := o.converter.ProbeDuration(ctx, streamingPath)
	if err != nil {
		tracker.fail()
		return 0, err
	}

	tracker.setStage(StageRequestingURLs)
	scopeID := strconv.FormatInt(req.TrackID, 10)

	streamingRole := storage.RolePlain
	if needsConversion {
		streamingRole = storage.RoleStream
	}
	streamingKey, err := storage.AllocateKey(storage.ScopeTracks, scopeID, streamingRole, streamingExt)
	if err != nil {
		tracker.fail()
		return 0, err
	}
	streamingURL, err := o.signer.IssueUpload(ctx, streamingKey, 0)
	if err != nil {
		tracker.fail()
		return 0, err
	}

	var originalKey, originalURL string
	if needsConversion {
		originalKey, err = storage.AllocateKey(storage.ScopeTracks, scopeID, storage.RoleOriginal, FileExtension(req.FileName))
		if err != nil {
			tracker.fail()
			return 0, err
		}
		originalURL, err = o.signer.IssueUpload(ctx, originalKey, 0)
		if err != nil {
			tracker.fail()
			return 0, err
		}
	}

	if err := ctx.Err(); err != nil {
		tracker.fail()
		return 0, err
	}
	tracker.setStage(StageUploading)

	// 流式文件与原件并发上传，任一失败整体失败，但不中断另一路传输
	var wg sync.WaitGroup
	uploadErrs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := o.putObject(ctx, streamingURL, streamingPath, MIMEForExtension(streamingExt), func(frac float64) {
			tracker.update(partStream, frac)
		}); err != nil {
			uploadErrs <- err
		}
	}()

	if needsConversion {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := o.putObject(ctx, originalURL, req.FilePath, MIMEForExtension(FileExtension(req.FileName)), func(frac float64) {
				tracker.update(partOriginal, frac)
			}); err != nil {
				uploadErrs <- err
			}
		}()
	}

	wg.Wait()
	close(uploadErrs)
	if err := <-uploadErrs; err != nil {
		tracker.fail()
		return 0, err
	}

	if err := ctx.Err(); err != nil {
		tracker.fail()
		return 0, err
	}
	tracker.setStage(StageCommitting)

	streamingInfo, err := os.Stat(streamingPath)
	if err != nil {
		tracker.fail()
		return 0, fmt.Errorf("%w: failed to stat streaming file: %v", errs.ErrUpload, err)
	}

	version := &model.Version{
		TrackID:      req.TrackID,
		VersionName:  req.VersionName,
		StreamingKey: streamingKey,
		Bucket:       o.bucket,
		FileName:     req.FileName,
		FileSize:     streamingInfo.Size(),
		FileFormat:   streamingExt,
		Duration:     duration,
		UploadedBy:   req.UploadedBy,
	}
	if req.ChangeNotes != "" {
		version.ChangeNotes.String = req.ChangeNotes
		version.ChangeNotes.Valid = true
	}
	if needsConversion {
		version.OriginalKey.String = originalKey
		version.OriginalKey.Valid = true
		version.OriginalFileName.String = req.FileName
		version.OriginalFileName.Valid = true
		version.OriginalFileSize.Int64 = req.FileSize
		version.OriginalFileSize.Valid = true
		version.OriginalFileFormat.String = FileExtension(req.FileName)
		version.OriginalFileFormat.Valid = true
	}

	versionID, err := o.registry.Create(ctx, version)
	if err != nil {
		tracker.fail()
		return 0, err
	}

	tracker.setStage(StageDone)
	logger.Info("音频上传完成",
		logger.Int64("trackID", req.TrackID),
		logger.Int64("versionID", versionID),
		logger.String("streamingKey", streamingKey),
		logger.Bool("hasOriginal", needsConversion))
	return versionID, nil
}

// putObject PUTs a local file to a presigned URL, reporting transfer fraction
// through onFrac. Any transport or non-200 outcome surfaces as ErrUpload.
func (o *Orchestrator) putObject(ctx context.Context, url, path, contentType string, onFrac func(float64)) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %v", errs.ErrUpload, path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("%w: failed to stat %s: %v", errs.ErrUpload, path, err)
	}

	body := io.Reader(file)
	if onFrac != nil && info.Size() > 0 {
		body = &progressReader{reader: file, total: info.Size(), onFrac: onFrac}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("%w: failed to build PUT request: %v", errs.ErrUpload, err)
	}
	httpReq.ContentLength = info.Size()
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: transfer failed for %s: %v", errs.ErrUpload, path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: object store returned status %d", errs.ErrUpload, resp.StatusCode)
	}
	if onFrac != nil {
		onFrac(1)
	}
	return nil
}

// progressReader 在读取过程中按已读字节比例回调进度。
type progressReader struct {
	reader io.Reader
	total  int64
	read   int64
	onFrac func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.reader.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.onFrac(float64(p.read) / float64(p.total))
	}
	return n, err
}
