package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"soundsketch/errs"
	"soundsketch/logger"

	"github.com/fsnotify/fsnotify"
)

// IsLossless reports whether fileName carries a lossless extension that should
// be transcoded to a streaming encode on upload.
func IsLossless(fileName string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	return ext == "wav" || ext == "flac"
}

// Transcoder converts lossless audio (WAV/FLAC) into a fixed-bitrate MP3
// streaming encode using the native ffmpeg binary. Each conversion runs under
// a per-job time budget; progress is reported on a side channel by watching
// the growing output file against the estimated encoded size.
type Transcoder struct {
	ffmpegPath  string
	ffprobePath string
	bitrate     string        // e.g. "320k"
	timeout     time.Duration // per-job budget
}

// NewTranscoder 加载编解码运行环境。找不到 ffmpeg/ffprobe 可执行文件时
// 返回 EngineLoadError，调用方可在修复环境后整体重试。
func NewTranscoder(ffmpegPath, bitrate string, timeout time.Duration) (*Transcoder, error) {
	resolvedFFmpeg, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found at %q: %v", errs.ErrEngineLoad, ffmpegPath, err)
	}

	ffprobePath := strings.Replace(ffmpegPath, "ffmpeg", "ffprobe", 1)
	resolvedFFprobe, err := exec.LookPath(ffprobePath)
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe not found at %q: %v", errs.ErrEngineLoad, ffprobePath, err)
	}

	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	return &Transcoder{
		ffmpegPath:  resolvedFFmpeg,
		ffprobePath: resolvedFFprobe,
		bitrate:     bitrate,
		timeout:     timeout,
	}, nil
}

// Convert transcodes inputFile into an MP3 streaming encode at outputFile.
// onProgress (may be nil) receives values in [0,100]; 100 is reported only
// after ffmpeg exits successfully. On failure the partial output is removed.
func (t *Transcoder) Convert(ctx context.Context, inputFile, outputFile string, onProgress func(float64)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// 先探测源时长，用于估算编码产物大小；失败只降级为无进度估计
	var estimatedBytes int64
	if duration, err := t.ProbeDuration(ctx, inputFile); err != nil {
		logger.Warn("无法探测源文件时长，转码进度估计不可用",
			logger.String("input", inputFile),
			logger.ErrorField(err))
	} else {
		estimatedBytes = estimateEncodedSize(duration, t.bitrate)
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("%w: failed to create output directory: %v", errs.ErrConversion, err)
	}

	// 监听输出文件的写入事件来报告进度
	watcherDone := make(chan struct{})
	watcher, err := fsnotify.NewWatcher()
	if err == nil && watcher.Add(filepath.Dir(outputFile)) == nil {
		go func() {
			defer close(watcherDone)
			t.watchProgress(ctx, watcher, outputFile, estimatedBytes, onProgress)
		}()
	} else {
		close(watcherDone)
		if watcher != nil {
			watcher.Close()
			watcher = nil
		}
		logger.Warn("创建文件监听器失败，转码将不报告中间进度", logger.ErrorField(err))
	}

	jobCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	args := []string{
		"-i", inputFile,
		"-codec:a", "libmp3lame",
		"-b:a", t.bitrate,
		"-y",
		outputFile,
	}

	cmd := exec.CommandContext(jobCtx, t.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Info("开始转码",
		logger.String("input", inputFile),
		logger.String("output", outputFile),
		logger.String("bitrate", t.bitrate))

	runErr := cmd.Run()

	if watcher != nil {
		watcher.Close()
		<-watcherDone
	}

	if runErr != nil {
		// 无论成败都释放本次转码的工作产物
		os.Remove(outputFile)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: ffmpeg failed for %s: %v\nFFmpeg Error: %s",
			errs.ErrConversion, inputFile, runErr, stderr.String())
	}

	if onProgress != nil {
		onProgress(100)
	}
	logger.Info("转码完成", logger.String("output", outputFile))
	return nil
}

// watchProgress 监听输出文件的写入事件，按已写字节数与估算大小的比值报告进度。
// 估算不精确，最多报到 99，留给进程退出后的最终 100。
func (t *Transcoder) watchProgress(ctx context.Context, watcher *fsnotify.Watcher, outputFile string, estimatedBytes int64, onProgress func(float64)) {
	defer watcher.Close()
	if onProgress == nil || estimatedBytes <= 0 {
		// 仍然排空事件通道直到监听器关闭
		for range watcher.Events {
		}
		return
	}

	var last float64
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name != outputFile || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			info, err := os.Stat(outputFile)
			if err != nil {
				continue
			}
			pct := float64(info.Size()) / float64(estimatedBytes) * 100
			if pct > 99 {
				pct = 99
			}
			if pct > last {
				last = pct
				onProgress(pct)
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// estimateEncodedSize 按固定比特率估算编码产物的字节数。
func estimateEncodedSize(durationSeconds float64, bitrate string) int64 {
	bps := parseBitrate(bitrate)
	if bps <= 0 || durationSeconds <= 0 {
		return 0
	}
	return int64(durationSeconds * float64(bps) / 8)
}

// parseBitrate 解析 "320k" / "192000" 形式的比特率为 bit/s。
func parseBitrate(bitrate string) int64 {
	s := strings.ToLower(strings.TrimSpace(bitrate))
	mult := int64(1)
	if strings.HasSuffix(s, "k") {
		mult = 1000
		s = strings.TrimSuffix(s, "k")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n * mult
}
