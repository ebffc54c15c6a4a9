package upload

import (
	"fmt"
	"path/filepath"
	"strings"

	"soundsketch/errs"
)

// 上传校验常量：音频 200MB，评论附件 50MB。
const (
	MaxAudioFileSize  = 200 << 20
	MaxAttachmentSize = 50 << 20
)

var audioFormats = map[string]bool{
	"mp3": true, "wav": true, "flac": true, "m4a": true, "aac": true, "ogg": true,
}

var attachmentFormats = map[string]bool{
	"mp3": true, "wav": true, "flac": true, "m4a": true, "aac": true, "ogg": true,
	"png": true, "jpg": true, "jpeg": true, "gif": true, "webp": true,
	"pdf": true, "txt": true,
}

var mimeTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"flac": "audio/flac",
	"m4a":  "audio/mp4",
	"aac":  "audio/aac",
	"ogg":  "audio/ogg",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"pdf":  "application/pdf",
	"txt":  "text/plain",
}

// FileExtension returns the lowercased extension of fileName without the dot.
func FileExtension(fileName string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
}

// MIMEForExtension maps a file extension to its MIME type, falling back to
// application/octet-stream for unknown extensions.
func MIMEForExtension(ext string) string {
	if mime, ok := mimeTypes[strings.ToLower(ext)]; ok {
		return mime
	}
	return "application/octet-stream"
}

// ValidateAudioFile checks a track upload against the audio allow-list and
// size limit.
func ValidateAudioFile(fileName string, size int64) error {
	if size > MaxAudioFileSize {
		return fmt.Errorf("%w: file size %d exceeds 200MB limit", errs.ErrValidation, size)
	}
	ext := FileExtension(fileName)
	if !audioFormats[ext] {
		return fmt.Errorf("%w: unsupported format %q, allowed: mp3, wav, flac, m4a, aac, ogg", errs.ErrValidation, ext)
	}
	return nil
}

// ValidateAttachmentFile checks a comment attachment against the attachment
// allow-list and size limit.
func ValidateAttachmentFile(fileName string, size int64) error {
	if size > MaxAttachmentSize {
		return fmt.Errorf("%w: attachment size %d exceeds 50MB limit", errs.ErrValidation, size)
	}
	ext := FileExtension(fileName)
	if !attachmentFormats[ext] {
		return fmt.Errorf("%w: unsupported attachment format %q", errs.ErrValidation, ext)
	}
	return nil
}
