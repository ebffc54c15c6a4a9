package model

import (
	"database/sql"
	"time"
)

// Version represents one uploaded revision of a track. The streaming asset is
// always present; the four Original* fields are set together iff the source
// file was lossless (wav/flac) and got transcoded on upload.
type Version struct {
	ID           int64          `json:"id"`
	TrackID      int64          `json:"trackId"`
	VersionName  string         `json:"versionName"`
	ChangeNotes  sql.NullString `json:"changeNotes"`
	StreamingKey string         `json:"streamingKey"`
	Bucket       string         `json:"bucket"`
	FileName     string         `json:"fileName"`
	FileSize     int64          `json:"fileSize"`
	FileFormat   string         `json:"fileFormat"`
	Duration     float64        `json:"duration"` // seconds
	UploadedBy   int64          `json:"uploadedBy"`
	CreatedAt    time.Time      `json:"createdAt"`

	OriginalKey        sql.NullString `json:"originalKey"`
	OriginalFileName   sql.NullString `json:"originalFileName"`
	OriginalFileSize   sql.NullInt64  `json:"originalFileSize"`
	OriginalFileFormat sql.NullString `json:"originalFileFormat"`
}

// HasOriginal reports whether this version retains the untouched lossless upload.
func (v *Version) HasOriginal() bool {
	return v.OriginalKey.Valid
}
