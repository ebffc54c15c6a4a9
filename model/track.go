package model

import (
	"database/sql"
	"time"
)

// Track represents an audio work collecting timestamped feedback.
type Track struct {
	ID               int64         `json:"id"`
	CreatorID        int64         `json:"creatorId"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	ShareableID      string        `json:"shareableId"` // uuid used in share links
	DownloadsEnabled bool          `json:"downloadsEnabled"`
	LatestVersionID  sql.NullInt64 `json:"latestVersionId"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}
