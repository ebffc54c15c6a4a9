package repository

import (
	"context"
	"database/sql"
	"fmt"

	"soundsketch/errs"
	"soundsketch/model"

	"github.com/google/uuid"
)

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(ctx context.Context, track *model.Track) (int64, error)
	GetTrackByID(ctx context.Context, id int64) (*model.Track, error)
	GetTrackByShareableID(ctx context.Context, shareableID string) (*model.Track, error)
	GetTracksByCreator(ctx context.Context, creatorID int64) ([]*model.Track, error)
	UpdateTrack(ctx context.Context, id int64, title, description string) error
	SetDownloadsEnabled(ctx context.Context, id int64, enabled bool) error
	DeleteTrack(ctx context.Context, id int64) error
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	db *sql.DB
}

// NewMySQLTrackRepository creates a new mysqlTrackRepository.
func NewMySQLTrackRepository(db *sql.DB) TrackRepository {
	return &mysqlTrackRepository{db: db}
}

const trackColumns = `id, creator_id, title, description, shareable_id, downloads_enabled, latest_version_id, created_at, updated_at`

func scanTrack(row interface{ Scan(...interface{}) error }) (*model.Track, error) {
	t := &model.Track{}
	err := row.Scan(&t.ID, &t.CreatorID, &t.Title, &t.Description, &t.ShareableID,
		&t.DownloadsEnabled, &t.LatestVersionID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTrack adds a new track; a fresh shareable ID is assigned if none set.
func (r *mysqlTrackRepository) CreateTrack(ctx context.Context, track *model.Track) (int64, error) {
	if track.ShareableID == "" {
		track.ShareableID = uuid.NewString()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO tracks (creator_id, title, description, shareable_id, downloads_enabled) VALUES (?, ?, ?, ?, ?)`,
		track.CreatorID, track.Title, track.Description, track.ShareableID, track.DownloadsEnabled)
	if err != nil {
		return 0, fmt.Errorf("failed to insert track: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for track: %w", err)
	}
	track.ID = id
	return id, nil
}

// GetTrackByID retrieves a track by its ID; ErrNotFound when missing.
func (r *mysqlTrackRepository) GetTrackByID(ctx context.Context, id int64) (*model.Track, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = ?`, id)
	t, err := scanTrack(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: track %d", errs.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to scan track %d: %w", id, err)
	}
	return t, nil
}

// GetTrackByShareableID resolves a share-link ID to its track.
func (r *mysqlTrackRepository) GetTrackByShareableID(ctx context.Context, shareableID string) (*model.Track, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE shareable_id = ?`, shareableID)
	t, err := scanTrack(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: shared track %s", errs.ErrNotFound, shareableID)
		}
		return nil, fmt.Errorf("failed to scan shared track %s: %w", shareableID, err)
	}
	return t, nil
}

// GetTracksByCreator lists a user's tracks, newest first.
func (r *mysqlTrackRepository) GetTracksByCreator(ctx context.Context, creatorID int64) ([]*model.Track, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE creator_id = ? ORDER BY created_at DESC, id DESC`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks for creator %d: %w", creatorID, err)
	}
	defer rows.Close()

	var tracks []*model.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track row: %w", err)
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate track rows: %w", err)
	}
	return tracks, nil
}

// UpdateTrack updates the track's title and description.
func (r *mysqlTrackRepository) UpdateTrack(ctx context.Context, id int64, title, description string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tracks SET title = ?, description = ?, updated_at = NOW() WHERE id = ?`,
		title, description, id)
	if err != nil {
		return fmt.Errorf("failed to update track %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: track %d", errs.ErrNotFound, id)
	}
	return nil
}

// SetDownloadsEnabled 开关原始文件下载；关闭后分享页不再提供原件下载。
func (r *mysqlTrackRepository) SetDownloadsEnabled(ctx context.Context, id int64, enabled bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tracks SET downloads_enabled = ?, updated_at = NOW() WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to set downloads_enabled for track %d: %w", id, err)
	}
	return nil
}

// DeleteTrack removes a track; versions cascade via the foreign key.
func (r *mysqlTrackRepository) DeleteTrack(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tracks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete track %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: track %d", errs.ErrNotFound, id)
	}
	return nil
}
