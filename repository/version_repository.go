package repository

import (
	"context"
	"database/sql"
	"fmt"

	"soundsketch/errs"
	"soundsketch/logger"
	"soundsketch/model"
)

// VersionRepository defines the interface for version data operations.
// 创建与删除同时维护 tracks.latest_version_id 指针，两者都在事务中完成。
type VersionRepository interface {
	Create(ctx context.Context, version *model.Version) (int64, error)
	GetByID(ctx context.Context, id int64) (*model.Version, error)
	ListByTrack(ctx context.Context, trackID int64) ([]*model.Version, error)
	Delete(ctx context.Context, versionID, requesterID int64) (*model.Version, error)
}

// mysqlVersionRepository implements VersionRepository for MySQL.
type mysqlVersionRepository struct {
	db *sql.DB
}

// NewMySQLVersionRepository creates a new mysqlVersionRepository.
func NewMySQLVersionRepository(db *sql.DB) VersionRepository {
	return &mysqlVersionRepository{db: db}
}

const versionColumns = `id, track_id, version_name, change_notes, streaming_key, bucket,
	file_name, file_size, file_format, duration, uploaded_by,
	original_key, original_file_name, original_file_size, original_file_format, created_at`

func scanVersion(row interface{ Scan(...interface{}) error }) (*model.Version, error) {
	v := &model.Version{}
	err := row.Scan(&v.ID, &v.TrackID, &v.VersionName, &v.ChangeNotes, &v.StreamingKey, &v.Bucket,
		&v.FileName, &v.FileSize, &v.FileFormat, &v.Duration, &v.UploadedBy,
		&v.OriginalKey, &v.OriginalFileName, &v.OriginalFileSize, &v.OriginalFileFormat, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Create inserts the version and unconditionally repoints the track's
// latest_version_id at it, in one transaction.
func (r *mysqlVersionRepository) Create(ctx context.Context, version *model.Version) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction for version create: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO versions
		(track_id, version_name, change_notes, streaming_key, bucket, file_name, file_size, file_format, duration, uploaded_by,
		 original_key, original_file_name, original_file_size, original_file_format)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		version.TrackID, version.VersionName, version.ChangeNotes, version.StreamingKey, version.Bucket,
		version.FileName, version.FileSize, version.FileFormat, version.Duration, version.UploadedBy,
		version.OriginalKey, version.OriginalFileName, version.OriginalFileSize, version.OriginalFileFormat)
	if err != nil {
		return 0, fmt.Errorf("failed to insert version: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for version: %w", err)
	}

	// 新版本总是成为最新版本
	if _, err := tx.ExecContext(ctx,
		`UPDATE tracks SET latest_version_id = ?, updated_at = NOW() WHERE id = ?`,
		id, version.TrackID); err != nil {
		return 0, fmt.Errorf("failed to update latest version pointer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit version create: %w", err)
	}

	version.ID = id
	logger.Info("版本已创建",
		logger.Int64("versionID", id),
		logger.Int64("trackID", version.TrackID),
		logger.String("name", version.VersionName))
	return id, nil
}

// GetByID retrieves a version by its ID; ErrNotFound when it does not exist.
func (r *mysqlVersionRepository) GetByID(ctx context.Context, id int64) (*model.Version, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE id = ?`, id)
	v, err := scanVersion(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: version %d", errs.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to scan version %d: %w", id, err)
	}
	return v, nil
}

// ListByTrack returns the track's versions newest first.
func (r *mysqlVersionRepository) ListByTrack(ctx context.Context, trackID int64) ([]*model.Version, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE track_id = ? ORDER BY created_at DESC, id DESC`, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions for track %d: %w", trackID, err)
	}
	defer rows.Close()

	var versions []*model.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate version rows: %w", err)
	}
	return versions, nil
}

// Delete removes a version after verifying the requester owns the track, then
// repoints latest_version_id at the newest survivor (or clears it). The
// deleted version is returned so the caller can reclaim its stored objects.
func (r *mysqlVersionRepository) Delete(ctx context.Context, versionID, requesterID int64) (*model.Version, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for version delete: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE id = ?`, versionID)
	version, err := scanVersion(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: version %d", errs.ErrNotFound, versionID)
		}
		return nil, fmt.Errorf("failed to scan version %d: %w", versionID, err)
	}

	var creatorID int64
	err = tx.QueryRowContext(ctx,
		`SELECT creator_id FROM tracks WHERE id = ?`, version.TrackID).Scan(&creatorID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: track %d", errs.ErrNotFound, version.TrackID)
		}
		return nil, fmt.Errorf("failed to load track %d: %w", version.TrackID, err)
	}
	// 只有曲目创建者可以删除版本
	if creatorID != requesterID {
		return nil, fmt.Errorf("%w: only the track creator can delete versions", errs.ErrNotAuthorized)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM versions WHERE id = ?`, versionID); err != nil {
		return nil, fmt.Errorf("failed to delete version %d: %w", versionID, err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE track_id = ?`, version.TrackID)
	if err != nil {
		return nil, fmt.Errorf("failed to query surviving versions: %w", err)
	}
	var survivors []*model.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan surviving version: %w", err)
		}
		survivors = append(survivors, v)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate surviving versions: %w", err)
	}
	rows.Close()

	nextID, ok := NextLatestVersion(survivors, versionID)
	pointer := sql.NullInt64{Int64: nextID, Valid: ok}
	if _, err := tx.ExecContext(ctx,
		`UPDATE tracks SET latest_version_id = ?, updated_at = NOW() WHERE id = ?`,
		pointer, version.TrackID); err != nil {
		return nil, fmt.Errorf("failed to repoint latest version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit version delete: %w", err)
	}

	logger.Info("版本已删除",
		logger.Int64("versionID", versionID),
		logger.Int64("trackID", version.TrackID),
		logger.Bool("pointerCleared", !ok))
	return version, nil
}
