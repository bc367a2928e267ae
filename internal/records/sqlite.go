package records

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/satmihir/photocache/internal/gateway"
)

const schema = `
CREATE TABLE IF NOT EXISTS photos (
	stamp_id            TEXT NOT NULL,
	local_filename      TEXT NOT NULL,
	remote_storage_path TEXT NOT NULL DEFAULT '',
	upload_state        TEXT NOT NULL,
	position            INTEGER NOT NULL,
	updated_at          DATETIME NOT NULL,
	PRIMARY KEY (stamp_id, local_filename)
);`

// SQLiteStore is a RecordStore on a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	log logrus.FieldLogger
}

var _ gateway.RecordStore = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at dataSourceName.
func OpenSQLite(ctx context.Context, dataSourceName string, log logrus.FieldLogger) (*SQLiteStore, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// SQLite allows one writer; serialise through a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating photos table: %w", err)
	}

	return &SQLiteStore{
		db:  db,
		log: log.WithField("component", "records"),
	}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListPhotos(ctx context.Context, stampID string) ([]gateway.PhotoRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT local_filename, remote_storage_path, upload_state, position
		FROM photos WHERE stamp_id = ?
		ORDER BY position, local_filename`, stampID)
	if err != nil {
		s.log.WithError(err).WithField("stamp_id", stampID).Error("Failed to list photos")
		return nil, fmt.Errorf("listing photos of %s: %w", stampID, err)
	}
	defer rows.Close()

	var recs []gateway.PhotoRecord
	for rows.Next() {
		var (
			rec   gateway.PhotoRecord
			state string
		)
		if err := rows.Scan(&rec.LocalFilename, &rec.RemoteStoragePath, &state, &rec.Position); err != nil {
			return nil, fmt.Errorf("scanning photo row: %w", err)
		}
		if err := rec.UploadState.UnmarshalText([]byte(state)); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// CommitPhoto upserts the record in one statement, so state and storage path
// always change together.
func (s *SQLiteStore) CommitPhoto(ctx context.Context, stampID string, rec gateway.PhotoRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO photos (stamp_id, local_filename, remote_storage_path, upload_state, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (stamp_id, local_filename) DO UPDATE SET
			remote_storage_path = excluded.remote_storage_path,
			upload_state        = excluded.upload_state,
			updated_at          = excluded.updated_at`,
		stampID, rec.LocalFilename, rec.RemoteStoragePath, rec.UploadState.String(), rec.Position, time.Now().UTC())
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"stamp_id": stampID,
			"file":     rec.LocalFilename,
		}).Error("Failed to commit photo record")
		return fmt.Errorf("committing photo %s: %w", rec.LocalFilename, err)
	}
	return nil
}

func (s *SQLiteStore) DeletePhoto(ctx context.Context, stampID, localFilename string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM photos WHERE stamp_id = ? AND local_filename = ?`, stampID, localFilename)
	if err != nil {
		return fmt.Errorf("deleting photo %s: %w", localFilename, err)
	}
	return nil
}
