package cache

import (
	"context"
	"database/sql"
	"time"
)

// Repository persists the chunk manifest and proxy records.
type Repository interface {
	SaveManifest(ctx context.Context, meta *ManifestMeta, chunks []ChunkRecord) error
	LoadManifest(ctx context.Context, projectID string) (*ManifestMeta, []ChunkRecord, error)
	DeleteManifest(ctx context.Context, projectID string) error

	SetProxy(ctx context.Context, mediaID, path string) error
	GetProxy(ctx context.Context, mediaID string) (string, error)
	ListProxies(ctx context.Context) (map[string]string, error)
}

// SQLiteRepository is the production Repository over the engine database.
type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveManifest replaces the stored manifest for the project in one
// transaction.
func (r *SQLiteRepository) SaveManifest(ctx context.Context, meta *ManifestMeta, chunks []ChunkRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO manifests (project_id, project_hash, modified_at, chunk_seconds, total_duration, width, height, frame_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			project_hash = excluded.project_hash,
			modified_at = excluded.modified_at,
			chunk_seconds = excluded.chunk_seconds,
			total_duration = excluded.total_duration,
			width = excluded.width,
			height = excluded.height,
			frame_rate = excluded.frame_rate
	`, meta.ProjectID, meta.ProjectHash, meta.ModifiedAt.Format(time.RFC3339),
		meta.ChunkSeconds, meta.TotalDuration, meta.Width, meta.Height, meta.FrameRate)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM manifest_chunks WHERE project_id = ?`, meta.ProjectID); err != nil {
		return err
	}

	for _, c := range chunks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO manifest_chunks (project_id, chunk_index, content_hash, file_name, complex)
			VALUES (?, ?, ?, ?, ?)
		`, meta.ProjectID, c.Index, c.ContentHash, c.FileName, boolToInt(c.Complex))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadManifest returns the stored manifest for the project, or nil when none
// exists.
func (r *SQLiteRepository) LoadManifest(ctx context.Context, projectID string) (*ManifestMeta, []ChunkRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT project_id, project_hash, modified_at, chunk_seconds, total_duration, width, height, frame_rate
		FROM manifests WHERE project_id = ?
	`, projectID)

	var meta ManifestMeta
	var modifiedAt string
	err := row.Scan(&meta.ProjectID, &meta.ProjectHash, &modifiedAt,
		&meta.ChunkSeconds, &meta.TotalDuration, &meta.Width, &meta.Height, &meta.FrameRate)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	meta.ModifiedAt, _ = time.Parse(time.RFC3339, modifiedAt)

	rows, err := r.db.QueryContext(ctx, `
		SELECT chunk_index, content_hash, file_name, complex
		FROM manifest_chunks WHERE project_id = ? ORDER BY chunk_index
	`, projectID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var chunks []ChunkRecord
	for rows.Next() {
		var c ChunkRecord
		var complex int
		if err := rows.Scan(&c.Index, &c.ContentHash, &c.FileName, &complex); err != nil {
			return nil, nil, err
		}
		c.Complex = complex == 1
		chunks = append(chunks, c)
	}

	return &meta, chunks, rows.Err()
}

func (r *SQLiteRepository) DeleteManifest(ctx context.Context, projectID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM manifests WHERE project_id = ?`, projectID)
	return err
}

func (r *SQLiteRepository) SetProxy(ctx context.Context, mediaID, path string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO proxies (media_id, path, created_at) VALUES (?, ?, ?)
		ON CONFLICT(media_id) DO UPDATE SET path = excluded.path, created_at = excluded.created_at
	`, mediaID, path, time.Now().Format(time.RFC3339))
	return err
}

// GetProxy returns the recorded proxy path for a media id, empty when none.
func (r *SQLiteRepository) GetProxy(ctx context.Context, mediaID string) (string, error) {
	var path string
	err := r.db.QueryRowContext(ctx, `SELECT path FROM proxies WHERE media_id = ?`, mediaID).Scan(&path)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return path, err
}

func (r *SQLiteRepository) ListProxies(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT media_id, path FROM proxies`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	proxies := make(map[string]string)
	for rows.Next() {
		var id, path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, err
		}
		proxies[id] = path
	}
	return proxies, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
