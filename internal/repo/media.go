package repo

import (
	"context"
	"database/sql"
	"strings"

	"sitewalk/internal/domain"
)

// InsertMedia records a reference to an asset owned by the upload
// subsystem. Only the reference lives here.
func (r Repo) InsertMedia(ctx context.Context, m domain.Media) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO media(id,kind,url,uploaded_by,created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.Kind, nullable(m.URL), nullable(m.UploadedBy), m.CreatedAt)
	return err
}

func (r Repo) GetMedia(ctx context.Context, id string) (domain.Media, error) {
	var m domain.Media
	var url, uploadedBy sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,kind,url,uploaded_by,created_at FROM media WHERE id=?`, id).
		Scan(&m.ID, &m.Kind, &url, &uploadedBy, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if url.Valid {
		m.URL = url.String
	}
	if uploadedBy.Valid {
		m.UploadedBy = uploadedBy.String
	}
	return m, nil
}

// GetMediaByIDsTx looks up a batch of media rows inside the caller's
// transaction, keyed by id. Absent ids are simply missing from the map.
func (r Repo) GetMediaByIDsTx(ctx context.Context, tx *sql.Tx, ids []string) (map[string]domain.Media, error) {
	res := map[string]domain.Media{}
	if len(ids) == 0 {
		return res, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	rows, err := tx.QueryContext(ctx, `SELECT id,kind,COALESCE(url,'') AS url,COALESCE(uploaded_by,'') AS uploaded_by,created_at FROM media WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m domain.Media
		if err := rows.Scan(&m.ID, &m.Kind, &m.URL, &m.UploadedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		res[m.ID] = m
	}
	return res, rows.Err()
}
