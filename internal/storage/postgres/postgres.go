package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	_ "github.com/lib/pq"

	"github.com/reviewhub/media-service/internal/config"
	"github.com/reviewhub/media-service/internal/storage"
	"github.com/reviewhub/media-service/internal/types"
)

type Postgres struct {
	Db *sql.DB
}

func NewPostgres(cfg *config.Config) (*Postgres, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.PGSQL.Host, cfg.PGSQL.Port, cfg.PGSQL.User, cfg.PGSQL.Password, cfg.PGSQL.DBName, cfg.PGSQL.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal(err)
		return nil, err
	}

	err = db.Ping()
	if err != nil {
		log.Fatal(err)
		return nil, err
	}

	log.Println("Connected to Postgres database")

	// Create tables if they don't exist
	pg := &Postgres{Db: db}
	err = pg.CreateTables()
	if err != nil {
		log.Fatal("Failed to create tables:", err)
	}

	return pg, nil
}

func (p *Postgres) CreateTables() error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS media_records (
			id UUID PRIMARY KEY,
			file_name VARCHAR(512) NOT NULL,
			mime_type VARCHAR(255) NOT NULL,
			size BIGINT NOT NULL,
			location JSONB NOT NULL,
			uploader_id VARCHAR(255),
			is_image BOOLEAN NOT NULL DEFAULT FALSE,
			is_video BOOLEAN NOT NULL DEFAULT FALSE,
			width INTEGER NOT NULL DEFAULT 0,
			height INTEGER NOT NULL DEFAULT 0,
			video JSONB,
			variants JSONB NOT NULL,
			processing JSONB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		`,
		`CREATE INDEX IF NOT EXISTS idx_media_records_uploader
			ON media_records (uploader_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_media_records_created
			ON media_records (created_at DESC);`,
	}

	for _, q := range queries {
		if _, err := p.Db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

func (p *Postgres) CreateMediaRecord(record *types.MediaRecord) error {
	location, err := json.Marshal(record.Location)
	if err != nil {
		return fmt.Errorf("failed to marshal location: %w", err)
	}
	variants, err := json.Marshal(record.Variants)
	if err != nil {
		return fmt.Errorf("failed to marshal variants: %w", err)
	}
	processing, err := json.Marshal(record.Processing)
	if err != nil {
		return fmt.Errorf("failed to marshal processing metadata: %w", err)
	}

	var video []byte
	if record.Video != nil {
		video, err = json.Marshal(record.Video)
		if err != nil {
			return fmt.Errorf("failed to marshal video metadata: %w", err)
		}
	}

	query := `
	INSERT INTO media_records
		(id, file_name, mime_type, size, location, uploader_id, is_image, is_video,
		 width, height, video, variants, processing, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = p.Db.Exec(query,
		record.ID, record.FileName, record.MimeType, record.Size,
		location, nullableString(record.UploaderID), record.IsImage, record.IsVideo,
		record.Width, record.Height, nullableBytes(video), variants, processing,
		record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert media record: %w", err)
	}

	return nil
}

func (p *Postgres) GetMediaRecord(id string) (*types.MediaRecord, error) {
	query := `
	SELECT id, file_name, mime_type, size, location, COALESCE(uploader_id, ''),
	       is_image, is_video, width, height, video, variants, processing, created_at
	FROM media_records
	WHERE id = $1
	`

	record, err := scanRecord(p.Db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, storage.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media record: %w", err)
	}
	return record, nil
}

func (p *Postgres) ListMediaByUploader(uploaderID string, limit, offset int) ([]*types.MediaRecord, error) {
	query := `
	SELECT id, file_name, mime_type, size, location, COALESCE(uploader_id, ''),
	       is_image, is_video, width, height, video, variants, processing, created_at
	FROM media_records
	WHERE uploader_id = $1
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3
	`

	rows, err := p.Db.Query(query, uploaderID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list media records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func (p *Postgres) ListMedia(limit, offset int) ([]*types.MediaRecord, error) {
	query := `
	SELECT id, file_name, mime_type, size, location, COALESCE(uploader_id, ''),
	       is_image, is_video, width, height, video, variants, processing, created_at
	FROM media_records
	ORDER BY created_at DESC
	LIMIT $1 OFFSET $2
	`

	rows, err := p.Db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list media records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func (p *Postgres) DeleteMediaRecord(id string) error {
	result, err := p.Db.Exec(`DELETE FROM media_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete media record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrRecordNotFound
	}

	return nil
}

// rowScanner lets scanRecord work for both QueryRow and Query rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*types.MediaRecord, error) {
	var (
		record     types.MediaRecord
		location   []byte
		video      []byte
		variants   []byte
		processing []byte
	)

	err := row.Scan(
		&record.ID, &record.FileName, &record.MimeType, &record.Size,
		&location, &record.UploaderID, &record.IsImage, &record.IsVideo,
		&record.Width, &record.Height, &video, &variants, &processing,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(location, &record.Location); err != nil {
		return nil, fmt.Errorf("failed to unmarshal location: %w", err)
	}
	if err := json.Unmarshal(variants, &record.Variants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
	}
	if err := json.Unmarshal(processing, &record.Processing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal processing metadata: %w", err)
	}
	if len(video) > 0 {
		record.Video = &types.VideoMetadata{}
		if err := json.Unmarshal(video, record.Video); err != nil {
			return nil, fmt.Errorf("failed to unmarshal video metadata: %w", err)
		}
	}

	return &record, nil
}

func collectRecords(rows *sql.Rows) ([]*types.MediaRecord, error) {
	var records []*types.MediaRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	return records, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
