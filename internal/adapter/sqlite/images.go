package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"genstudio/internal/domain"
)

// ImageRepository implements domain.ImageRepository on SQLite.
type ImageRepository struct {
	db *sql.DB
}

func NewImageRepository(db *sql.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

func (r *ImageRepository) Upsert(ctx context.Context, img *domain.Image) error {
	row := r.db.QueryRowContext(ctx, qImageUpsert,
		img.ID,
		nullableString(img.JobID),
		img.StorageKey,
		nullableInt(img.Width),
		nullableInt(img.Height),
		img.Prompt,
		img.Model,
		img.AspectRatio,
		img.Resolution,
		string(img.Type),
		nullableString(img.ParentImageID),
		img.Cost,
		formatTime(img.CreatedAt),
	)
	stored, err := scanImage(row)
	if err != nil {
		return fmt.Errorf("upsert image: %w", err)
	}
	*img = *stored
	return nil
}

func (r *ImageRepository) ListByJobID(ctx context.Context, jobID string) ([]domain.Image, error) {
	rows, err := r.db.QueryContext(ctx, qImageListByJob, jobID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images []domain.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, *img)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return images, nil
}

func (r *ImageRepository) GetByID(ctx context.Context, imageID string) (*domain.Image, error) {
	img, err := scanImage(r.db.QueryRowContext(ctx, qImageGetByID, imageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

func scanImage(row rowScanner) (*domain.Image, error) {
	var (
		img                domain.Image
		jobID, parentID    sql.NullString
		width, height      sql.NullInt64
		imageType, created string
	)
	if err := row.Scan(
		&img.ID,
		&jobID,
		&img.StorageKey,
		&width,
		&height,
		&img.Prompt,
		&img.Model,
		&img.AspectRatio,
		&img.Resolution,
		&imageType,
		&parentID,
		&img.Cost,
		&created,
	); err != nil {
		return nil, err
	}
	img.Type = domain.ImageType(imageType)
	if jobID.Valid {
		img.JobID = &jobID.String
	}
	if parentID.Valid {
		img.ParentImageID = &parentID.String
	}
	if width.Valid {
		w := int(width.Int64)
		img.Width = &w
	}
	if height.Valid {
		h := int(height.Int64)
		img.Height = &h
	}
	createdAt, err := parseTime(created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	img.CreatedAt = createdAt
	return &img, nil
}

var _ domain.ImageRepository = (*ImageRepository)(nil)
