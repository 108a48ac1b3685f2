package repo

import (
	"context"
	"fmt"

	"genstudio/internal/domain"
	"genstudio/internal/infra"
	"genstudio/internal/sqlinline"
)

// ImageRepositoryPG implements domain.ImageRepository using PostgreSQL.
type ImageRepositoryPG struct {
	db infra.SQLExecutor
}

// NewImageRepository constructs a new image repository instance.
func NewImageRepository(db infra.SQLExecutor) *ImageRepositoryPG {
	return &ImageRepositoryPG{db: db}
}

// Upsert inserts img keyed by storage key and loads back the stored row.
func (r *ImageRepositoryPG) Upsert(ctx context.Context, img *domain.Image) error {
	row := r.db.QueryRow(ctx, sqlinline.QImageUpsert,
		img.ID,
		img.JobID,
		img.StorageKey,
		img.Width,
		img.Height,
		img.Prompt,
		img.Model,
		img.AspectRatio,
		img.Resolution,
		string(img.Type),
		img.ParentImageID,
		img.Cost,
		img.CreatedAt,
	)
	stored, err := scanImage(row)
	if err != nil {
		return fmt.Errorf("upsert image: %w", err)
	}
	*img = *stored
	return nil
}

// ListByJobID returns all images belonging to the job ordered by storage key.
func (r *ImageRepositoryPG) ListByJobID(ctx context.Context, jobID string) ([]domain.Image, error) {
	rows, err := r.db.Query(ctx, sqlinline.QImageListByJob, jobID)
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

// GetByID fetches a single image.
func (r *ImageRepositoryPG) GetByID(ctx context.Context, imageID string) (*domain.Image, error) {
	img, err := scanImage(r.db.QueryRow(ctx, sqlinline.QImageGetByID, imageID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

func scanImage(row rowScanner) (*domain.Image, error) {
	var (
		img       domain.Image
		imageType string
	)
	if err := row.Scan(
		&img.ID,
		&img.JobID,
		&img.StorageKey,
		&img.Width,
		&img.Height,
		&img.Prompt,
		&img.Model,
		&img.AspectRatio,
		&img.Resolution,
		&imageType,
		&img.ParentImageID,
		&img.Cost,
		&img.CreatedAt,
	); err != nil {
		return nil, err
	}
	img.Type = domain.ImageType(imageType)
	return &img, nil
}

var _ domain.ImageRepository = (*ImageRepositoryPG)(nil)
