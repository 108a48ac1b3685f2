// Package catalog serves gallery reads of generated images with keyset
// pagination. It runs on PostgreSQL through lib/pq or on the SQLite store.
package catalog

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"genstudio/internal/domain"
)

const (
	DefaultLimit = 24
	MaxLimit     = 100
)

// sqliteTimeLayout matches the fixed-width text timestamps of the SQLite store.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Filter narrows a gallery listing. Before is the NextCursor of a previous page.
type Filter struct {
	Type   string
	Model  string
	JobID  string
	Limit  int
	Before string
}

// Page is one slice of the gallery, newest first.
type Page struct {
	Items      []domain.Image
	NextCursor string
}

// Catalog answers gallery queries.
type Catalog struct {
	db *sqlx.DB
}

// New wraps an open sqlx handle. The driver name selects placeholder style.
func New(db *sqlx.DB) *Catalog {
	return &Catalog{db: db}
}

// Connect opens a PostgreSQL catalog for dsn.
func Connect(ctx context.Context, dsn string) (*Catalog, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect catalog: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

// FromSQLite shares an already open SQLite handle.
func FromSQLite(db *sql.DB) *Catalog {
	return New(sqlx.NewDb(db, "sqlite"))
}

// Close releases the underlying handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

type imageRow struct {
	ID            string         `db:"id"`
	JobID         sql.NullString `db:"job_id"`
	StorageKey    string         `db:"storage_key"`
	Width         sql.NullInt64  `db:"width"`
	Height        sql.NullInt64  `db:"height"`
	Prompt        string         `db:"prompt"`
	Model         string         `db:"model"`
	AspectRatio   string         `db:"aspect_ratio"`
	Resolution    string         `db:"resolution"`
	Type          string         `db:"type"`
	ParentImageID sql.NullString `db:"parent_image_id"`
	Cost          float64        `db:"cost"`
	CreatedAt     dbTime         `db:"created_at"`
}

const imageColumns = `i.id, i.job_id, i.storage_key, i.width, i.height, i.prompt, i.model,
    i.aspect_ratio, i.resolution, i.type, i.parent_image_id, i.cost, i.created_at`

// visibleImages limits the gallery to images whose job has committed; rows of
// an interrupted completion stay hidden until the job completes.
const visibleImages = ` from generated_images i
    left join generation_jobs j on j.id = i.job_id
    where (i.job_id is null or j.status = 'completed')`

// List returns a page of images ordered by (created_at, id) descending.
func (c *Catalog) List(ctx context.Context, f Filter) (*Page, error) {
	limit, err := normalizeLimit(f.Limit)
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		if !knownType(f.Type) {
			return nil, domain.NewValidationError(fmt.Sprintf("type must be one of [%s]", strings.Join(imageTypes(), ", ")))
		}
		where = append(where, "i.type = ?")
		args = append(args, f.Type)
	}
	if f.Model != "" {
		where = append(where, "i.model = ?")
		args = append(args, f.Model)
	}
	if f.JobID != "" {
		where = append(where, "i.job_id = ?")
		args = append(args, f.JobID)
	}
	if f.Before != "" {
		at, id, err := decodeCursor(f.Before)
		if err != nil {
			return nil, err
		}
		where = append(where, "(i.created_at < ? or (i.created_at = ? and i.id < ?))")
		ts := c.timeArg(at)
		args = append(args, ts, ts, id)
	}

	var b strings.Builder
	b.WriteString("select ")
	b.WriteString(imageColumns)
	b.WriteString(visibleImages)
	for _, cond := range where {
		b.WriteString(" and ")
		b.WriteString(cond)
	}
	b.WriteString(" order by i.created_at desc, i.id desc limit ?")
	args = append(args, limit+1)

	var rows []imageRow
	if err := c.db.SelectContext(ctx, &rows, c.db.Rebind(b.String()), args...); err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	page := &Page{Items: make([]domain.Image, 0, min(len(rows), limit))}
	for i, row := range rows {
		if i == limit {
			last := page.Items[limit-1]
			page.NextCursor = encodeCursor(last.CreatedAt, last.ID)
			break
		}
		page.Items = append(page.Items, row.toDomain())
	}
	return page, nil
}

// Get returns a single gallery image.
func (c *Catalog) Get(ctx context.Context, id string) (*domain.Image, error) {
	var row imageRow
	err := c.db.GetContext(ctx, &row, c.db.Rebind("select "+imageColumns+visibleImages+" and i.id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("image %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	img := row.toDomain()
	return &img, nil
}

func (c *Catalog) timeArg(t time.Time) any {
	if c.db.DriverName() == "sqlite" {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t
}

func (r imageRow) toDomain() domain.Image {
	img := domain.Image{
		ID:          r.ID,
		StorageKey:  r.StorageKey,
		Prompt:      r.Prompt,
		Model:       r.Model,
		AspectRatio: r.AspectRatio,
		Resolution:  r.Resolution,
		Type:        domain.ImageType(r.Type),
		Cost:        r.Cost,
		CreatedAt:   r.CreatedAt.Time,
	}
	if r.JobID.Valid {
		img.JobID = &r.JobID.String
	}
	if r.ParentImageID.Valid {
		img.ParentImageID = &r.ParentImageID.String
	}
	if r.Width.Valid {
		w := int(r.Width.Int64)
		img.Width = &w
	}
	if r.Height.Valid {
		h := int(r.Height.Int64)
		img.Height = &h
	}
	return img
}

func normalizeLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, domain.NewValidationError("limit must be positive")
	case limit == 0:
		return DefaultLimit, nil
	case limit > MaxLimit:
		return MaxLimit, nil
	default:
		return limit, nil
	}
}

func imageTypes() []string {
	return []string{
		string(domain.ImageTypeGenerated),
		string(domain.ImageTypeVariation),
		string(domain.ImageTypeUpscale),
		string(domain.ImageTypeRMBG),
	}
}

func knownType(t string) bool {
	for _, known := range imageTypes() {
		if t == known {
			return true
		}
	}
	return false
}

func encodeCursor(at time.Time, id string) string {
	raw := at.UTC().Format(time.RFC3339Nano) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, string, error) {
	invalid := domain.NewValidationError("before is not a valid cursor")
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", invalid
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return time.Time{}, "", invalid
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, "", invalid
	}
	return at, id, nil
}
