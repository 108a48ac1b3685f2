package main

import (
	"context"
	"fmt"
	"net/http"

	"genstudio/internal/adapter/repo"
	"genstudio/internal/adapter/sqlite"
	"genstudio/internal/catalog"
	"genstudio/internal/domain"
	"genstudio/internal/infra"
	"genstudio/internal/storage"
)

type stores struct {
	jobs    domain.JobRepository
	images  domain.ImageRepository
	gallery *catalog.Catalog
	ping    func(context.Context) error
	closers []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores connects the job store and gallery catalog selected by DATABASE_URL.
func openStores(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*stores, error) {
	if cfg.DatabaseDriver() == "sqlite" {
		return openSQLite(ctx, cfg.SQLitePath())
	}

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	st := &stores{closers: []func(){pool.Close}, ping: pool.Ping}
	runner := infra.NewSQLRunner(pool, logger)
	if cfg.DBAutoCreate {
		if err := repo.EnsureSchema(ctx, runner); err != nil {
			st.close()
			return nil, err
		}
	}
	gallery, err := catalog.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		st.close()
		return nil, err
	}
	st.closers = append(st.closers, func() { _ = gallery.Close() })
	st.jobs = repo.NewJobRepository(runner)
	st.images = repo.NewImageRepository(runner)
	st.gallery = gallery
	return st, nil
}

func openSQLite(ctx context.Context, path string) (*stores, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	if err := sqlite.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &stores{
		jobs:    sqlite.NewJobRepository(db),
		images:  sqlite.NewImageRepository(db),
		gallery: catalog.FromSQLite(db),
		ping:    db.PingContext,
		closers: []func(){func() { _ = db.Close() }},
	}, nil
}

// openObjectStore returns the configured store and, for the filesystem
// driver, the directory the API serves under /static.
func openObjectStore(ctx context.Context, cfg *infra.Config) (storage.ObjectStore, string, error) {
	client := &http.Client{Timeout: 2 * cfg.ProviderTimeout}
	switch cfg.StorageDriver {
	case "minio":
		store, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:   cfg.MinioEndpoint,
			AccessKey:  cfg.MinioAccessKey,
			SecretKey:  cfg.MinioSecretKey,
			Bucket:     cfg.MinioBucket,
			Region:     cfg.MinioRegion,
			UseSSL:     cfg.MinioUseSSL,
			PublicURL:  cfg.MinioPublicURL,
			PresignTTL: cfg.PresignTTL,
		}, client)
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	case "file":
		store, err := storage.NewFileStore(cfg.StorageDir, cfg.StorageBaseURL, client)
		if err != nil {
			return nil, "", err
		}
		return store, store.BasePath(), nil
	default:
		return nil, "", fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
