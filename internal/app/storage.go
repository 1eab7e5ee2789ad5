package app

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/JakeFAU/pagewatch/internal/config"
	"github.com/JakeFAU/pagewatch/internal/snapshot"
	"github.com/JakeFAU/pagewatch/internal/snapshot/file"
	"github.com/JakeFAU/pagewatch/internal/snapshot/gcs"
	"github.com/JakeFAU/pagewatch/internal/snapshot/postgres"
	"github.com/JakeFAU/pagewatch/internal/snapshot/sqlite"
)

// Backend kinds reported by Open.
const (
	KindFile     = "file"
	KindGCS      = "gcs"
	KindPostgres = "postgres"
	KindSQLite   = "sqlite"
)

// Backend is an opened snapshot backend together with the connections it
// holds. Close releases them.
type Backend struct {
	snapshot.Backend
	Kind  string
	close func() error
}

// Close releases the backend's connections.
func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// Open selects a snapshot backend from the storage location:
//
//	gs://bucket/object            GCS object
//	postgres://... postgresql://  Postgres table
//	sqlite://path                 SQLite table
//	anything else                 JSON file
func Open(ctx context.Context, location string, settings config.Config, opts ...option.ClientOption) (*Backend, error) {
	switch {
	case location == "":
		return nil, fmt.Errorf("storage location is required")

	case strings.HasPrefix(location, "gs://"):
		cfg, err := gcs.ParseLocation(location)
		if err != nil {
			return nil, err
		}
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		b, err := gcs.New(client, cfg)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &Backend{Backend: b, Kind: KindGCS, close: client.Close}, nil

	case strings.HasPrefix(location, "postgres://"), strings.HasPrefix(location, "postgresql://"):
		b, err := postgres.New(ctx, postgres.Config{
			DSN:      location,
			Table:    settings.Storage.Table,
			MaxConns: settings.Storage.MaxConns,
		})
		if err != nil {
			return nil, err
		}
		return &Backend{Backend: b, Kind: KindPostgres, close: func() error {
			b.Close()
			return nil
		}}, nil

	case strings.HasPrefix(location, "sqlite://"):
		path := strings.TrimPrefix(location, "sqlite://")
		b, err := sqlite.Open(ctx, path, settings.Storage.Table)
		if err != nil {
			return nil, err
		}
		return &Backend{Backend: b, Kind: KindSQLite, close: b.Close}, nil

	default:
		b, err := file.New(location)
		if err != nil {
			return nil, err
		}
		return &Backend{Backend: b, Kind: KindFile}, nil
	}
}
