package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
)

// Source produces a fresh snapshot for each resolution call.
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Static always returns the same snapshot.
type Static Snapshot

// Snapshot implements Source.
func (s Static) Snapshot(context.Context) (Snapshot, error) { return Snapshot(s), nil }

// FileSource re-reads a catalog file on every call so edits are picked up
// without a restart.
type FileSource struct {
	Path string
}

// Snapshot implements Source.
func (f FileSource) Snapshot(context.Context) (Snapshot, error) {
	items, err := LoadFile(f.Path)
	if err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(items), nil
}

// DBSource queries the products table on every call.
type DBSource struct {
	DB    *gorm.DB
	Table string
}

// Snapshot implements Source.
func (d DBSource) Snapshot(ctx context.Context) (Snapshot, error) {
	items, err := LoadDB(ctx, d.DB, d.Table)
	if err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(items), nil
}

// Open picks a source from configuration: a DSN wins over a file path, and
// neither yields an empty static catalog.
func Open(file, dsn, table string) (Source, error) {
	switch {
	case dsn != "":
		db, err := OpenPostgres(dsn)
		if err != nil {
			return nil, err
		}
		slog.Debug("Using database catalog", "table", table)
		return DBSource{DB: db, Table: table}, nil
	case file != "":
		if _, err := LoadFile(file); err != nil {
			return nil, fmt.Errorf("invalid catalog file %s: %w", file, err)
		}
		slog.Debug("Using file catalog", "path", file)
		return FileSource{Path: file}, nil
	default:
		slog.Warn("No catalog configured; every resolution will be unresolved")
		return Static(NewSnapshot(nil)), nil
	}
}
