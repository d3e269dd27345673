package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultTable is the products table LoadDB reads when none is given.
const DefaultTable = "products"

// ErrUnsupportedFormat is returned for catalog files that are neither YAML nor JSON.
var ErrUnsupportedFormat = errors.New("catalog: unsupported file format")

type fileDocument struct {
	Products []Item `json:"products" yaml:"products"`
}

// LoadFile reads catalog items from a YAML or JSON file. Both a bare list of
// {id, name} objects and a document with a top-level "products" list are
// accepted.
func LoadFile(path string) ([]Item, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: catalog path comes from config/flags
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeItems(data, yaml.Unmarshal)
	case ".json":
		return decodeItems(data, json.Unmarshal)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func decodeItems(data []byte, unmarshal func([]byte, any) error) ([]Item, error) {
	var items []Item
	if err := unmarshal(data, &items); err == nil {
		return items, nil
	}
	var doc fileDocument
	if err := unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return doc.Products, nil
}

// productRow maps the read-only projection used by LoadDB.
type productRow struct {
	ID   string `gorm:"column:id"`
	Name string `gorm:"column:name"`
}

// OpenPostgres opens a gorm handle for dsn with SQL logging silenced.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	return db, nil
}

// LoadDB reads id and name from table, ordered by id. It never writes.
func LoadDB(ctx context.Context, db *gorm.DB, table string) ([]Item, error) {
	if db == nil {
		return nil, errors.New("catalog: nil database")
	}
	if table == "" {
		table = DefaultTable
	}

	var rows []productRow
	err := db.WithContext(ctx).
		Table(table).
		Select("id", "name").
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog table %s: %w", table, err)
	}

	items := make([]Item, len(rows))
	for i, r := range rows {
		items[i] = Item(r)
	}
	return items, nil
}
