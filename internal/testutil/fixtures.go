package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/labelscan/internal/catalog"
)

// ProduceCatalog is the catalog most tests resolve against.
func ProduceCatalog() []catalog.Item {
	return []catalog.Item{
		{ID: "PROD-00001", Name: "Whole Milk"},
		{ID: "PROD-00002", Name: "Oat Milk"},
		{ID: "PROD-00003", Name: "Greek Yogurt"},
		{ID: "PROD-00007", Name: "Organic Apples"},
		{ID: "PROD-00008", Name: "Organic Pears"},
		{ID: "PROD-00009", Name: "Organic Plums"},
	}
}

// ProduceSnapshot wraps ProduceCatalog in a snapshot.
func ProduceSnapshot() catalog.Snapshot {
	return catalog.NewSnapshot(ProduceCatalog())
}

// WriteCatalog stores items under dir as name. The extension picks the
// encoding (.yaml/.yml or .json) and YAML files use the "products" document
// layout.
func WriteCatalog(t *testing.T, dir, name string, items []catalog.Item) string {
	t.Helper()
	path := filepath.Join(dir, name)

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		data, err = json.MarshalIndent(items, "", "  ")
	default:
		data, err = yaml.Marshal(map[string][]catalog.Item{"products": items})
	}
	require.NoError(t, err)
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}
