package support

import (
	"fmt"
	"os"
	"strings"

	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/labelscan/internal/catalog"
	"github.com/MeKo-Tech/labelscan/internal/testutil"
)

// theProduceCatalogIsAvailable writes the shared produce catalog.
func (testCtx *TestContext) theProduceCatalogIsAvailable() error {
	return testCtx.writeCatalog(testutil.ProduceCatalog())
}

// aCatalogWithProducts writes a catalog from an id/name table.
func (testCtx *TestContext) aCatalogWithProducts(table *godog.Table) error {
	if len(table.Rows) < 2 {
		return fmt.Errorf("catalog table needs a header and at least one row")
	}
	items := make([]catalog.Item, 0, len(table.Rows)-1)
	for _, row := range table.Rows[1:] {
		if len(row.Cells) < 2 {
			return fmt.Errorf("catalog row needs id and name")
		}
		items = append(items, catalog.Item{ID: row.Cells[0].Value, Name: row.Cells[1].Value})
	}
	return testCtx.writeCatalog(items)
}

func (testCtx *TestContext) writeCatalog(items []catalog.Item) error {
	data, err := yaml.Marshal(map[string][]catalog.Item{"products": items})
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	path := testCtx.TempPath("products.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	testCtx.CatalogPath = path
	return nil
}

// aLabelImageShowing renders a synthetic label. Lines are separated by "|".
func (testCtx *TestContext) aLabelImageShowing(name, text string) error {
	cfg := testutil.DefaultLabelConfig()
	cfg.Lines = strings.Split(text, "|")
	img := testutil.GenerateLabelImage(cfg)
	if err := imaging.Save(img, testCtx.TempPath(name)); err != nil {
		return fmt.Errorf("failed to save label image %s: %w", name, err)
	}
	return nil
}

// aPayloadFileContaining writes a payload captured by another device.
func (testCtx *TestContext) aPayloadFileContaining(name, payload string) error {
	if err := os.WriteFile(testCtx.TempPath(name), []byte(payload+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write payload file %s: %w", name, err)
	}
	return nil
}

// aFileContaining writes arbitrary bytes, e.g. a broken image.
func (testCtx *TestContext) aFileContaining(name, content string) error {
	return os.WriteFile(testCtx.TempPath(name), []byte(content), 0o600)
}

// aDropFolder creates an empty folder inside the temp dir.
func (testCtx *TestContext) aDropFolder(name string) error {
	return os.MkdirAll(testCtx.TempPath(name), 0o755)
}

// RegisterFixtureSteps registers catalog and capture fixture steps.
func (testCtx *TestContext) RegisterFixtureSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the produce catalog is available$`, testCtx.theProduceCatalogIsAvailable)
	sc.Step(`^a catalog with products:$`, testCtx.aCatalogWithProducts)
	sc.Step(`^a label image "([^"]*)" showing "([^"]*)"$`, testCtx.aLabelImageShowing)
	sc.Step(`^a payload file "([^"]*)" containing "([^"]*)"$`, testCtx.aPayloadFileContaining)
	sc.Step(`^a file "([^"]*)" containing "([^"]*)"$`, testCtx.aFileContaining)
	sc.Step(`^a drop folder "([^"]*)"$`, testCtx.aDropFolder)
}
