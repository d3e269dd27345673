package support

import (
	"fmt"
	"strings"

	"github.com/cucumber/godog"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// aLabelSheetWithImages builds a PDF with one page per listed label image.
func (testCtx *TestContext) aLabelSheetWithImages(name, images string) error {
	var paths []string
	for _, img := range strings.Split(images, ",") {
		if img = strings.TrimSpace(img); img != "" {
			paths = append(paths, testCtx.TempPath(img))
		}
	}
	if len(paths) == 0 {
		return fmt.Errorf("label sheet %s needs at least one image", name)
	}
	if err := api.ImportImagesFile(paths, testCtx.TempPath(name), nil, nil); err != nil {
		return fmt.Errorf("failed to build label sheet %s: %w", name, err)
	}
	return nil
}

// theLabelSheetIsEncryptedWith protects an existing sheet with a user password.
func (testCtx *TestContext) theLabelSheetIsEncryptedWith(name, password string) error {
	conf := model.NewDefaultConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password
	path := testCtx.TempPath(name)
	if err := api.EncryptFile(path, "", conf); err != nil {
		return fmt.Errorf("failed to encrypt %s: %w", name, err)
	}
	return nil
}

// thePDFShouldHavePages reads the page count of a sheet.
func (testCtx *TestContext) thePDFShouldHavePages(name string, pageCount int) error {
	n, err := api.PageCountFile(testCtx.TempPath(name))
	if err != nil {
		return fmt.Errorf("failed to count pages of %s: %w", name, err)
	}
	if n != pageCount {
		return fmt.Errorf("%s has %d pages, expected %d", name, n, pageCount)
	}
	return nil
}

// RegisterPDFSteps registers PDF label sheet steps.
func (testCtx *TestContext) RegisterPDFSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a label sheet "([^"]*)" with images "([^"]*)"$`, testCtx.aLabelSheetWithImages)
	sc.Step(`^the label sheet "([^"]*)" is encrypted with "([^"]*)"$`, testCtx.theLabelSheetIsEncryptedWith)
	sc.Step(`^the PDF "([^"]*)" should have (\d+) pages?$`, testCtx.thePDFShouldHavePages)
}
