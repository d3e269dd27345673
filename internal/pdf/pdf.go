// Package pdf turns uploaded label sheets into captures. Every embedded image
// on the selected pages becomes one capture, ordered by page and then by the
// order pdfcpu extracts them.
package pdf

import (
	"cmp"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/MeKo-Tech/labelscan/internal/pipeline"
	"github.com/MeKo-Tech/labelscan/internal/utils"
)

// ErrPasswordRequired is returned for protected files opened without credentials.
var ErrPasswordRequired = errors.New("pdf is password protected")

// Options select what ExtractPages reads.
type Options struct {
	// Pages is a range like "1-3,5"; empty means all pages.
	Pages       string
	Credentials *Credentials
}

// Page is one extracted image. Index counts images within the page.
type Page struct {
	Number int
	Index  int
	Image  image.Image
}

// Captures turns pages into pdf-sourced captures, keeping their order.
func Captures(pages []Page) []pipeline.Capture {
	captures := make([]pipeline.Capture, len(pages))
	for i, p := range pages {
		captures[i] = pipeline.Capture{Image: p.Image, Source: pipeline.SourcePDF}
	}
	return captures
}

// ExtractPagesFromReader spools an uploaded sheet to a temporary file and
// extracts it.
func ExtractPagesFromReader(r io.Reader, opts Options) ([]Page, error) {
	tmp, err := os.CreateTemp("", "labelsheet-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	_, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to spool PDF: %w", err)
	}
	return ExtractPages(tmp.Name(), opts)
}

// ExtractPages returns every embedded image on the selected pages, ordered by
// page and then by the order pdfcpu names them.
func ExtractPages(filename string, opts Options) ([]Page, error) {
	selected, err := parsePageRange(opts.Pages)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", opts.Pages, err)
	}

	source, cleanup, err := decrypt(filename, opts.Credentials)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	outDir, err := os.MkdirTemp("", "labelsheet-images-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(outDir) }()

	var selection []string
	for _, n := range selected {
		selection = append(selection, strconv.Itoa(n))
	}
	if err := api.ExtractImagesFile(source, outDir, selection, nil); err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}

	pages, err := readExtracted(outDir, strings.TrimSuffix(filepath.Base(source), filepath.Ext(source)))
	if err != nil {
		return nil, fmt.Errorf("failed to process extracted images: %w", err)
	}
	return pages, nil
}

// readExtracted decodes the files pdfcpu wrote into dir. Files that are not
// page images or do not decode are skipped.
func readExtracted(dir, base string) ([]Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var pages []Page
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		number, err := parsePageFromFilename(e.Name(), base)
		if err != nil {
			continue
		}
		img, err := decodeFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		pages = append(pages, Page{Number: number, Image: img})
	}

	// ReadDir sorts by name, so "_10_" precedes "_2_"; order by page number
	// and keep the name order within a page.
	slices.SortStableFunc(pages, func(a, b Page) int { return cmp.Compare(a.Number, b.Number) })
	for i := range pages {
		if i > 0 && pages[i].Number == pages[i-1].Number {
			pages[i].Index = pages[i-1].Index + 1
		}
	}
	return pages, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // G304: inside our own temp dir
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	img, _, err := utils.DecodeImage(f)
	return img, err
}

// parsePageFromFilename extracts the page number from an extracted file name.
// pdfcpu writes <base>_<page>_<id>.<ext>; the older page_<page>_image_<n>
// layout is accepted too.
func parsePageFromFilename(filename, base string) (int, error) {
	var rest string
	switch {
	case base != "" && strings.HasPrefix(filename, base+"_"):
		rest = strings.TrimPrefix(filename, base+"_")
	case strings.HasPrefix(filename, "page_"):
		rest = strings.TrimPrefix(filename, "page_")
	default:
		return 0, errors.New("not a page file")
	}

	token, _, ok := strings.Cut(rest, "_")
	if !ok {
		return 0, errors.New("invalid filename format")
	}
	pageNum, err := strconv.Atoi(token)
	if err != nil || pageNum < 1 {
		return 0, errors.New("invalid page number")
	}
	return pageNum, nil
}

// parsePageRange parses a selection like "1-5" or "1,3,5" into ascending,
// distinct page numbers. An empty selection means every page and returns nil.
func parsePageRange(pageRange string) ([]int, error) {
	if strings.TrimSpace(pageRange) == "" {
		return nil, nil
	}

	var pages []int
	for _, part := range strings.Split(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		pages = append(pages, tokenPages...)
	}
	slices.Sort(pages)
	return slices.Compact(pages), nil
}

// maxRangeSpan caps a single "a-b" token so a typo cannot allocate millions
// of page numbers.
const maxRangeSpan = 10000

// parseRangeToken parses "3" or "1-5".
func parseRangeToken(part string) ([]int, error) {
	if lo, hi, isRange := strings.Cut(part, "-"); isRange {
		if strings.Contains(hi, "-") {
			return nil, fmt.Errorf("invalid range format: %s", part)
		}
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil || start < 1 {
			return nil, fmt.Errorf("invalid start page: %s", lo)
		}
		end, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("invalid end page: %s", hi)
		}
		if end-start >= maxRangeSpan {
			return nil, fmt.Errorf("range %s spans more than %d pages", part, maxRangeSpan)
		}
		if start > end {
			return nil, fmt.Errorf("start page %d greater than end page %d", start, end)
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	page, err := strconv.Atoi(part)
	if err != nil || page < 1 {
		return nil, fmt.Errorf("invalid page number: %s", part)
	}
	return []int{page}, nil
}
