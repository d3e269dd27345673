package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MeKo-Tech/labelscan/internal/pdf"
)

// resolvePDFHandler resolves every label image embedded in an uploaded PDF
// sheet. Optional form fields: "pages" (e.g. "1-3,5") and "password".
func (s *Server) resolvePDFHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.parseUpload(w, r) {
		return
	}

	file, header, err := r.FormFile("pdf")
	if err != nil {
		s.writeErrorResponse(w, "No PDF file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	if header.Size > s.maxUploadMB*1024*1024 {
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return
	}
	uploadSizeBytes.Observe(float64(header.Size))

	opts := pdf.Options{Pages: strings.TrimSpace(r.FormValue("pages"))}
	if pw := r.FormValue("password"); pw != "" {
		opts.Credentials = &pdf.Credentials{UserPassword: pw, OwnerPassword: pw}
	}

	pages, err := pdf.ExtractPagesFromReader(file, opts)
	switch {
	case errors.Is(err, pdf.ErrPasswordRequired), pdf.IsPasswordError(err):
		s.writeErrorResponse(w, "PDF is password protected", http.StatusUnauthorized)
		return
	case err != nil:
		s.logger.Debug("Rejected PDF upload", "filename", header.Filename, "error", err)
		s.writeErrorResponse(w, fmt.Sprintf("Failed to read PDF: %v", err), http.StatusBadRequest)
		return
	case len(pages) == 0:
		s.writeErrorResponse(w, "No label images found in PDF", http.StatusUnprocessableEntity)
		return
	}

	items := make([]BatchItem, len(pages))
	for i, p := range pages {
		items[i] = BatchItem{Name: fmt.Sprintf("%s#%d.%d", header.Filename, p.Number, p.Index), Page: p.Number}
	}
	s.resolveCapturesAndRespond(w, r, "pdf", pdf.Captures(pages), items)
}
