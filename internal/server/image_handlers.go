package server

import (
	"errors"
	"image"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/MeKo-Tech/labelscan/internal/pipeline"
	"github.com/MeKo-Tech/labelscan/internal/utils"
)

// resolveImageHandler resolves one uploaded label photo. An optional
// "payload" form field carries a structured code the client already decoded.
func (s *Server) resolveImageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.parseUpload(w, r) {
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	img, ok := s.decodeUpload(w, file, header)
	if !ok {
		return
	}

	req := pipeline.Request{
		Payload: strings.TrimSpace(r.FormValue("payload")),
		Capture: &pipeline.Capture{Image: img, Source: pipeline.SourceUpload},
	}
	s.resolveAndRespond(w, r, "image", req)
}

// parseUpload bounds and parses a multipart body, writing 413 or 400 on
// failure.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) bool {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(strings.ToLower(err.Error()), "body too large") {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		}
		return false
	}
	return true
}

// decodeUpload decodes one uploaded image (JPEG, PNG or BMP).
func (s *Server) decodeUpload(w http.ResponseWriter, file multipart.File, header *multipart.FileHeader) (image.Image, bool) {
	if header.Size > s.maxUploadMB*1024*1024 {
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return nil, false
	}
	uploadSizeBytes.Observe(float64(header.Size))

	img, _, err := utils.DecodeImage(file)
	if err != nil {
		s.logger.Debug("Rejected upload", "filename", header.Filename, "error", err)
		s.writeErrorResponse(w, "Invalid image format", http.StatusBadRequest)
		return nil, false
	}
	return img, true
}
