package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/MeKo-Tech/labelscan/internal/pipeline"
)

// Upper bound on images per batch request.
const maxBatchImages = 64

// resolveBatchHandler resolves several uploaded photos ("images" form files)
// in parallel, each as an independent label.
func (s *Server) resolveBatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.parseUpload(w, r) {
		return
	}

	headers := r.MultipartForm.File["images"]
	switch {
	case len(headers) == 0:
		s.writeErrorResponse(w, "No image files provided", http.StatusBadRequest)
		return
	case len(headers) > maxBatchImages:
		s.writeErrorResponse(w, "Too many images in batch", http.StatusRequestEntityTooLarge)
		return
	}

	names := make([]string, 0, len(headers))
	captures := make([]pipeline.Capture, 0, len(headers))
	for _, h := range headers {
		file, err := h.Open()
		if err != nil {
			s.writeErrorResponse(w, "Failed to read image data", http.StatusBadRequest)
			return
		}
		img, ok := s.decodeUpload(w, file, h)
		_ = file.Close()
		if !ok {
			return
		}
		names = append(names, h.Filename)
		captures = append(captures, pipeline.Capture{Image: img, Source: pipeline.SourceUpload})
	}

	items := make([]BatchItem, len(captures))
	for i, name := range names {
		items[i].Name = name
	}
	s.resolveCapturesAndRespond(w, r, "batch", captures, items)
}

// resolveCapturesAndRespond fills items[i].Outcome from captures[i] and
// writes a BatchResponse.
func (s *Server) resolveCapturesAndRespond(w http.ResponseWriter, r *http.Request, endpoint string,
	captures []pipeline.Capture, items []BatchItem,
) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	snap, ok := s.snapshot(ctx, w)
	if !ok {
		return
	}

	start := time.Now()
	outcomes, err := s.pipeline.ResolveCaptures(ctx, captures, snap)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}
	stats := pipeline.CalculateParallelStats(outcomes, time.Since(start), s.workerCount(len(captures)))

	for i, o := range outcomes {
		items[i].Outcome = o.View()
		recordOutcome(endpoint, items[i].Outcome.Result.Kind)
	}
	s.logger.Debug("Resolved batch", "request_id", RequestID(r.Context()), "endpoint", endpoint,
		"total", stats.Total, "resolved", stats.Resolved)
	s.writeJSON(w, http.StatusOK, BatchResponse{
		Success:   true,
		RequestID: RequestID(r.Context()),
		Results:   items,
		Stats:     &stats,
	})
}

func (s *Server) workerCount(n int) int {
	workers := s.pipeline.Config().Parallel.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return min(workers, n)
}
