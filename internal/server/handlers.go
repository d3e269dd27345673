package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/labelscan/internal/catalog"
	"github.com/MeKo-Tech/labelscan/internal/pipeline"
	"github.com/MeKo-Tech/labelscan/internal/utils"
	"github.com/MeKo-Tech/labelscan/internal/version"
)

// maxJSONBody caps JSON request bodies that carry no images.
const maxJSONBody = 1 << 20

// labelRequest is the JSON form of one label's inputs. Image holds encoded
// image bytes (base64 in JSON).
type labelRequest struct {
	Payload string `json:"payload,omitempty"`
	Text    string `json:"text,omitempty"`
	Image   []byte `json:"image,omitempty"`
}

func (l labelRequest) empty() bool {
	return strings.TrimSpace(l.Payload) == "" && strings.TrimSpace(l.Text) == "" && len(l.Image) == 0
}

func (l labelRequest) toRequest(source pipeline.Source) (pipeline.Request, error) {
	req := pipeline.Request{Payload: l.Payload, Text: l.Text}
	if len(l.Image) > 0 {
		img, _, err := utils.DecodeImage(bytes.NewReader(l.Image))
		if err != nil {
			return pipeline.Request{}, err
		}
		req.Capture = &pipeline.Capture{Image: img, Source: source}
	}
	return req, nil
}

type mixedRequest struct {
	PalletID         string       `json:"pallet_id"`
	PalletProductIDs []string     `json:"pallet_product_ids,omitempty"`
	Primary          labelRequest `json:"primary"`
	Secondary        labelRequest `json:"secondary"`
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	build := version.Current()
	response := HealthResponse{
		Status: "healthy",
		Build:  &build,
		Time:   time.Now().UTC().Format(time.RFC3339),
	}
	if s.pipeline != nil {
		response.Pipeline = s.pipeline.Info()
	}

	status := http.StatusOK
	if s.catalog != nil {
		snap, err := s.catalog.Snapshot(r.Context())
		if err != nil {
			response.Status = "degraded"
			response.Error = "catalog unavailable"
			status = http.StatusServiceUnavailable
			s.logger.Warn("Health check could not load catalog", "error", err)
		} else {
			response.CatalogSize = snap.Len()
			catalogEntries.Set(float64(snap.Len()))
		}
	}
	s.writeJSON(w, status, response)
}

// resolveCodeHandler resolves a decoded structured code. OCR never runs.
func (s *Server) resolveCodeHandler(w http.ResponseWriter, r *http.Request) {
	var body labelRequest
	if !s.decodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Payload) == "" {
		s.writeErrorResponse(w, "No payload provided", http.StatusBadRequest)
		return
	}
	s.resolveAndRespond(w, r, "code", pipeline.Request{Payload: body.Payload})
}

// resolveTextHandler resolves text recognized elsewhere, optionally together
// with a structured code read from the same label.
func (s *Server) resolveTextHandler(w http.ResponseWriter, r *http.Request) {
	var body labelRequest
	if !s.decodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		s.writeErrorResponse(w, "No text provided", http.StatusBadRequest)
		return
	}
	s.resolveAndRespond(w, r, "text", pipeline.Request{Payload: body.Payload, Text: body.Text})
}

// resolveMixedHandler resolves both labels of a mixed pallet. When
// pallet_product_ids shows the primary product is alone on the pallet, the
// secondary pass is skipped.
func (s *Server) resolveMixedHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadMB*1024*1024)

	var body mixedRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeErrorResponse(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.PalletID) == "" {
		s.writeErrorResponse(w, "No pallet_id provided", http.StatusBadRequest)
		return
	}
	if body.Primary.empty() {
		s.writeErrorResponse(w, "Primary label is empty", http.StatusBadRequest)
		return
	}
	primaryReq, err := body.Primary.toRequest(pipeline.SourceUpload)
	if err != nil {
		s.writeErrorResponse(w, "Invalid primary image", http.StatusBadRequest)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()
	snap, ok := s.snapshot(ctx, w)
	if !ok {
		return
	}

	primary, err := s.resolveLabel(ctx, primaryReq, snap)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}

	resp := MixedResponse{Success: true, RequestID: RequestID(r.Context()), NeedsSecondPass: true}
	if len(body.PalletProductIDs) > 0 {
		resp.NeedsSecondPass = pipeline.NeedsSecondPass(primary, body.PalletProductIDs)
	}
	if !resp.NeedsSecondPass {
		view := primary.View()
		resp.Primary = &view
		recordOutcome("mixed", view.Result.Kind)
		s.writeJSON(w, http.StatusOK, resp)
		return
	}

	if body.Secondary.empty() {
		s.writeErrorResponse(w, "Secondary label is empty", http.StatusBadRequest)
		return
	}
	secondaryReq, err := body.Secondary.toRequest(pipeline.SourceUpload)
	if err != nil {
		s.writeErrorResponse(w, "Invalid secondary image", http.StatusBadRequest)
		return
	}

	mixed, err := s.pipeline.ResolveMixed(ctx, body.PalletID, primary, secondaryReq, snap)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}
	view := mixed.View()
	resp.Mixed = &view
	recordOutcome("mixed", view.Secondary.Result.Kind)
	s.logger.Debug("Resolved mixed pallet", "request_id", resp.RequestID, "pallet", body.PalletID,
		"primary", view.Primary.Result.Kind, "secondary", view.Secondary.Result.Kind)
	s.writeJSON(w, http.StatusOK, resp)
}

// resolveAndRespond runs one request and writes a ResolveResponse.
func (s *Server) resolveAndRespond(w http.ResponseWriter, r *http.Request, endpoint string, req pipeline.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	snap, ok := s.snapshot(ctx, w)
	if !ok {
		return
	}
	outcome, err := s.resolveLabel(ctx, req, snap)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}

	view := outcome.View()
	recordOutcome(endpoint, view.Result.Kind)
	s.logger.Debug("Resolved label", "request_id", RequestID(r.Context()), "endpoint", endpoint,
		"kind", view.Result.Kind, "problem", view.Problem)
	s.writeJSON(w, http.StatusOK, ResolveResponse{Success: true, RequestID: RequestID(r.Context()), Outcome: &view})
}

func (s *Server) resolveLabel(ctx context.Context, req pipeline.Request, snap catalog.Snapshot) (pipeline.Outcome, error) {
	if s.pipeline == nil {
		return pipeline.Outcome{}, pipeline.ErrNilPipeline
	}
	return s.pipeline.Resolve(ctx, req, snap)
}

// snapshot loads a fresh catalog snapshot, writing a 503 on failure.
func (s *Server) snapshot(ctx context.Context, w http.ResponseWriter) (catalog.Snapshot, bool) {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		s.logger.Error("Failed to load catalog snapshot", "error", err)
		s.writeErrorResponse(w, "Catalog unavailable", http.StatusServiceUnavailable)
		return catalog.Snapshot{}, false
	}
	return snap, true
}

// requestContext bounds a request by the configured timeout.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.timeoutSec > 0 {
		return context.WithTimeout(r.Context(), time.Duration(s.timeoutSec)*time.Second)
	}
	return context.WithCancel(r.Context())
}

// decodeJSON parses a small JSON POST body into v.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, "Request body too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "Invalid JSON body", http.StatusBadRequest)
		}
		return false
	}
	return true
}

// writeResolveError maps pipeline errors to status codes.
func (s *Server) writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		s.writeErrorResponse(w, "Resolution timed out", http.StatusGatewayTimeout)
	case errors.Is(err, context.Canceled):
		s.writeErrorResponse(w, "Request cancelled", http.StatusServiceUnavailable)
	case errors.Is(err, pipeline.ErrNilPipeline):
		s.writeErrorResponse(w, "Pipeline not initialized", http.StatusServiceUnavailable)
	default:
		s.logger.Error("Resolution failed", "error", err)
		s.writeErrorResponse(w, fmt.Sprintf("Resolution failed: %v", err), http.StatusInternalServerError)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, ResolveResponse{
		Success:   false,
		RequestID: w.Header().Get(requestIDHeader),
		Error:     message,
	})
}
