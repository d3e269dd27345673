package scan

import (
	"context"
	"fmt"

	"github.com/MeKo-Tech/labelscan/internal/catalog"
	"github.com/MeKo-Tech/labelscan/internal/pipeline"
)

// Resolver is the part of a pipeline a scan handler needs.
type Resolver interface {
	Resolve(ctx context.Context, req pipeline.Request, snap catalog.Snapshot) (pipeline.Outcome, error)
	ResolveCapture(ctx context.Context, c pipeline.Capture, snap catalog.Snapshot) (pipeline.Outcome, error)
}

// PipelineHandler resolves each frame with p against snap. A frame's payload
// is tried before its image.
func PipelineHandler(p *pipeline.Pipeline, snap catalog.Snapshot, source pipeline.Source) Handler {
	return func(ctx context.Context, f Frame) (pipeline.Outcome, error) {
		req := pipeline.Request{Payload: f.Payload}
		if f.Image != nil {
			req.Capture = &pipeline.Capture{Image: f.Image, Source: source}
		}
		return p.Resolve(ctx, req, snap)
	}
}

// CatalogHandler takes a fresh snapshot from src for every frame, so catalog
// edits apply to a running session. Frames with only an image are searched
// for a structured code before OCR.
func CatalogHandler(r Resolver, src catalog.Source, source pipeline.Source) Handler {
	return func(ctx context.Context, f Frame) (pipeline.Outcome, error) {
		snap, err := src.Snapshot(ctx)
		if err != nil {
			return pipeline.Outcome{}, fmt.Errorf("load catalog: %w", err)
		}
		if f.Payload == "" && f.Image != nil {
			return r.ResolveCapture(ctx, pipeline.Capture{Image: f.Image, Source: source}, snap)
		}
		req := pipeline.Request{Payload: f.Payload}
		if f.Image != nil {
			req.Capture = &pipeline.Capture{Image: f.Image, Source: source}
		}
		return r.Resolve(ctx, req, snap)
	}
}
