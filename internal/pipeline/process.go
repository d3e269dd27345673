package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MeKo-Tech/labelscan/internal/barcode"
	"github.com/MeKo-Tech/labelscan/internal/catalog"
	"github.com/MeKo-Tech/labelscan/internal/extract"
	"github.com/MeKo-Tech/labelscan/internal/normalize"
	"github.com/MeKo-Tech/labelscan/internal/resolve"
	"github.com/MeKo-Tech/labelscan/internal/structured"
	"github.com/MeKo-Tech/labelscan/internal/utils"
)

// ErrNilPipeline is returned when a method is called on a nil pipeline.
var ErrNilPipeline = errors.New("pipeline not initialized")

// ResolveCapture resolves one image. When a barcode backend is configured the
// capture is first searched for a structured code; OCR runs only when that
// code is missing or does not match a catalog id exactly. Errors are returned
// for a nil image or cancellation only; every other problem is in the Outcome.
func (p *Pipeline) ResolveCapture(ctx context.Context, c Capture, snap catalog.Snapshot) (Outcome, error) {
	if p == nil {
		return Outcome{}, ErrNilPipeline
	}
	return p.Resolve(ctx, Request{Capture: &c}, snap)
}

// decodeCapture returns the structured code found on c, or "" when there is
// none or no barcode backend is configured.
func (p *Pipeline) decodeCapture(ctx context.Context, c Capture) (string, error) {
	if !p.cfg.DecodeBarcodes || p.barcodes == nil {
		return "", nil
	}
	payload, err := barcode.DecodePayload(ctx, p.barcodes, c.Image, p.cfg.Barcode)
	switch {
	case err == nil:
		return payload, nil
	case ctx.Err() != nil:
		return "", ctx.Err()
	default:
		p.logger.Debug("no structured code on capture", "source", c.Source, "error", err)
		return "", nil
	}
}

// ResolvePayload resolves a decoded structured code. OCR is never invoked.
func (p *Pipeline) ResolvePayload(payload string, snap catalog.Snapshot) Outcome {
	if p == nil {
		return Outcome{Result: resolve.Unresolved{}, Problem: RecognitionUnavailable}
	}
	start := time.Now()
	o := p.resolvePayload(payload, snap)
	observe("payload", o, start)
	return o
}

// ResolveText resolves text that was recognized elsewhere.
func (p *Pipeline) ResolveText(text string, snap catalog.Snapshot) Outcome {
	if p == nil {
		return Outcome{Result: resolve.Unresolved{}, Problem: RecognitionUnavailable}
	}
	start := time.Now()
	o := p.resolveText(text, snap, nil)
	observe("text", o, start)
	return o
}

// Resolve handles a combined request. A capture without a client-supplied
// payload is searched for a barcode first, as in ResolveCapture. The payload
// is resolved first and returned when it matches exactly or nothing else was
// supplied; otherwise the capture (or text) is resolved with the payload's
// codes and fields folded in.
func (p *Pipeline) Resolve(ctx context.Context, req Request, snap catalog.Snapshot) (Outcome, error) {
	if p == nil {
		return Outcome{}, ErrNilPipeline
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if req.Capture != nil && req.Capture.Image == nil {
		return Outcome{}, &utils.ImageProcessingError{Operation: "resolve capture", Err: utils.ErrNilImage}
	}
	start := time.Now()

	if req.Capture != nil && strings.TrimSpace(req.Payload) == "" {
		payload, err := p.decodeCapture(ctx, *req.Capture)
		if err != nil {
			return Outcome{}, err
		}
		req.Payload = payload
	}

	var payload *structured.Payload
	if strings.TrimSpace(req.Payload) != "" {
		o := p.resolvePayload(req.Payload, snap)
		if _, exact := o.Result.(resolve.Exact); exact || (req.Capture == nil && req.Text == "") {
			observe("payload", o, start)
			return o, nil
		}
		payload = o.Structured
	}

	switch {
	case req.Capture != nil:
		o, err := p.resolveImage(ctx, *req.Capture, snap, payload)
		if err != nil {
			return Outcome{}, err
		}
		observe(string(sourceOrDefault(req.Capture.Source)), o, start)
		return o, nil
	case req.Text != "":
		o := p.resolveText(req.Text, snap, payload)
		observe("text", o, start)
		return o, nil
	default:
		o := p.finish(resolve.Input{}, snap, payload, outcomeState{})
		observe("empty", o, start)
		return o, nil
	}
}

func (p *Pipeline) resolvePayload(raw string, snap catalog.Snapshot) Outcome {
	sp := structured.Decode(raw)
	if sp.IsEmpty() {
		return p.finish(resolve.Input{}, snap, nil, outcomeState{})
	}
	p.logger.Debug("decoded structured code", "kind", sp.Kind, "id", sp.ID, "code", sp.Code)
	in := resolve.Input{Codes: payloadCodes(sp), Text: sp.Name, Fields: sp.Fields()}
	return p.finish(in, snap, &sp, outcomeState{text: sp.Name})
}

func (p *Pipeline) resolveText(text string, snap catalog.Snapshot, sp *structured.Payload) Outcome {
	fields := extract.Extract(text)
	in := withPayload(resolve.FromFields(text, fields), sp)
	return p.finish(in, snap, sp, outcomeState{text: text})
}

func (p *Pipeline) resolveImage(ctx context.Context, c Capture, snap catalog.Snapshot, sp *structured.Payload) (Outcome, error) {
	if p.recognizer == nil {
		p.logger.Warn("no recognizer configured", "source", c.Source)
		return p.finish(withPayload(resolve.Input{}, sp), snap, sp, outcomeState{attempted: true}), nil
	}

	ro, err := Run(ctx, CaptureStrategies(c.Image, p.recognizer), extract.Extract, p.cfg.Retry, p.logger)
	for _, a := range ro.Attempts {
		recordAttempt(a)
	}
	if err != nil {
		return Outcome{}, err
	}

	st := outcomeState{attempted: true, recognized: ro.Recognized, attempts: ro.Attempts}
	in := withPayload(resolve.Input{}, sp)
	if ro.Recognized {
		best := ro.Best
		st.attempt = &best
		st.text = best.RawText
		in = withPayload(resolve.FromFields(best.RawText, ro.Fields), sp)
	}
	return p.finish(in, snap, sp, st), nil
}

type outcomeState struct {
	text       string
	attempted  bool
	recognized bool
	attempt    *Attempt
	attempts   []Attempt
}

// finish resolves in and fills the derived parts of the outcome.
func (p *Pipeline) finish(in resolve.Input, snap catalog.Snapshot, sp *structured.Payload, st outcomeState) Outcome {
	result := resolve.Resolve(in, snap, p.cfg.Resolver)
	o := Outcome{
		Result:     result,
		Extracted:  in.Fields,
		Fields:     normalize.FromExtracted(in.Fields),
		Attempt:    st.attempt,
		Attempts:   st.attempts,
		Structured: sp,
	}
	if u, ok := result.(resolve.Unresolved); ok {
		proposal := resolve.Propose(u, snap, preferredID(sp))
		o.Proposal = &proposal
	}
	o.Problem = p.classify(o, st)

	if e, ok := resolve.EntityOf(result); ok {
		p.logger.Debug("label resolved", "kind", result.Kind().String(), "id", e.ID, "batch", o.Fields.BatchCode)
	} else {
		p.logger.Debug("label not resolved", "kind", result.Kind().String(), "problem", o.Problem)
	}
	return o
}

func (p *Pipeline) classify(o Outcome, st outcomeState) ErrorKind {
	if resolve.IsResolved(o.Result) {
		return ProblemNone
	}
	if _, ok := o.Result.(resolve.Ambiguous); ok {
		return AmbiguousMatch
	}
	hasPayload := o.Structured != nil && !o.Structured.IsEmpty()
	if st.attempted && !st.recognized && !hasPayload {
		return RecognitionUnavailable
	}
	if strings.TrimSpace(st.text) == "" && !hasPayload {
		return NoTextDetected
	}
	if st.attempt != nil && st.attempt.Confidence < p.cfg.Retry.LowConfidence && !o.Extracted.HasAny() {
		return LowConfidence
	}
	return UnknownProduct
}

// preferredID is the id a payload asks new products to be created under: its
// explicit id, or a bare code that already follows the PROD- scheme.
func preferredID(sp *structured.Payload) string {
	if sp == nil {
		return ""
	}
	if sp.ID != "" {
		return sp.ID
	}
	if resolve.IsProposedID(sp.Code) {
		return strings.ToUpper(strings.TrimSpace(sp.Code))
	}
	return ""
}

// payloadCodes expands every code a payload carries into its comparison forms.
func payloadCodes(sp structured.Payload) []string {
	var codes []string
	seen := map[string]struct{}{}
	for _, c := range sp.Codes() {
		for _, f := range resolve.CodeForms(c) {
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			codes = append(codes, f)
		}
	}
	return codes
}

// withPayload puts the payload's codes ahead of in's and fills fields the
// recognized text did not supply.
func withPayload(in resolve.Input, sp *structured.Payload) resolve.Input {
	if sp == nil {
		return in
	}
	in.Codes = append(payloadCodes(*sp), in.Codes...)
	pf := sp.Fields()
	if pf.BatchCode != "" {
		in.Fields.BatchCode = pf.BatchCode
	}
	if pf.ExpiryDate != "" {
		in.Fields.ExpiryDate = pf.ExpiryDate
	}
	if pf.NameGuess != "" && in.Fields.NameGuess == "" {
		in.Fields.NameGuess = pf.NameGuess
	}
	if sp.Name != "" {
		in.Text = strings.TrimSpace(sp.Name + " " + in.Text)
	}
	return in
}

func sourceOrDefault(s Source) Source {
	if s == "" {
		return SourceUpload
	}
	return s
}
