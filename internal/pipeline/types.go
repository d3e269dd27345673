package pipeline

import (
	"image"

	"github.com/MeKo-Tech/labelscan/internal/extract"
	"github.com/MeKo-Tech/labelscan/internal/normalize"
	"github.com/MeKo-Tech/labelscan/internal/resolve"
	"github.com/MeKo-Tech/labelscan/internal/structured"
)

// Source says where a capture came from. Camera frames and uploads are
// processed identically.
type Source string

const (
	SourceCamera Source = "camera"
	SourceUpload Source = "upload"
	SourcePDF    Source = "pdf"
)

// Capture is one raw image handed to the pipeline.
type Capture struct {
	Image  image.Image
	Source Source
}

// ErrorKind classifies why an outcome is not a clean resolution. It is carried
// in Outcome.Problem and never returned as a Go error.
type ErrorKind string

const (
	ProblemNone ErrorKind = ""
	// NoTextDetected means neither a structured code nor any recognized text was obtained.
	NoTextDetected ErrorKind = "no_text_detected"
	// LowConfidence means text was read below the confidence floor and no fields were found.
	LowConfidence ErrorKind = "low_confidence"
	// AmbiguousMatch means the resolver produced Ambiguous.
	AmbiguousMatch ErrorKind = "ambiguous_match"
	// UnknownProduct means nothing in the catalog matched; a proposal is attached.
	UnknownProduct ErrorKind = "unknown_product"
	// RecognitionUnavailable means every recognizer call failed.
	RecognitionUnavailable ErrorKind = "recognition_unavailable"
)

// Attempt records one recognition call.
type Attempt struct {
	VariantID  string  `json:"variant_id"`
	RawText    string  `json:"raw_text"`
	Confidence float64 `json:"confidence"`
	// Failed is set when the recognizer returned an error for this attempt.
	Failed bool   `json:"failed,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Outcome is everything one resolution produced, including partial data on
// failure.
type Outcome struct {
	Result     resolve.Result
	Fields     normalize.Fields
	Extracted  extract.Fields
	Attempt    *Attempt
	Attempts   []Attempt
	Structured *structured.Payload
	Problem    ErrorKind
	Proposal   *resolve.Proposal
}

// Request combines the inputs available for one label. Payload is tried
// first; the image is used when the payload is absent or does not resolve
// exactly.
type Request struct {
	Payload string
	Capture *Capture
	Text    string
}

// MixedBatchContext holds the two independent resolutions of a mixed pallet.
type MixedBatchContext struct {
	PalletID  string
	Primary   Outcome
	Secondary Outcome
}

// OutcomeView is the JSON form of an Outcome.
type OutcomeView struct {
	Result     resolve.View        `json:"result"`
	Fields     normalize.Fields    `json:"fields"`
	Extracted  extract.Fields      `json:"extracted"`
	Attempt    *Attempt            `json:"attempt,omitempty"`
	Attempts   []Attempt           `json:"attempts,omitempty"`
	Structured *structured.Payload `json:"structured,omitempty"`
	Problem    ErrorKind           `json:"problem,omitempty"`
	Proposal   *resolve.Proposal   `json:"proposal,omitempty"`
}

// View flattens o for serialization.
func (o Outcome) View() OutcomeView {
	return OutcomeView{
		Result:     resolve.ToView(o.Result),
		Fields:     o.Fields,
		Extracted:  o.Extracted,
		Attempt:    o.Attempt,
		Attempts:   o.Attempts,
		Structured: o.Structured,
		Problem:    o.Problem,
		Proposal:   o.Proposal,
	}
}

// MixedBatchView is the JSON form of a MixedBatchContext.
type MixedBatchView struct {
	PalletID  string      `json:"pallet_id"`
	Primary   OutcomeView `json:"primary"`
	Secondary OutcomeView `json:"secondary"`
}

// View flattens m for serialization.
func (m MixedBatchContext) View() MixedBatchView {
	return MixedBatchView{PalletID: m.PalletID, Primary: m.Primary.View(), Secondary: m.Secondary.View()}
}
