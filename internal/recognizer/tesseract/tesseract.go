//go:build tesseract

package tesseract

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/MeKo-Tech/labelscan/internal/recognizer"
	"github.com/MeKo-Tech/labelscan/internal/utils"
)

// Engine runs Tesseract through a fresh gosseract client per call.
type Engine struct {
	opts          Options
	clientFactory func() *gosseract.Client
}

// New returns a Tesseract-backed engine.
func New(opts Options) (*Engine, error) {
	return &Engine{opts: opts, clientFactory: gosseract.NewClient}, nil
}

// Name implements recognizer.Recognizer.
func (e *Engine) Name() string { return Name }

// Recognize implements recognizer.Recognizer. Confidence is the mean word
// confidence reported by Tesseract.
func (e *Engine) Recognize(ctx context.Context, img image.Image) (recognizer.Recognition, error) {
	if err := ctx.Err(); err != nil {
		return recognizer.Recognition{}, err
	}
	data, err := utils.EncodePNG(img)
	if err != nil {
		return recognizer.Recognition{}, err
	}

	c := e.clientFactory()
	defer func() { _ = c.Close() }()

	if err := c.SetImageFromBytes(data); err != nil {
		return recognizer.Recognition{}, recognizer.Unavailable(Name, fmt.Errorf("set image: %w", err))
	}
	if len(e.opts.Languages) > 0 {
		if err := c.SetLanguage(e.opts.Languages...); err != nil {
			return recognizer.Recognition{}, recognizer.Unavailable(Name, fmt.Errorf("set languages: %w", err))
		}
	}
	if e.opts.Whitelist != "" {
		if err := c.SetWhitelist(e.opts.Whitelist); err != nil {
			return recognizer.Recognition{}, recognizer.Unavailable(Name, fmt.Errorf("set whitelist: %w", err))
		}
	}
	if e.opts.PageSegMode > 0 {
		if err := c.SetVariable("tessedit_pageseg_mode", strconv.Itoa(e.opts.PageSegMode)); err != nil {
			return recognizer.Recognition{}, recognizer.Unavailable(Name, fmt.Errorf("set page segmentation: %w", err))
		}
	}

	text, err := c.Text()
	if err != nil {
		return recognizer.Recognition{}, recognizer.Unavailable(Name, fmt.Errorf("recognize text: %w", err))
	}

	return recognizer.Recognition{
		Text:       strings.TrimSpace(text),
		Confidence: recognizer.ClampConfidence(meanWordConfidence(c)),
	}, nil
}

func meanWordConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes))
}
