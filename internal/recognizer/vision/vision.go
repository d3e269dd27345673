// Package vision reads label text with an OpenAI-compatible multimodal chat
// model. It is meant as the fallback collaborator behind a local OCR engine.
package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/MeKo-Tech/labelscan/internal/recognizer"
	"github.com/MeKo-Tech/labelscan/internal/utils"
)

// Name identifies this backend in logs and metrics.
const Name = "vision"

// DefaultConfidence is reported when the model omits a confidence value.
const DefaultConfidence = 50

const systemPrompt = `You transcribe product labels. Reply with a JSON object ` +
	`{"text": "<all printed text, lines separated by newlines>", "confidence": <0-100>}. ` +
	`Transcribe exactly what is printed; do not correct or invent text. ` +
	`Use an empty string when no text is visible.`

// Config configures the client.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	// MaxSide downsizes images whose longer side exceeds it before upload.
	MaxSide int
}

// Recognizer calls a chat completion endpoint with the label image inline.
type Recognizer struct {
	client *openai.Client
	config Config
}

// New validates cfg and builds a client.
func New(cfg Config) (*Recognizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("vision: API key is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}
	if cfg.MaxSide == 0 {
		cfg.MaxSide = 1600
	}
	return &Recognizer{client: openai.NewClientWithConfig(clientConfig), config: cfg}, nil
}

// Name implements recognizer.Recognizer.
func (r *Recognizer) Name() string { return Name }

// Recognize implements recognizer.Recognizer.
func (r *Recognizer) Recognize(ctx context.Context, img image.Image) (recognizer.Recognition, error) {
	dataURL, err := r.encode(img)
	if err != nil {
		return recognizer.Recognition{}, err
	}

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.config.Model,
		MaxTokens:   r.config.MaxTokens,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: "Transcribe this label."},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL, Detail: openai.ImageURLDetailHigh},
					},
				},
			},
		},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return recognizer.Recognition{}, err
		}
		return recognizer.Recognition{}, recognizer.Unavailable(Name, err)
	}
	if len(resp.Choices) == 0 {
		return recognizer.Recognition{}, recognizer.Unavailable(Name, errors.New("empty response"))
	}

	return parseReply(resp.Choices[0].Message.Content), nil
}

func (r *Recognizer) encode(img image.Image) (string, error) {
	resized, err := utils.FitLongSide(img, r.config.MaxSide)
	if err != nil {
		return "", err
	}
	data, err := utils.EncodePNG(resized)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

type reply struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

// parseReply accepts the requested JSON object, optionally wrapped in a code
// fence. Anything else is taken as plain transcribed text.
func parseReply(content string) recognizer.Recognition {
	body := strings.TrimSpace(content)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)

	var rep reply
	if err := json.Unmarshal([]byte(body), &rep); err != nil {
		return recognizer.Recognition{Text: strings.TrimSpace(content), Confidence: DefaultConfidence}
	}
	conf := float64(DefaultConfidence)
	if rep.Confidence != nil {
		conf = *rep.Confidence
	}
	return recognizer.Recognition{Text: strings.TrimSpace(rep.Text), Confidence: recognizer.ClampConfidence(conf)}
}

// String describes the configured model for logs.
func (r *Recognizer) String() string {
	return fmt.Sprintf("%s(%s)", Name, r.config.Model)
}
