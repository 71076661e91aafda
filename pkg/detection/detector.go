package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/menta2k/image-placer/pkg/client"
	"github.com/menta2k/image-placer/pkg/processing"
	"github.com/menta2k/image-placer/pkg/types"
)

// DefaultPrompt asks the model for the part of a picture that must survive
// cropping
const DefaultPrompt = `You locate the part of a picture that must stay visible when the picture is cropped to fit a banner.

Return JSON only:
{
  "subject": {
    "label": "string",
    "confidence": 0.0,
    "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}
  },
  "description": "short neutral sentence (max 20 words)",
  "tags": ["tag1", "tag2", "tag3"]
}

RULES
- Coordinates are normalized to [0,1] (NOT pixels), x/y is the top-left corner.
- The box must include every face, every piece of text and the main object.
- If nothing stands out return {"subject":{"label":"none","confidence":0.0,"box":{"x":0,"y":0,"w":1,"h":1}},"description":"generic scene","tags":["generic"]}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// fallbackBox is used when the model reply cannot be understood
var fallbackBox = types.Box{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}

// Config holds settings for model based detection
type Config struct {
	Model       string
	Prompt      string
	SendFormat  string
	SendSize    int
	SendQuality int
	// Padding grows the subject box before margins are computed
	Padding float64
	// MinConfidence below which the whole picture is treated as subject
	MinConfidence float64
}

// DefaultConfig returns detection defaults
func DefaultConfig() Config {
	return Config{
		Model:         "openbmb/minicpm-v4.5",
		Prompt:        DefaultPrompt,
		SendFormat:    "jpg",
		SendSize:      1024,
		SendQuality:   85,
		Padding:       0.05,
		MinConfidence: 0.2,
	}
}

// Estimator derives crop margins from a vision model's subject box
type Estimator struct {
	client    client.VisionClient
	processor *processing.Processor
	config    Config
	log       *zap.Logger
}

// NewEstimator creates an estimator on top of a vision client
func NewEstimator(c client.VisionClient, config Config, log *zap.Logger) *Estimator {
	if log == nil {
		log = zap.NewNop()
	}
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	return &Estimator{
		client:    c,
		processor: processing.NewProcessor(),
		config:    config,
		log:       log,
	}
}

// DetectSubject asks the model where the subject of img is
func (e *Estimator) DetectSubject(ctx context.Context, img image.Image) (*types.SubjectResult, error) {
	imgB64, err := e.processor.PrepareImageForModel(img, e.config.SendFormat, e.config.SendSize, e.config.SendQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image for model: %w", err)
	}

	reply, err := e.client.Complete(ctx, e.config.Model, e.config.Prompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("subject detection failed: %w", err)
	}

	result := ParseSubjectResult(reply)
	e.log.Debug("Subject detected",
		zap.String("label", result.Subject.Label),
		zap.Float64("confidence", result.Subject.Confidence),
		zap.Any("box", result.Subject.Box),
		zap.Strings("tags", result.Tags))
	return result, nil
}

// EstimateMargins returns the crop margins of img in its own pixels
func (e *Estimator) EstimateMargins(ctx context.Context, img image.Image) (types.Margins, error) {
	result, err := e.DetectSubject(ctx, img)
	if err != nil {
		return types.Margins{}, err
	}

	box := result.Subject.Box
	if strings.EqualFold(result.Subject.Label, "none") || result.Subject.Confidence < e.config.MinConfidence {
		box = types.Box{W: 1, H: 1}
	}
	b := img.Bounds()
	return types.MarginsFromBox(box.Grow(e.config.Padding), b.Dx(), b.Dy()), nil
}

// ParseSubjectResult turns a model reply into a result. Replies that are
// not JSON produce a low confidence centered box instead of an error.
func ParseSubjectResult(raw string) *types.SubjectResult {
	raw = sanitizeModelJSON(raw)

	var result types.SubjectResult
	if !strings.HasPrefix(raw, "{") || json.Unmarshal([]byte(raw), &result) != nil {
		return &types.SubjectResult{
			Subject: types.Subject{
				Label:      "unparsed",
				Confidence: 0,
				Box:        fallbackBox,
			},
			Description: "Model reply was not valid JSON",
			Tags:        []string{"fallback"},
		}
	}

	result.Subject.Box = normalizeBox(result.Subject.Box)
	if result.Subject.Box.W == 0 || result.Subject.Box.H == 0 {
		result.Subject.Box = fallbackBox
	}
	result.Tags = normalizeTags(result.Tags)
	return &result
}

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`(?m)(^|\s)//.*$`)
	reTrailing     = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// normalizeBox keeps the box inside [0,1]. Models sometimes answer in
// percent, those values are scaled down.
func normalizeBox(b types.Box) types.Box {
	if b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1 {
		b = types.Box{X: b.X / 100, Y: b.Y / 100, W: b.W / 100, H: b.H / 100}
	}
	x0, y0 := clamp(b.X, 0, 1), clamp(b.Y, 0, 1)
	x1, y1 := clamp(b.X+b.W, 0, 1), clamp(b.Y+b.H, 0, 1)
	return types.Box{X: x0, Y: y0, W: max(x1-x0, 0), H: max(y1-y0, 0)}
}

// normalizeTags ensures tags are cleaned and limited to 5 entries
func normalizeTags(tags []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 5)
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == 5 {
			break
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
