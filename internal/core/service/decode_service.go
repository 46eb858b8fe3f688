package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/logging"
	"github.com/rl1809/stockroom/internal/metrics"
	"github.com/rl1809/stockroom/internal/port"
)

const (
	StageOriginal  = "original"
	StageGrayscale = "grayscale"
	StageOtsu      = "otsu"
	StageBinary    = "binary"

	// DefaultMaxPixels bounds the decoded canvas. Every stage holds a full
	// size copy, so compressed size alone does not bound memory.
	DefaultMaxPixels = 40_000_000
)

// Stage prepares a copy of the source image for one decode attempt.
type Stage struct {
	Name    string
	Prepare func(image.Image) image.Image
}

// DefaultStages trades preprocessing cost for tolerance to lighting, cheapest first.
func DefaultStages() []Stage {
	return []Stage{
		{Name: StageOriginal, Prepare: func(img image.Image) image.Image { return img }},
		{Name: StageGrayscale, Prepare: grayscale},
		{Name: StageOtsu, Prepare: otsuBinarize},
		{Name: StageBinary, Prepare: fixedBinarize},
	}
}

// DecodePipeline runs a reader over a fixed chain of preprocessing stages and
// returns the first non-empty result. It holds no per-request state.
type DecodePipeline struct {
	reader    port.CodeReader
	maxPixels int
	stages    []Stage
}

// NewDecodePipeline builds a pipeline rejecting images above maxPixels
// (DefaultMaxPixels when non-positive). No stages means DefaultStages.
func NewDecodePipeline(reader port.CodeReader, maxPixels int, stages ...Stage) *DecodePipeline {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if len(stages) == 0 {
		stages = DefaultStages()
	}
	return &DecodePipeline{reader: reader, maxPixels: maxPixels, stages: stages}
}

// Decode returns domain.ErrDecodeFormat for bytes that are not an image, a
// ValidationError for oversized canvases and domain.ErrCodeNotFound when
// every stage came up empty. Dimensions are checked before pixels are decoded.
func (p *DecodePipeline) Decode(ctx context.Context, data []byte) (domain.DecodeResult, error) {
	if len(data) == 0 {
		return domain.DecodeResult{}, domain.ValidationError{Field: "image", Message: "is empty"}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		metrics.DecodeFailures.WithLabelValues("format").Inc()
		return domain.DecodeResult{}, fmt.Errorf("%w: %v", domain.ErrDecodeFormat, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(p.maxPixels) {
		metrics.DecodeFailures.WithLabelValues("too_large").Inc()
		return domain.DecodeResult{}, domain.ValidationError{
			Field:   "image",
			Message: fmt.Sprintf("%dx%d exceeds %d pixels", cfg.Width, cfg.Height, p.maxPixels),
		}
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		metrics.DecodeFailures.WithLabelValues("format").Inc()
		return domain.DecodeResult{}, fmt.Errorf("%w: %v", domain.ErrDecodeFormat, err)
	}

	log := logging.Ctx(ctx)
	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return domain.DecodeResult{}, err
		}

		code, ok := p.reader.Read(stage.Prepare(src))
		if ok && code != "" {
			metrics.DecodeAttempts.WithLabelValues(stage.Name, "hit").Inc()
			log.Info().Str("stage", stage.Name).Str("format", format).Str("code", code).Msg("code detected")
			return domain.DecodeResult{Code: code, Stage: stage.Name}, nil
		}
		metrics.DecodeAttempts.WithLabelValues(stage.Name, "miss").Inc()
		log.Debug().Str("stage", stage.Name).Msg("no code at stage")
	}

	metrics.DecodeFailures.WithLabelValues("not_found").Inc()
	log.Warn().Str("format", format).Msg("no code detected after all stages")
	return domain.DecodeResult{}, domain.ErrCodeNotFound
}
