// Package qrcode adapts gozxing to the CodeReader port.
package qrcode

import (
	"errors"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/rl1809/stockroom/internal/logging"
)

// Reader decodes QR symbols. gozxing readers carry decoder state, so each
// call builds its own and Reader is safe for concurrent use.
type Reader struct {
	hints map[gozxing.DecodeHintType]interface{}
}

func NewReader() *Reader {
	return &Reader{
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

func (r *Reader) Read(img image.Image) (string, bool) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		logging.Debug().Err(err).Msg("qrcode: bitmap conversion failed")
		return "", false
	}

	result, err := qrcode.NewQRCodeReader().Decode(bmp, r.hints)
	if err != nil {
		var notFound gozxing.NotFoundException
		if !errors.As(err, &notFound) {
			logging.Debug().Err(err).Msg("qrcode: decode failed")
		}
		return "", false
	}

	text := result.GetText()
	return text, text != ""
}
