package qrcode

import (
	"image"
	"image/color"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, text string) image.Image {
	t.Helper()
	matrix, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, 240, 240, nil)
	require.NoError(t, err)
	return matrix
}

func TestRead_EncodedSymbol(t *testing.T) {
	r := NewReader()

	code, ok := r.Read(encode(t, "SKU-12345"))
	require.True(t, ok)
	assert.Equal(t, "SKU-12345", code)
}

func TestRead_BlankImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 120, 120))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetGray(10, 10, color.Gray{Y: 0})

	code, ok := NewReader().Read(img)
	assert.False(t, ok)
	assert.Empty(t, code)
}

func TestRead_ReusedAcrossCalls(t *testing.T) {
	r := NewReader()
	for _, text := range []string{"A-1", "B-2", "C-3"} {
		code, ok := r.Read(encode(t, text))
		require.True(t, ok)
		assert.Equal(t, text, code)
	}
}
