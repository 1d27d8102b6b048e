package checkout

import (
	"bytes"
	"image"
	"image/draw"
	"image/png"
	"strings"

	"github.com/go-errors/errors"
	"github.com/skip2/go-qrcode"
)

const (
	// qrModuleSize is the edge length of a single QR module in pixels
	qrModuleSize = 8
	// qrBorder is the quiet zone around the code in modules
	qrBorder = 2
)

var pngEncoder = &png.Encoder{CompressionLevel: png.BestCompression}

// RenderCode encodes a payment request as a PNG QR code. The payment request
// is upper-cased first, bech32 strings are case insensitive and the upper
// case form fits the denser alphanumeric QR mode. The output only depends on
// the input.
func RenderCode(paymentRequest string) ([]byte, error) {
	if paymentRequest == "" {
		return nil, errors.New("empty payment request")
	}

	code, err := qrcode.New(strings.ToUpper(paymentRequest), qrcode.Medium)
	if err != nil {
		return nil, errors.Errorf("Could not encode QR code: %v", err)
	}

	code.DisableBorder = true
	symbol := code.Image(-qrModuleSize)

	pad := qrBorder * qrModuleSize
	bounds := symbol.Bounds()
	canvas := image.NewGray(image.Rect(0, 0, bounds.Dx()+2*pad, bounds.Dy()+2*pad))

	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(canvas, bounds.Add(image.Pt(pad, pad)).Sub(bounds.Min), symbol, bounds.Min, draw.Src)

	var buf bytes.Buffer
	if err := pngEncoder.Encode(&buf, canvas); err != nil {
		return nil, errors.Errorf("Could not encode PNG: %v", err)
	}

	return buf.Bytes(), nil
}
