// Package scan reads QR codes from photos and live camera frames.
package scan

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"golang.org/x/image/webp"

	"github.com/harrylevesque/invitedeliver/internal/utils"
)

var (
	// ErrNoCode means the image held no readable QR code. It is informational:
	// the user can retry with another image.
	ErrNoCode = utils.New(utils.DecodeEmpty, "no QR code found")
	// ErrBadImage means the bytes could not be decoded as an image.
	ErrBadImage = errors.New("failed to load image")
)

// Reader decodes QR codes from still images. It is safe for concurrent use.
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

// DecodeImage returns the text of the first QR code found in img.
func (r *Reader) DecodeImage(img image.Image) (string, error) {
	if img == nil || img.Bounds().Empty() {
		return "", ErrNoCode
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("binarize image: %w", err)
	}
	res, err := qrcode.NewQRCodeReader().Decode(bmp, r.hints)
	if err != nil {
		var rerr gozxing.ReaderException
		if errors.As(err, &rerr) {
			return "", ErrNoCode
		}
		return "", fmt.Errorf("decode qr: %w", err)
	}
	if res.GetText() == "" {
		return "", ErrNoCode
	}
	return res.GetText(), nil
}

// MaxPixelDimension bounds each side of a raw pixel buffer.
const MaxPixelDimension = 1 << 14

// DecodePixels decodes a width x height buffer of RGBA bytes, row-major, as
// browsers hand them out: straight (non-premultiplied) alpha.
func (r *Reader) DecodePixels(width, height int, rgba []byte) (string, error) {
	img, err := pixelImage(width, height, rgba)
	if err != nil {
		return "", err
	}
	return r.DecodeImage(img)
}

func pixelImage(width, height int, rgba []byte) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", width, height)
	}
	if width > MaxPixelDimension || height > MaxPixelDimension {
		return nil, fmt.Errorf("dimensions %dx%d exceed %d", width, height, MaxPixelDimension)
	}
	if want := width * height * 4; len(rgba) != want {
		return nil, fmt.Errorf("pixel buffer is %d bytes, want %d", len(rgba), want)
	}
	return &image.NRGBA{
		Pix:    rgba,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}

// DecodeFile decodes a PNG, JPEG, GIF or WebP image read from src.
func (r *Reader) DecodeFile(src io.Reader) (string, error) {
	img, err := DecodePhoto(src)
	if err != nil {
		return "", err
	}
	return r.DecodeImage(img)
}

// DecodePhoto turns encoded image bytes into an image.
func DecodePhoto(src io.Reader) (image.Image, error) {
	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		if decoded, webpErr := webp.Decode(bytes.NewReader(raw)); webpErr == nil {
			return decoded, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	return img, nil
}
