package scan

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/require"
)

const deckURL = "http://deck.local:6464/join?code=LAN-TEST"

// qrImage renders text as a QR code with a quiet zone.
func qrImage(t *testing.T, text string) *image.RGBA {
	t.Helper()
	matrix, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, 240, 240, nil)
	require.NoError(t, err)
	rgba := image.NewRGBA(matrix.Bounds())
	draw.Draw(rgba, rgba.Bounds(), matrix, image.Point{}, draw.Src)
	return rgba
}

func blankImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 120, 120))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

// fakeStream plays back frames, then blocks until closed or cancelled.
type fakeStream struct {
	mu     sync.Mutex
	frames []image.Image
	closed chan struct{}
	closes atomic.Int32
	once   sync.Once
}

func newFakeStream(frames ...image.Image) *fakeStream {
	return &fakeStream{frames: frames, closed: make(chan struct{})}
}

func (f *fakeStream) NextFrame(ctx context.Context) (image.Image, error) {
	f.mu.Lock()
	if len(f.frames) > 0 {
		img := f.frames[0]
		f.frames = f.frames[1:]
		f.mu.Unlock()
		return img, nil
	}
	f.mu.Unlock()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.closed:
		return nil, errors.New("stream closed")
	}
}

func (f *fakeStream) Close() error {
	f.closes.Add(1)
	f.once.Do(func() { close(f.closed) })
	return nil
}

type fakeCamera struct {
	stream *fakeStream
	err    error
	opens  atomic.Int32
}

func (c *fakeCamera) Open(ctx context.Context) (Stream, error) {
	c.opens.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.stream, nil
}
