package deliver

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/draw"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/invitedeliver/internal/scan"
	"github.com/harrylevesque/invitedeliver/internal/status"
)

const deckURL = "http://deck.local:6464/join?code=LAN-TEST"

func qrImage(t *testing.T, text string) image.Image {
	t.Helper()
	matrix, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, 240, 240, nil)
	require.NoError(t, err)
	rgba := image.NewRGBA(matrix.Bounds())
	draw.Draw(rgba, rgba.Bounds(), matrix, image.Point{}, draw.Src)
	return rgba
}

func pngOf(t *testing.T, img image.Image) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return bytes.NewReader(buf.Bytes())
}

func blank() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	return img
}

type stubStream struct {
	mu     sync.Mutex
	frames []image.Image
	closed chan struct{}
	once   sync.Once
	closes atomic.Int32
}

func newStubStream(frames ...image.Image) *stubStream {
	return &stubStream{frames: frames, closed: make(chan struct{})}
}

func (s *stubStream) NextFrame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	if len(s.frames) > 0 {
		f := s.frames[0]
		s.frames = s.frames[1:]
		s.mu.Unlock()
		return f, nil
	}
	s.mu.Unlock()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, errors.New("closed")
	}
}

func (s *stubStream) Close() error {
	s.closes.Add(1)
	s.once.Do(func() { close(s.closed) })
	return nil
}

type stubClipboard struct {
	text string
	err  error
}

func (c *stubClipboard) WriteText(text string) error {
	if c.err != nil {
		return c.err
	}
	c.text = text
	return nil
}

type recordingNavigator struct {
	urls []string
	err  error
}

func (n *recordingNavigator) Navigate(_ context.Context, url string) error {
	if n.err != nil {
		return n.err
	}
	n.urls = append(n.urls, url)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 5*time.Millisecond)
}

func TestLoadFromLocation(t *testing.T) {
	c := New(Options{})
	assert.True(t, c.LoadFromLocation("https://invite.example.com/#ek=ek=XYZ"))
	assert.Equal(t, "XYZ", c.Token())
	require.Len(t, c.Board().Entries(), 1)

	assert.False(t, c.LoadFromLocation("https://invite.example.com/"))
	assert.Equal(t, "XYZ", c.Token())
}

func TestCopyToken(t *testing.T) {
	clip := &stubClipboard{}
	c := New(Options{Clipboard: clip})

	c.CopyToken()
	assert.Equal(t, status.Status{Message: "Nothing to copy.", Severity: status.Warn}, c.Board().Current())

	c.SetToken("  abc123 ")
	c.CopyToken()
	assert.Equal(t, "abc123", clip.text)
	assert.Equal(t, status.OK, c.Board().Current().Severity)

	clip.err = ErrClipboardUnavailable
	c.CopyToken()
	assert.Equal(t, status.Warn, c.Board().Current().Severity)
}

func TestClearAndManual(t *testing.T) {
	c := New(Options{})
	c.SetToken("abc")
	c.ClearToken()
	assert.Empty(t, c.Token())
	assert.Equal(t, "Cleared.", c.Board().Current().Message)

	c.FocusManual()
	assert.Equal(t, status.Status{Message: ManualHint, Severity: status.Neutral}, c.Board().Current())
}

func TestDeliver(t *testing.T) {
	nav := &recordingNavigator{}
	c := New(Options{Navigator: nav})
	c.SetDeviceURL(deckURL)
	c.SetToken("ek=abc123")

	got, ok := c.Deliver(context.Background())
	require.True(t, ok)
	assert.Equal(t, "http://deck.local:6464/join?code=LAN-TEST&ek=abc123", got)
	assert.Equal(t, []string{got}, nav.urls)
	assert.Equal(t, status.OK, c.Board().Current().Severity)

	entries := c.Board().Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, "Navigating to device: "+got, entries[len(entries)-1].Line)
}

func TestDeliverInputErrors(t *testing.T) {
	tests := []struct {
		name    string
		device  string
		token   string
		wantSev status.Severity
		wantMsg string
	}{
		{"missing device", "", "abc", status.Warn, "Missing device URL. Scan QR or paste it."},
		{"missing token", deckURL, "  ", status.Warn, "Missing invite. Paste ek=... or include #ek= in this page URL."},
		{"invalid url", "not a url", "abc", status.Err, "Invalid device URL: missing scheme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nav := &recordingNavigator{}
			c := New(Options{Navigator: nav})
			c.SetDeviceURL(tt.device)
			c.SetToken(tt.token)

			got, ok := c.Deliver(context.Background())
			assert.False(t, ok)
			assert.Empty(t, got)
			assert.Empty(t, nav.urls, "no navigation on input errors")
			assert.Equal(t, status.Status{Message: tt.wantMsg, Severity: tt.wantSev}, c.Board().Current())
			assert.Empty(t, c.Board().Entries())
		})
	}
}

func TestDeliverNavigationFailure(t *testing.T) {
	nav := &recordingNavigator{err: errors.New("xdg-open not found")}
	c := New(Options{Navigator: nav})
	c.SetDeviceURL(deckURL)
	c.SetToken("abc")

	got, ok := c.Deliver(context.Background())
	assert.False(t, ok)
	assert.NotEmpty(t, got)
	assert.Equal(t, status.Err, c.Board().Current().Severity)
}

func TestScanPhoto(t *testing.T) {
	c := New(Options{})

	assert.True(t, c.ScanPhoto(context.Background(), pngOf(t, qrImage(t, deckURL))))
	assert.Equal(t, deckURL, c.DeviceURL())
	assert.Equal(t, status.OK, c.Board().Current().Severity)

	assert.False(t, c.ScanPhoto(context.Background(), pngOf(t, blank())))
	assert.Equal(t, status.Status{Message: "No QR found in photo. Try again.", Severity: status.Warn}, c.Board().Current())
	assert.Equal(t, deckURL, c.DeviceURL(), "a failed scan keeps the previous URL")

	assert.False(t, c.ScanPhoto(context.Background(), bytes.NewReader([]byte("nope"))))
	assert.Equal(t, status.Err, c.Board().Current().Severity)
}

func TestLiveScanDecodes(t *testing.T) {
	stream := newStubStream(blank(), qrImage(t, deckURL))
	cam := scan.CameraFunc(func(context.Context) (scan.Stream, error) { return stream, nil })
	c := New(Options{Camera: cam})

	s := c.StartLiveScan(context.Background())
	require.NotNil(t, s)

	waitFor(t, func() bool { return c.DeviceURL() == deckURL })
	<-s.Done()
	assert.Equal(t, scan.Decoded, s.State())
	assert.Equal(t, int32(1), stream.closes.Load())

	c.StopLiveScan()
	c.Close()
	assert.Equal(t, int32(1), stream.closes.Load())
	assert.Equal(t, status.OK, c.Board().Current().Severity)
}

func TestLiveScanDenied(t *testing.T) {
	cam := scan.CameraFunc(func(context.Context) (scan.Stream, error) {
		return nil, errors.New("NotAllowedError")
	})
	c := New(Options{Camera: cam})

	assert.Nil(t, c.StartLiveScan(context.Background()))
	assert.Equal(t, status.Status{Message: "Live scan failed. Use Photo Scan instead.", Severity: status.Warn}, c.Board().Current())

	// Nothing is left to release.
	assert.NotPanics(t, c.StopLiveScan)
}

func TestLiveScanWithoutCamera(t *testing.T) {
	c := New(Options{})
	assert.Nil(t, c.StartLiveScan(context.Background()))
	assert.Equal(t, status.Warn, c.Board().Current().Severity)
}

func TestRestartReleasesPreviousStream(t *testing.T) {
	first := newStubStream()
	second := newStubStream()
	streams := []*stubStream{first, second}
	var n atomic.Int32
	cam := scan.CameraFunc(func(context.Context) (scan.Stream, error) {
		return streams[n.Add(1)-1], nil
	})
	c := New(Options{Camera: cam})

	s1 := c.StartLiveScan(context.Background())
	require.NotNil(t, s1)
	s2 := c.StartLiveScan(context.Background())
	require.NotNil(t, s2)

	<-s1.Done()
	assert.Equal(t, scan.Cancelled, s1.State())
	assert.Equal(t, int32(1), first.closes.Load())
	assert.Equal(t, int32(0), second.closes.Load())

	c.Close()
	<-s2.Done()
	assert.Equal(t, int32(1), second.closes.Load())
	// A cancelled scan is not a failure.
	assert.NotEqual(t, status.Warn, c.Board().Current().Severity)
}

func TestPhotoScanStopsLiveScan(t *testing.T) {
	stream := newStubStream()
	cam := scan.CameraFunc(func(context.Context) (scan.Stream, error) { return stream, nil })
	c := New(Options{Camera: cam})

	s := c.StartLiveScan(context.Background())
	require.NotNil(t, s)

	require.True(t, c.ScanPhoto(context.Background(), pngOf(t, qrImage(t, deckURL))))
	<-s.Done()
	assert.Equal(t, scan.Cancelled, s.State())
	assert.Equal(t, int32(1), stream.closes.Load())
}
