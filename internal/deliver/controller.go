// Package deliver drives the invite-delivery flow: it owns the invite token
// and the device URL, runs QR scans, and navigates to the composed URL.
// Every control reports its outcome on the status board instead of
// returning an error.
package deliver

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harrylevesque/invitedeliver/internal/invite"
	"github.com/harrylevesque/invitedeliver/internal/scan"
	"github.com/harrylevesque/invitedeliver/internal/status"
	"github.com/harrylevesque/invitedeliver/internal/utils"
)

// ManualHint is shown when the user chooses to type the device URL.
const ManualHint = "Paste device URL (e.g., http://deck.local:6464/join?code=LAN-TEST)."

type Options struct {
	Camera        scan.Camera
	Reader        *scan.Reader
	Clipboard     Clipboard
	Navigator     Navigator
	FrameInterval time.Duration
	Board         *status.Board
	Logger        *zap.Logger
}

type Controller struct {
	camera    scan.Camera
	reader    *scan.Reader
	clipboard Clipboard
	navigator Navigator
	interval  time.Duration
	board     *status.Board
	logger    *zap.Logger

	mu        sync.Mutex
	token     string
	deviceURL string
	session   *scan.Session
	// scanGen invalidates results from sessions that were replaced or stopped.
	scanGen uint64
}

func New(opts Options) *Controller {
	c := &Controller{
		camera:    opts.Camera,
		reader:    opts.Reader,
		clipboard: opts.Clipboard,
		navigator: opts.Navigator,
		interval:  opts.FrameInterval,
		board:     opts.Board,
		logger:    opts.Logger,
	}
	if c.reader == nil {
		c.reader = scan.NewReader()
	}
	if c.board == nil {
		c.board = status.NewBoard()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

func (c *Controller) Board() *status.Board { return c.board }

func (c *Controller) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SetToken stores a pasted or edited invite token as typed.
func (c *Controller) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Controller) DeviceURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceURL
}

func (c *Controller) SetDeviceURL(u string) {
	c.mu.Lock()
	c.deviceURL = u
	c.mu.Unlock()
}

// LoadFromLocation seeds the token from the page URL. A location without an
// invite leaves the token untouched.
func (c *Controller) LoadFromLocation(pageURL string) bool {
	token, ok := invite.FromLocation(pageURL)
	if !ok {
		return false
	}
	c.SetToken(token)
	c.board.Logf(MsgInviteLoaded)
	c.logger.Info("invite loaded from location", zap.String("token", utils.Redact(token)))
	return true
}

func (c *Controller) CopyToken() {
	v := strings.TrimSpace(c.Token())
	if v == "" {
		c.board.Set("Nothing to copy.", status.Warn)
		return
	}
	if c.clipboard == nil {
		c.board.Set("Copy failed. Select the invite and copy it manually.", status.Warn)
		return
	}
	if err := c.clipboard.WriteText(v); err != nil {
		c.logger.Warn("clipboard write failed", zap.Error(err))
		c.board.Set("Copy failed. Select the invite and copy it manually.", status.Warn)
		return
	}
	c.board.Set("Copied invite to clipboard.", status.OK)
}

func (c *Controller) ClearToken() {
	c.SetToken("")
	c.board.Set("Cleared.", status.Neutral)
}

// FocusManual prompts for a typed device URL.
func (c *Controller) FocusManual() {
	c.board.Set(ManualHint, status.Neutral)
}

// StartLiveScan opens the camera and decodes frames in the background. Any
// previous scan is stopped first. The returned session is nil when the
// camera could not be acquired.
func (c *Controller) StartLiveScan(ctx context.Context) *scan.Session {
	c.StopLiveScan()
	c.board.Set("Starting camera…", status.Neutral)

	if c.camera == nil {
		c.liveScanFailed(scan.ErrCameraUnavailable)
		return nil
	}

	c.mu.Lock()
	c.scanGen++
	gen := c.scanGen
	c.mu.Unlock()

	s, err := scan.StartSession(ctx, c.camera, scan.SessionConfig{
		Reader:    c.reader,
		Interval:  c.interval,
		Logger:    c.logger,
		OnDecoded: func(res scan.Result) { c.applyLiveResult(gen, res) },
	})
	if err != nil {
		c.liveScanFailed(err)
		return nil
	}

	c.mu.Lock()
	if c.scanGen != gen {
		// Stopped while the camera was being acquired.
		c.mu.Unlock()
		s.Stop()
		return nil
	}
	c.session = s
	// Under c.mu so a result that already arrived is not overwritten.
	if s.State() == scan.Scanning {
		c.board.Set("Point camera at the QR code…", status.Neutral)
	}
	c.mu.Unlock()

	go c.watch(gen, s)
	return s
}

func (c *Controller) watch(gen uint64, s *scan.Session) {
	<-s.Done()
	_, err := s.Result()

	c.mu.Lock()
	current := c.scanGen == gen
	if c.session == s {
		c.session = nil
	}
	c.mu.Unlock()

	if err != nil && current && !errors.Is(err, scan.ErrCancelled) {
		c.liveScanFailed(err)
	}
}

func (c *Controller) applyLiveResult(gen uint64, res scan.Result) {
	c.mu.Lock()
	if c.scanGen != gen {
		c.mu.Unlock()
		return
	}
	c.deviceURL = res.Text
	c.board.Set(MsgScanned, status.OK)
	c.board.Logf("QR (live) scanned: %s", res.Text)
	c.mu.Unlock()
}

func (c *Controller) liveScanFailed(err error) {
	c.logger.Warn("live scan failed", zap.Error(err))
	c.board.Set(MsgLiveFailed, status.Warn)
	c.board.Logf("Live scan error: %v", err)
}

// StopLiveScan releases the camera. Safe to call at any time, any number of times.
func (c *Controller) StopLiveScan() {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.scanGen++
	c.mu.Unlock()
	s.Stop()
}

// ScanPhoto decodes a QR code from an encoded image. A successful photo scan
// also ends any running live scan.
func (c *Controller) ScanPhoto(ctx context.Context, photo io.Reader) bool {
	img, err := scan.DecodePhoto(photo)
	if err != nil {
		c.logger.Warn("photo decode failed", zap.Error(err))
		c.board.Set(MsgBadImage, status.Err)
		return false
	}

	res, err := (&scan.StaticDecoder{Reader: c.reader, Image: img}).Decode(ctx)
	switch {
	case errors.Is(err, scan.ErrNoCode):
		c.board.Set(MsgNoCode, status.Warn)
		return false
	case err != nil:
		c.logger.Warn("photo scan failed", zap.Error(err))
		c.board.Set(MsgPhotoFailed, status.Err)
		return false
	}

	c.StopLiveScan()
	c.SetDeviceURL(res.Text)
	c.board.Set(MsgScanned, status.OK)
	c.board.Logf("QR (photo) scanned: %s", res.Text)
	return true
}

// Deliver composes the device URL and navigates to it. It returns the URL and
// whether navigation happened; input problems only change the status.
func (c *Controller) Deliver(ctx context.Context) (string, bool) {
	c.mu.Lock()
	deviceURL := strings.TrimSpace(c.deviceURL)
	token := strings.TrimSpace(c.token)
	c.mu.Unlock()

	target, err := invite.ComposeDeliveryURL(deviceURL, token)
	if err != nil {
		st := ComposeStatus(err)
		c.board.Set(st.Message, st.Severity)
		return "", false
	}

	c.board.Logf("Navigating to device: %s", target)
	c.logger.Info("delivering invite", zap.String("token", utils.Redact(token)))
	if c.navigator == nil {
		c.board.Set("No way to open the device URL.", status.Err)
		return target, false
	}
	if err := c.navigator.Navigate(ctx, target); err != nil {
		c.logger.Warn("navigation failed", zap.Error(err))
		c.board.Set("Navigation failed: "+err.Error(), status.Err)
		return target, false
	}

	// Navigating away tears the page down.
	c.StopLiveScan()
	c.board.Set(MsgDelivered, status.OK)
	return target, true
}

// Close is the teardown hook; it releases any open camera.
func (c *Controller) Close() {
	c.StopLiveScan()
}
