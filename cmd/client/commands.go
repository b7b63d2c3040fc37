package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harrylevesque/invitedeliver/internal/deliver"
	"github.com/harrylevesque/invitedeliver/internal/invite"
	"github.com/harrylevesque/invitedeliver/internal/scan"
	"github.com/harrylevesque/invitedeliver/internal/status"
)

func tokenFromLink(link string) (string, error) {
	token, ok := invite.FromLocation(link)
	if !ok {
		return "", errors.New("no invite in link (expected #ek=, ?ek=, #key= or ?key=)")
	}
	return token, nil
}

func composeURL(deviceURL, token string) (string, error) {
	target, err := invite.ComposeDeliveryURL(deviceURL, token)
	if err != nil {
		return "", errors.New(deliver.ComposeStatus(err).Message)
	}
	return target, nil
}

func scanImage(stdin io.Reader, path string) (string, error) {
	src := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		src = f
	}
	text, err := scan.NewReader().DecodeFile(src)
	if errors.Is(err, scan.ErrNoCode) {
		return "", errors.New(deliver.MsgNoCode)
	}
	return text, err
}

// scanWaitContext bounds a live scan only when timeout is positive.
func scanWaitContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

type deliverFlags struct {
	pageURL     string
	token       string
	deviceURL   string
	photo       string
	live        bool
	manual      bool
	copy        bool
	navigator   string
	chromeURL   string
	scanTimeout time.Duration
}

func (a *app) newDeliverCmd() *cobra.Command {
	f := &deliverFlags{}
	cmd := &cobra.Command{
		Use:   "deliver",
		Short: "Scan or take a device URL, then open it with the invite attached",
		Long: `Runs the full delivery flow: load the invite (--page-url or --token),
get the device URL (--device-url, --photo, --live or --manual), then open
the composed URL with the chosen navigator.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDeliver(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.pageURL, "page-url", "", "invite link carrying #ek= or ?ek=")
	fl.StringVar(&f.token, "token", "", "invite token (ek=... is accepted)")
	fl.StringVar(&f.deviceURL, "device-url", "", "device URL, skipping the scan")
	fl.StringVar(&f.photo, "photo", "", "image file holding the device's QR code")
	fl.BoolVar(&f.live, "live", false, "scan the QR code with the camera")
	fl.BoolVar(&f.manual, "manual", false, "type the device URL on stdin")
	fl.BoolVar(&f.copy, "copy", false, "copy the invite to the clipboard")
	fl.StringVar(&f.navigator, "navigator", "", "system, chromedp or print (default from config)")
	fl.StringVar(&f.chromeURL, "chrome-url", "", "DevTools websocket URL of a running Chrome")
	fl.DurationVar(&f.scanTimeout, "scan-timeout", 0, "give up on a live scan after this long (0 waits until interrupted)")
	cmd.MarkFlagsMutuallyExclusive("device-url", "photo", "live", "manual")
	return cmd
}

func (a *app) runDeliver(cmd *cobra.Command, f *deliverFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	navKind := f.navigator
	if navKind == "" {
		navKind = a.cfg.Navigator
	}
	chromeURL := f.chromeURL
	if chromeURL == "" {
		chromeURL = a.cfg.ChromeURL
	}
	nav, err := deliver.NewNavigator(navKind, chromeURL, out)
	if err != nil {
		return err
	}

	c := deliver.New(deliver.Options{
		Camera:        &scan.CommandCamera{Command: scan.ParseCameraCommand(a.cfg.CameraCommand)},
		Reader:        scan.NewReader(),
		Clipboard:     deliver.SystemClipboard{},
		Navigator:     nav,
		FrameInterval: a.cfg.FrameInterval.Std(),
		Logger:        a.logger.Logger,
	})
	defer c.Close()
	c.Board().OnChange(func(st status.Status) {
		fmt.Fprintf(errOut, "[%s] %s\n", st.Severity, st.Message)
	})

	if f.pageURL != "" {
		c.LoadFromLocation(f.pageURL)
	}
	if f.token != "" {
		c.SetToken(f.token)
	}
	if f.copy {
		c.CopyToken()
	}

	switch {
	case f.deviceURL != "":
		c.SetDeviceURL(f.deviceURL)
	case f.photo != "":
		file, err := os.Open(f.photo)
		if err != nil {
			return err
		}
		c.ScanPhoto(ctx, file)
		file.Close()
	case f.live:
		if s := c.StartLiveScan(ctx); s != nil {
			waitCtx, cancel := scanWaitContext(ctx, f.scanTimeout)
			_, err := s.Wait(waitCtx)
			cancel()
			if err != nil {
				a.logger.Info("live scan ended without a code", zap.Error(err))
				c.StopLiveScan()
			}
		}
	case f.manual:
		c.FocusManual()
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		c.SetDeviceURL(strings.TrimSpace(line))
	}

	_, ok := c.Deliver(ctx)
	for _, e := range c.Board().Entries() {
		fmt.Fprintf(errOut, "  %s %s\n", e.Time.Format("15:04:05"), e.Line)
	}
	if !ok {
		return errors.New(c.Board().Current().Message)
	}
	return nil
}
