package deliver

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// Navigator performs the delivery navigation. Delivery is a top-level
// navigation, never a request made by this program.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, url string) error

func (f NavigatorFunc) Navigate(ctx context.Context, url string) error { return f(ctx, url) }

// SystemNavigator opens the URL in the user's default browser.
type SystemNavigator struct{}

func (SystemNavigator) Navigate(_ context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	// Detach; the browser outlives us.
	go func() { _ = cmd.Wait() }()
	return nil
}

// PrintNavigator writes the URL for the user to open by hand.
type PrintNavigator struct {
	W io.Writer
}

func (p PrintNavigator) Navigate(_ context.Context, url string) error {
	_, err := fmt.Fprintln(p.W, url)
	return err
}

// ChromeNavigator loads the URL in Chrome over the DevTools protocol, either
// in a new headless instance or in one reachable at RemoteURL.
type ChromeNavigator struct {
	RemoteURL string
	Timeout   time.Duration
}

func (n ChromeNavigator) Navigate(ctx context.Context, url string) error {
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if n.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, n.RemoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	}
	defer allocCancel()

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()
	tabCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()

	if err := chromedp.Run(tabCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("chrome navigate: %w", err)
	}
	return nil
}

// NewNavigator picks a navigator by name: system, chromedp or print.
func NewNavigator(kind, chromeURL string, out io.Writer) (Navigator, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "system":
		return SystemNavigator{}, nil
	case "chromedp", "chrome":
		return ChromeNavigator{RemoteURL: chromeURL}, nil
	case "print":
		return PrintNavigator{W: out}, nil
	default:
		return nil, fmt.Errorf("unknown navigator %q", kind)
	}
}
