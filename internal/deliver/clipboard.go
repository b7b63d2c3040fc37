package deliver

import (
	"github.com/atotto/clipboard"

	"github.com/harrylevesque/invitedeliver/internal/utils"
)

var ErrClipboardUnavailable = utils.New(utils.ClipboardUnavailable, "clipboard unavailable")

// Clipboard is the write-text capability used by the copy control.
type Clipboard interface {
	WriteText(text string) error
}

// SystemClipboard writes to the OS clipboard (pbcopy, xclip/xsel/wl-copy, or the Win32 API).
type SystemClipboard struct{}

func (SystemClipboard) WriteText(text string) error {
	if clipboard.Unsupported {
		return ErrClipboardUnavailable
	}
	if err := clipboard.WriteAll(text); err != nil {
		return utils.Wrap(ErrClipboardUnavailable, err)
	}
	return nil
}
