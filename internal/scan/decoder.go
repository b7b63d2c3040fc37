package scan

import (
	"context"
	"errors"
	"image"
	"time"
)

// ErrCancelled is reported by a live decode that was stopped before it read a code.
var ErrCancelled = errors.New("scan cancelled")

type Source string

const (
	SourceLive  Source = "live"
	SourcePhoto Source = "photo"
)

// Result is the one event a decoder produces.
type Result struct {
	Text   string `json:"text"`
	Source Source `json:"source"`
}

// Decoder yields a single decoded Result. Both the photo and the camera
// backends implement it.
type Decoder interface {
	Decode(ctx context.Context) (Result, error)
}

// StaticDecoder reads one still image. An image without a code yields ErrNoCode.
type StaticDecoder struct {
	Reader *Reader
	Image  image.Image
}

func (d *StaticDecoder) Decode(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	text, err := d.Reader.DecodeImage(d.Image)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text, Source: SourcePhoto}, nil
}

// FrameSource delivers camera frames in order. NextFrame blocks until a frame
// is available, the source ends, or ctx is done.
type FrameSource interface {
	NextFrame(ctx context.Context) (image.Image, error)
}

// LiveDecoder samples frames until one holds a code. There is no timeout;
// cancel ctx to stop it.
type LiveDecoder struct {
	Reader *Reader
	Frames FrameSource
	// Interval is the pause between frames that held no code.
	Interval time.Duration
}

func (d *LiveDecoder) Decode(ctx context.Context) (Result, error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if ctx.Err() != nil {
			return Result{}, ErrCancelled
		}
		frame, err := d.Frames.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ErrCancelled
			}
			return Result{}, err
		}
		// Frames that fail to decode are skipped.
		if text, err := d.Reader.DecodeImage(frame); err == nil {
			return Result{Text: text, Source: SourceLive}, nil
		}

		if d.Interval <= 0 {
			continue
		}
		if timer == nil {
			timer = time.NewTimer(d.Interval)
		} else {
			timer.Reset(d.Interval)
		}
		select {
		case <-ctx.Done():
			return Result{}, ErrCancelled
		case <-timer.C:
		}
	}
}
