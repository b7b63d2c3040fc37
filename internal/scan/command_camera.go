package scan

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/harrylevesque/invitedeliver/internal/utils"
)

// DefaultCameraCommand captures the first V4L2 device as an MJPEG stream on stdout.
var DefaultCameraCommand = []string{
	"ffmpeg", "-loglevel", "error",
	"-f", "v4l2", "-i", "/dev/video0",
	"-r", "5", "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-",
}

// CommandCamera runs an external capture command that writes concatenated
// JPEG frames to stdout. The first frame is read during Open so a refused or
// missing device surfaces as an acquisition failure.
type CommandCamera struct {
	Command []string
}

// ParseCameraCommand splits a configured command line on whitespace.
func ParseCameraCommand(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return DefaultCameraCommand
	}
	return fields
}

func (c *CommandCamera) Open(ctx context.Context) (Stream, error) {
	args := c.Command
	if len(args) == 0 {
		args = DefaultCameraCommand
	}
	cmd := exec.Command(args[0], args[1:]...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, utils.Wrap(ErrCameraUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, utils.Wrap(ErrCameraUnavailable, err)
	}

	s := &commandStream{cmd: cmd, out: bufio.NewReaderSize(stdout, 256<<10), stderr: stderr}

	type first struct {
		img image.Image
		err error
	}
	ch := make(chan first, 1)
	go func() {
		img, err := s.read()
		ch <- first{img, err}
	}()

	select {
	case <-ctx.Done():
		_ = s.Close()
		return nil, utils.Wrap(ErrCameraUnavailable, ctx.Err())
	case f := <-ch:
		if f.err != nil {
			_ = s.Close()
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				return nil, utils.Wrap(ErrCameraUnavailable, fmt.Errorf("%v: %s", f.err, msg))
			}
			return nil, utils.Wrap(ErrCameraUnavailable, f.err)
		}
		s.pending = f.img
		return s, nil
	}
}

type commandStream struct {
	cmd     *exec.Cmd
	out     *bufio.Reader
	stderr  *bytes.Buffer
	pending image.Image

	closeOnce sync.Once
	closeErr  error
}

func (s *commandStream) NextFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pending != nil {
		img := s.pending
		s.pending = nil
		return img, nil
	}
	return s.read()
}

func (s *commandStream) read() (image.Image, error) {
	raw, err := readJPEG(s.out)
	if err != nil {
		return nil, err
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// Close kills the capture process. Only the first call has an effect.
func (s *commandStream) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		if err := s.cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}

// readJPEG returns the bytes of the next SOI..EOI frame in an MJPEG stream.
func readJPEG(br *bufio.Reader) ([]byte, error) {
	var prev byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		if prev == 0xFF && b == 0xD8 {
			break
		}
		prev = b
	}

	buf := []byte{0xFF, 0xD8}
	prev = 0
	for {
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		buf = append(buf, b)
		if prev == 0xFF && b == 0xD9 {
			return buf, nil
		}
		prev = b
	}
}
