package scan

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/invitedeliver/internal/utils"
)

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestLiveDecoderSkipsEmptyFrames(t *testing.T) {
	stream := newFakeStream(blankImage(), blankImage(), qrImage(t, deckURL))
	d := &LiveDecoder{Reader: NewReader(), Frames: stream, Interval: time.Millisecond}

	res, err := d.Decode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Text: deckURL, Source: SourceLive}, res)
}

func TestLiveDecoderCancel(t *testing.T) {
	stream := newFakeStream()
	d := &LiveDecoder{Reader: NewReader(), Frames: stream}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := d.Decode(ctx)
	assert.True(t, errors.Is(err, ErrCancelled))
}

func TestSessionDecodeReleasesOnce(t *testing.T) {
	stream := newFakeStream(blankImage(), qrImage(t, deckURL))
	cam := &fakeCamera{stream: stream}

	var got []Result
	s, err := StartSession(context.Background(), cam, SessionConfig{
		OnDecoded: func(r Result) {
			got = append(got, r)
			assert.Equal(t, int32(0), stream.closes.Load(), "result must be delivered before release")
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)

	waitDone(t, s)
	assert.Equal(t, Decoded, s.State())
	res, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, deckURL, res.Text)
	assert.Equal(t, []Result{{Text: deckURL, Source: SourceLive}}, got)
	assert.Equal(t, int32(1), stream.closes.Load())

	// Later teardown paths must not release again.
	s.Stop()
	s.Stop()
	assert.Equal(t, int32(1), stream.closes.Load())
	assert.Equal(t, Decoded, s.State())
}

func TestSessionStopIsIdempotent(t *testing.T) {
	stream := newFakeStream()
	s, err := StartSession(context.Background(), &fakeCamera{stream: stream}, SessionConfig{})
	require.NoError(t, err)
	assert.Equal(t, Scanning, s.State())

	s.Stop()
	s.Stop()
	waitDone(t, s)

	assert.Equal(t, Cancelled, s.State())
	_, err = s.Result()
	assert.True(t, errors.Is(err, ErrCancelled))

	// Give the decode goroutine time to observe the cancellation.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), stream.closes.Load())
	assert.Equal(t, Cancelled, s.State())
}

func TestStopNeverStartedSession(t *testing.T) {
	var s *Session
	assert.NotPanics(t, func() {
		s.Stop()
		s.Stop()
	})
}

func TestSessionAcquisitionFailure(t *testing.T) {
	cam := &fakeCamera{err: errors.New("NotAllowedError: permission denied")}
	s, err := StartSession(context.Background(), cam, SessionConfig{})
	assert.Nil(t, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCameraUnavailable))
	assert.Equal(t, utils.CapabilityDenied, utils.KindOf(err))
}

func TestSessionAcquisitionHonoursContext(t *testing.T) {
	cam := CameraFunc(func(ctx context.Context) (Stream, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	s, err := StartSession(ctx, cam, SessionConfig{})
	assert.Nil(t, s)
	assert.Equal(t, utils.CapabilityDenied, utils.KindOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

type failingStream struct{ closes int }

func (f *failingStream) NextFrame(context.Context) (image.Image, error) {
	return nil, errors.New("device unplugged")
}

func (f *failingStream) Close() error { f.closes++; return nil }

func TestSessionStreamFailure(t *testing.T) {
	stream := &failingStream{}
	cam := CameraFunc(func(context.Context) (Stream, error) { return stream, nil })

	s, err := StartSession(context.Background(), cam, SessionConfig{})
	require.NoError(t, err)
	waitDone(t, s)

	assert.Equal(t, Failed, s.State())
	_, err = s.Result()
	assert.EqualError(t, err, "device unplugged")
	assert.Equal(t, 1, stream.closes)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "scanning", Scanning.String())
	assert.Equal(t, "unknown", State(42).String())
}
