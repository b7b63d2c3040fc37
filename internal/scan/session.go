package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harrylevesque/invitedeliver/internal/utils"
)

// State of a live scan. A session only ever moves forward:
// Idle -> Scanning -> Decoded | Cancelled | Failed.
type State int

const (
	Idle State = iota
	Scanning
	Decoded
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Decoded:
		return "decoded"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type SessionConfig struct {
	Reader   *Reader
	Interval time.Duration
	// OnDecoded runs once, on the decode goroutine, before the stream is
	// released and before Done is closed.
	OnDecoded func(Result)
	Logger    *zap.Logger
}

// Session owns one open camera stream and the loop decoding it. The stream is
// released exactly once, whichever way the session ends.
type Session struct {
	ID string

	cfg    SessionConfig
	stream Stream
	cancel context.CancelFunc
	logger *zap.Logger

	mu     sync.Mutex
	state  State
	result Result
	err    error

	release sync.Once
	done    chan struct{}
}

// StartSession acquires a stream from cam and starts decoding it. ctx bounds
// only the acquisition; use Stop to end the scan. On acquisition failure no
// session exists and nothing is left open.
func StartSession(ctx context.Context, cam Camera, cfg SessionConfig) (*Session, error) {
	if cfg.Reader == nil {
		cfg.Reader = NewReader()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		ID:     uuid.NewString(),
		cfg:    cfg,
		state:  Idle,
		done:   make(chan struct{}),
		logger: logger,
	}
	s.logger = logger.With(zap.String("scan_session", s.ID))

	stream, err := cam.Open(ctx)
	if err != nil {
		if utils.KindOf(err) != utils.CapabilityDenied {
			err = utils.Wrap(ErrCameraUnavailable, err)
		}
		s.logger.Warn("camera acquisition failed", zap.Error(err))
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.stream = stream
	s.cancel = cancel
	s.state = Scanning
	s.mu.Unlock()
	s.logger.Info("live scan started")

	go s.run(loopCtx)
	return s, nil
}

func (s *Session) run(ctx context.Context) {
	dec := &LiveDecoder{Reader: s.cfg.Reader, Frames: s.stream, Interval: s.cfg.Interval}
	res, err := dec.Decode(ctx)
	s.finish(res, err)
}

func (s *Session) finish(res Result, err error) {
	s.mu.Lock()
	if s.state != Scanning {
		s.mu.Unlock()
		return
	}
	if err == nil {
		s.state = Decoded
		s.result = res
	} else if errors.Is(err, ErrCancelled) {
		s.state = Cancelled
		s.err = ErrCancelled
	} else {
		s.state = Failed
		s.err = err
	}
	state := s.state
	s.mu.Unlock()

	if state == Decoded {
		s.logger.Info("live scan decoded")
		if s.cfg.OnDecoded != nil {
			s.cfg.OnDecoded(res)
		}
	} else {
		s.logger.Warn("live scan ended", zap.Stringer("state", state), zap.Error(err))
	}
	s.releaseStream()
	s.cancel()
	close(s.done)
}

// Stop cancels a running scan and releases its stream. It is a no-op on a nil
// session and on a session that already ended, so every teardown path may
// call it.
func (s *Session) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.state != Scanning {
		s.mu.Unlock()
		return
	}
	s.state = Cancelled
	s.err = ErrCancelled
	s.mu.Unlock()

	s.logger.Info("live scan stopped")
	s.cancel()
	s.releaseStream()
	close(s.done)
}

func (s *Session) releaseStream() {
	s.release.Do(func() {
		if err := s.stream.Close(); err != nil {
			s.logger.Warn("camera release failed", zap.Error(err))
		}
	})
}

// Done is closed once the session has left the Scanning state and its stream
// has been released.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the decoded result, ErrCancelled, or the stream failure.
// It is meaningful once Done is closed.
func (s *Session) Result() (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

// Wait blocks until the session ends or ctx is done.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		return s.Result()
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
