package api

import (
	"bytes"
	"context"
	"errors"
	"image"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/harrylevesque/invitedeliver/internal/deliver"
	"github.com/harrylevesque/invitedeliver/internal/scan"
	"github.com/harrylevesque/invitedeliver/internal/status"
)

// stopMessage is the text frame a page sends to end its scan.
const stopMessage = "stop"

type liveMessage struct {
	Status status.Status `json:"status"`
	Text   string        `json:"text,omitempty"`
}

// wsStream is a camera stream fed by the browser: each binary message is one
// encoded frame captured from getUserMedia.
type wsStream struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (s *wsStream) NextFrame(ctx context.Context) (image.Image, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return nil, scan.ErrCancelled
			}
			return nil, err
		}
		switch kind {
		case websocket.TextMessage:
			if strings.TrimSpace(string(data)) == stopMessage {
				return nil, scan.ErrCancelled
			}
		case websocket.BinaryMessage:
			img, err := scan.DecodePhoto(bytes.NewReader(data))
			if err != nil {
				s.logger.Debug("skipping undecodable frame", zap.Int("bytes", len(data)))
				continue
			}
			return img, nil
		}
	}
}

func (s *wsStream) send(msg liveMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteJSON(msg)
}

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "scan ended")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

// LiveScanHandler runs one live scan over a websocket. The page streams
// frames; the server answers with a single result message and closes.
func (h *Handler) LiveScanHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(h.maxPhotoBytes)

	stream := &wsStream{conn: conn, logger: h.logger}
	cam := scan.CameraFunc(func(context.Context) (scan.Stream, error) { return stream, nil })

	session, err := scan.StartSession(r.Context(), cam, scan.SessionConfig{
		Reader:   h.reader,
		Interval: h.frameInterval,
		Logger:   h.logger,
		OnDecoded: func(res scan.Result) {
			err := stream.send(liveMessage{
				Status: status.Status{Message: deliver.MsgScanned, Severity: status.OK},
				Text:   res.Text,
			})
			if err != nil {
				h.logger.Warn("live result not delivered", zap.Error(err))
			}
		},
	})
	if err != nil {
		_ = stream.Close()
		return
	}
	defer session.Stop()

	<-session.Done()
	if _, err := session.Result(); err != nil && !errors.Is(err, scan.ErrCancelled) {
		h.logger.Warn("live scan failed", zap.String("scan_session", session.ID), zap.Error(err))
	}
}
