package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(h.requestLogger)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "OK")
	}).Methods("GET")
	r.HandleFunc("/", h.IndexHandler).Methods("GET")
	r.HandleFunc("/index.html", h.IndexHandler).Methods("GET")
	r.HandleFunc("/app.js", h.ScriptHandler).Methods("GET")

	r.HandleFunc("/api/token", h.TokenHandler).Methods("POST")
	r.HandleFunc("/api/compose", h.ComposeHandler).Methods("POST")
	r.HandleFunc("/api/scan/photo", h.PhotoScanHandler).Methods("POST")
	r.HandleFunc("/api/scan/live", h.LiveScanHandler).Methods("GET")
	r.HandleFunc("/deliver", h.DeliverHandler).Methods("POST")
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// Query strings carry tokens; log the path only.
		h.logger.Info("request",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}
