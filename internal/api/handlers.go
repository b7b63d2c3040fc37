package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/harrylevesque/invitedeliver/internal/deliver"
	"github.com/harrylevesque/invitedeliver/internal/invite"
	"github.com/harrylevesque/invitedeliver/internal/scan"
	"github.com/harrylevesque/invitedeliver/internal/status"
	"github.com/harrylevesque/invitedeliver/internal/utils"
)

//go:embed web/index.html web/app.js
var webFS embed.FS

var photoTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

type Options struct {
	Reader        *scan.Reader
	Logger        *zap.Logger
	MaxPhotoBytes int64
	FrameInterval time.Duration
}

type Handler struct {
	reader        *scan.Reader
	logger        *zap.Logger
	maxPhotoBytes int64
	frameInterval time.Duration
	upgrader      websocket.Upgrader
}

func NewHandler(opts Options) *Handler {
	h := &Handler{
		reader:        opts.Reader,
		logger:        opts.Logger,
		maxPhotoBytes: opts.MaxPhotoBytes,
		frameInterval: opts.FrameInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 4 << 10,
		},
	}
	if h.reader == nil {
		h.reader = scan.NewReader()
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.maxPhotoBytes <= 0 {
		h.maxPhotoBytes = 12 << 20
	}
	return h
}

// response is the JSON body of every /api endpoint.
type response struct {
	Status status.Status `json:"status"`
	Token  string        `json:"token,omitempty"`
	Found  *bool         `json:"found,omitempty"`
	URL    string        `json:"url,omitempty"`
	Text   string        `json:"text,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// httpCode maps an error kind to the response code.
func httpCode(err error) int {
	switch utils.KindOf(err) {
	case utils.InputMissing, utils.InputInvalid:
		return http.StatusBadRequest
	case utils.CapabilityDenied:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) serveAsset(w http.ResponseWriter, name, contentType string) {
	data, err := webFS.ReadFile("web/" + name)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", contentType)
	// The page reads its own fragment; never let a proxy cache an invite.
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	_, _ = w.Write(data)
}

func (h *Handler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	h.serveAsset(w, "index.html", "text/html; charset=utf-8")
}

func (h *Handler) ScriptHandler(w http.ResponseWriter, r *http.Request) {
	h.serveAsset(w, "app.js", "text/javascript; charset=utf-8")
}

// maxFormBytes bounds the JSON and form bodies that carry an invite.
const maxFormBytes = 64 << 10

// The invite only ever arrives in a request body: query strings end up in
// access logs and proxy caches.
type tokenRequest struct {
	URL string `json:"url"`
}

type composeRequest struct {
	Device string `json:"device"`
	EK     string `json:"ek"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Status: status.Status{Message: "Malformed request.", Severity: status.Err},
		})
		return false
	}
	return true
}

// TokenHandler extracts the invite from a pasted invite link.
func (h *Handler) TokenHandler(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	token, ok := invite.FromLocation(req.URL)
	resp := response{Found: &ok}
	if ok {
		resp.Token = token
		resp.Status = status.Status{Message: deliver.MsgInviteLoaded, Severity: status.OK}
	} else {
		resp.Status = status.Status{Message: deliver.MsgNoInvite, Severity: status.Neutral}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ComposeHandler previews the delivery URL without navigating.
func (h *Handler) ComposeHandler(w http.ResponseWriter, r *http.Request) {
	var req composeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	target, err := invite.ComposeDeliveryURL(req.Device, req.EK)
	if err != nil {
		writeJSON(w, httpCode(err), response{Status: deliver.ComposeStatus(err)})
		return
	}
	writeJSON(w, http.StatusOK, response{
		Status: deliver.ComposeStatus(nil),
		URL:    target,
	})
}

// DeliverHandler takes a posted form (device, ek) and sends the browser on
// to the device URL carrying the invite. Values in the query string are ignored.
func (h *Handler) DeliverHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Status: status.Status{Message: "Malformed request.", Severity: status.Err},
		})
		return
	}
	ek := r.PostForm.Get("ek")
	target, err := invite.ComposeDeliveryURL(r.PostForm.Get("device"), ek)
	if err != nil {
		h.logger.Info("delivery rejected", zap.Error(err))
		writeJSON(w, httpCode(err), response{Status: deliver.ComposeStatus(err)})
		return
	}
	h.logger.Info("delivering invite", zap.String("token", utils.Redact(ek)))
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// PhotoScanHandler decodes the QR code in the multipart "photo" field.
func (h *Handler) PhotoScanHandler(w http.ResponseWriter, r *http.Request) {
	// Room for the multipart envelope around the photo itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxPhotoBytes+(1<<20))
	if err := r.ParseMultipartForm(h.maxPhotoBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, response{
				Status: status.Status{Message: "Photo is too large.", Severity: status.Err},
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, response{
			Status: status.Status{Message: deliver.MsgBadImage, Severity: status.Err},
		})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("photo")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Status: status.Status{Message: "No photo selected.", Severity: status.Warn},
		})
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, h.maxPhotoBytes+1))
	if err != nil || int64(len(raw)) > h.maxPhotoBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, response{
			Status: status.Status{Message: "Photo is too large.", Severity: status.Err},
		})
		return
	}
	if ct := http.DetectContentType(raw); !photoTypes[strings.TrimSpace(strings.Split(ct, ";")[0])] {
		writeJSON(w, http.StatusUnsupportedMediaType, response{
			Status: status.Status{Message: deliver.MsgBadImage, Severity: status.Err},
		})
		return
	}

	text, err := h.reader.DecodeFile(bytes.NewReader(raw))
	switch {
	case errors.Is(err, scan.ErrNoCode):
		writeJSON(w, http.StatusOK, response{
			Status: status.Status{Message: deliver.MsgNoCode, Severity: status.Warn},
		})
		return
	case errors.Is(err, scan.ErrBadImage):
		writeJSON(w, http.StatusUnprocessableEntity, response{
			Status: status.Status{Message: deliver.MsgBadImage, Severity: status.Err},
		})
		return
	case err != nil:
		h.logger.Warn("photo scan failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, response{
			Status: status.Status{Message: deliver.MsgPhotoFailed, Severity: status.Err},
		})
		return
	}

	h.logger.Info("photo scanned", zap.Int("bytes", len(raw)))
	writeJSON(w, http.StatusOK, response{
		Status: status.Status{Message: deliver.MsgScanned, Severity: status.OK},
		Text:   text,
	})
}
