package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/illarion/stegvault/internal/config"
	"github.com/illarion/stegvault/internal/core"
	"github.com/illarion/stegvault/internal/crypto"
	"github.com/illarion/stegvault/internal/imageio"
	"github.com/illarion/stegvault/internal/logger"
	"github.com/illarion/stegvault/internal/stego"
)

// Error codes returned in the "code" field of JSON error bodies
const (
	CodeNoImage          = "NO_IMAGE"
	CodeInvalidImage     = "INVALID_IMAGE"
	CodePasswordRequired = "PASSWORD_REQUIRED"
	CodeNoPayload        = "NO_PAYLOAD"
	CodeCapacityExceeded = "CAPACITY_EXCEEDED"
	CodeNotEncrypted     = "NOT_ENCRYPTED"
	CodeWrongPassword    = "WRONG_PASSWORD"
	CodeDecryptFailed    = "DECRYPT_FAILED"
	CodeTooLarge         = "PAYLOAD_TOO_LARGE"
	CodeBadRequest       = "BAD_REQUEST"
	CodeInternal         = "INTERNAL"
)

const (
	formMemory      = 8 << 20
	requestIDHeader = "X-Request-ID"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

// MessageResponse carries a small revealed payload inline
type MessageResponse struct {
	Message string `json:"message"`
}

// Handler serves the stego HTTP API
type Handler struct {
	mux       *http.ServeMux
	env       *crypto.Envelope
	log       logger.Logger
	maxUpload int64
	maxInline int64
	origins   map[string]bool
	now       func() time.Time
}

// NewHandler builds the API handler from server settings. A nil env uses
// the default envelope and a nil log discards output.
func NewHandler(cfg config.ServerConfig, env *crypto.Envelope, log logger.Logger) *Handler {
	if env == nil {
		env = crypto.NewEnvelope()
	}
	if log == nil {
		log = logger.Discard()
	}
	h := &Handler{
		mux:       http.NewServeMux(),
		env:       env,
		log:       log,
		maxUpload: cfg.MaxUploadBytes,
		maxInline: cfg.MaxInlineBytes,
		origins:   make(map[string]bool, len(cfg.CORSOrigins)),
		now:       time.Now,
	}
	for _, o := range cfg.CORSOrigins {
		h.origins[strings.TrimSpace(o)] = true
	}

	h.mux.HandleFunc("POST /api/stego/encrypt", h.encrypt)
	h.mux.HandleFunc("POST /api/stego/decrypt", h.decrypt)
	h.mux.HandleFunc("GET /healthz", h.health)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, id)

	if origin := r.Header.Get("Origin"); origin != "" && h.origins[origin] {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.mux.ServeHTTP(rec, r)
	h.log.Infof("[%s] %s %s %d %s", id, r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) encrypt(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	img, err := formFile(r, "image")
	if err != nil {
		h.fail(w, http.StatusBadRequest, ErrorResponse{Error: "Image required", Code: CodeNoImage})
		return
	}
	password := r.FormValue("password")
	if password == "" {
		h.fail(w, http.StatusBadRequest, ErrorResponse{Error: "Password required for encryption", Code: CodePasswordRequired})
		return
	}

	var payload []byte
	if msg := r.FormValue("message"); msg != "" {
		payload = []byte(msg)
	} else if data, err := formFile(r, "payload"); err == nil {
		payload = data
	} else {
		h.fail(w, http.StatusBadRequest, ErrorResponse{Error: "No payload message or file provided", Code: CodeNoPayload})
		return
	}

	buf, _, err := imageio.DecodeReader(bytes.NewReader(img))
	if err != nil {
		h.fail(w, http.StatusBadRequest, ErrorResponse{Error: "Unsupported or corrupt image", Code: CodeInvalidImage, Details: err.Error()})
		return
	}

	pw := []byte(password)
	defer crypto.ClearBytes(pw)
	res, err := core.HideBuffer(buf, payload, pw, h.env)
	if err != nil {
		var capErr *stego.CapacityError
		if errors.As(err, &capErr) {
			h.fail(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Payload does not fit in this image",
				Code:    CodeCapacityExceeded,
				Details: fmt.Sprintf("needs %d bits, image holds %d", capErr.Needed, capErr.Available),
			})
			return
		}
		h.log.Errorf("Hide failed: %v", err)
		h.fail(w, http.StatusInternalServerError, ErrorResponse{Error: "Server error", Code: CodeInternal})
		return
	}

	var out bytes.Buffer
	if err := imageio.EncodeWriter(&out, buf, imageio.FormatPNG); err != nil {
		h.log.Errorf("Encode failed: %v", err)
		h.fail(w, http.StatusInternalServerError, ErrorResponse{Error: "Server error", Code: CodeInternal})
		return
	}

	h.log.Debugf("Embedded %d byte %s stream", res.StreamBytes, res.Mode)
	name := fmt.Sprintf("stego-%d.png", h.now().UnixMilli())
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", fmt.Sprint(out.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(out.Bytes())
}

func (h *Handler) decrypt(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	img, err := formFile(r, "image")
	if err != nil {
		h.fail(w, http.StatusBadRequest, ErrorResponse{Error: "Image required", Code: CodeNoImage})
		return
	}

	buf, _, err := imageio.DecodeReader(bytes.NewReader(img))
	if err != nil {
		h.fail(w, http.StatusBadRequest, ErrorResponse{Error: "Unsupported or corrupt image", Code: CodeInvalidImage, Details: err.Error()})
		return
	}

	pw := []byte(r.FormValue("password"))
	defer crypto.ClearBytes(pw)
	res, err := core.RevealBuffer(buf, pw, core.RevealOptions{AutoLegacy: true, Envelope: h.env})
	if err != nil {
		h.fail(w, http.StatusBadRequest, revealError(err))
		return
	}

	if int64(len(res.Payload)) <= h.maxInline && utf8.Valid(res.Payload) {
		writeJSON(w, http.StatusOK, MessageResponse{Message: string(res.Payload)})
		return
	}

	name := fmt.Sprintf("plain-%d", h.now().UnixMilli())
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", fmt.Sprint(len(res.Payload)))
	w.WriteHeader(http.StatusOK)
	w.Write(res.Payload)
}

func revealError(err error) ErrorResponse {
	switch {
	case errors.Is(err, stego.ErrCapacity), errors.Is(err, core.ErrEmptyFrame), errors.Is(err, core.ErrUnknownMode):
		return ErrorResponse{
			Error:   "This image does not contain any encrypted data",
			Code:    CodeNotEncrypted,
			Message: "The image you uploaded is not encrypted or doesn't contain hidden data.",
		}
	case errors.Is(err, core.ErrWrongPassword):
		return ErrorResponse{
			Error:   "Incorrect password. Please check and try again",
			Code:    CodeWrongPassword,
			Message: "The password you entered is incorrect. Please try again with the correct password.",
		}
	case errors.Is(err, core.ErrPasswordRequired):
		return ErrorResponse{
			Error:   "This image is password protected. Please provide the correct password",
			Code:    CodePasswordRequired,
			Message: "This image contains encrypted data that requires a password to decrypt.",
		}
	default:
		return ErrorResponse{Error: "Failed to decrypt the image", Code: CodeDecryptFailed, Details: err.Error()}
	}
}

// parseForm reads the multipart body under the upload limit and writes the
// error response itself when that fails.
func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.fail(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error: fmt.Sprintf("Upload exceeds %d bytes", h.maxUpload),
				Code:  CodeTooLarge,
			})
			return false
		}
		h.fail(w, http.StatusBadRequest, ErrorResponse{Error: "Expected multipart form data", Code: CodeBadRequest, Details: err.Error()})
		return false
	}
	return true
}

func formFile(r *http.Request, field string) ([]byte, error) {
	f, _, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *Handler) fail(w http.ResponseWriter, status int, body ErrorResponse) {
	h.log.Debugf("Request failed: %s %s", body.Code, body.Error)
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
