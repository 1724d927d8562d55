package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/stegvault/internal/config"
	"github.com/illarion/stegvault/internal/crypto"
	"github.com/illarion/stegvault/internal/imageio"
	"github.com/illarion/stegvault/internal/stego"
)

var fastEnv = crypto.NewEnvelope(crypto.WithIterations(1000))

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		MaxUploadBytes: 1 << 20,
		MaxInlineBytes: 200 * 1024,
		CORSOrigins:    []string{"http://localhost:5173"},
	}
}

func newTestHandler(cfg config.ServerConfig) *Handler {
	h := NewHandler(cfg, fastEnv, nil)
	h.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return h
}

func pngBytes(t *testing.T, buf *stego.Buffer) []byte {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, imageio.EncodeWriter(&out, buf, imageio.FormatPNG))
	return out.Bytes()
}

func coverPNG(t *testing.T, h, w int) []byte {
	t.Helper()
	buf := stego.NewBuffer(h, w, imageio.Channels)
	rand.New(rand.NewSource(int64(h + w))).Read(buf.Pix)
	return pngBytes(t, buf)
}

type part struct {
	field string
	file  string
	data  []byte
}

func multipartRequest(t *testing.T, path string, parts ...part) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		if p.file != "" {
			fw, err := mw.CreateFormFile(p.field, p.file)
			require.NoError(t, err)
			_, err = fw.Write(p.data)
			require.NoError(t, err)
			continue
		}
		require.NoError(t, mw.WriteField(p.field, string(p.data)))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func encryptImage(t *testing.T, h http.Handler, cover []byte, message, password string) []byte {
	t.Helper()
	rec := serve(h, multipartRequest(t, "/api/stego/encrypt",
		part{field: "image", file: "cover.png", data: cover},
		part{field: "message", data: []byte(message)},
		part{field: "password", data: []byte(password)},
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return rec.Body.Bytes()
}

func TestHealth(t *testing.T) {
	h := newTestHandler(testConfig())
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	h := newTestHandler(testConfig())

	rec := serve(h, multipartRequest(t, "/api/stego/encrypt",
		part{field: "image", file: "cover.jpg", data: coverPNG(t, 48, 48)},
		part{field: "message", data: []byte("hello through http")},
		part{field: "password", data: []byte("pw")},
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="stego-1700000000000.png"`, rec.Header().Get("Content-Disposition"))

	rec = serve(h, multipartRequest(t, "/api/stego/decrypt",
		part{field: "image", file: "stego.png", data: rec.Body.Bytes()},
		part{field: "password", data: []byte("pw")},
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var msg MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, "hello through http", msg.Message)
}

func TestEncrypt_PayloadFile(t *testing.T) {
	h := newTestHandler(testConfig())

	rec := serve(h, multipartRequest(t, "/api/stego/encrypt",
		part{field: "image", file: "cover.png", data: coverPNG(t, 48, 48)},
		part{field: "payload", file: "notes.txt", data: []byte("from a file")},
		part{field: "password", data: []byte("pw")},
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(h, multipartRequest(t, "/api/stego/decrypt",
		part{field: "image", file: "stego.png", data: rec.Body.Bytes()},
		part{field: "password", data: []byte("pw")},
	))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"from a file"}`, rec.Body.String())
}

func TestEncrypt_Validation(t *testing.T) {
	h := newTestHandler(testConfig())
	cover := coverPNG(t, 16, 16)

	tests := []struct {
		name  string
		parts []part
		code  string
	}{
		{
			name:  "no image",
			parts: []part{{field: "message", data: []byte("x")}, {field: "password", data: []byte("pw")}},
			code:  CodeNoImage,
		},
		{
			name:  "no password",
			parts: []part{{field: "image", file: "c.png", data: cover}, {field: "message", data: []byte("x")}},
			code:  CodePasswordRequired,
		},
		{
			name:  "no payload",
			parts: []part{{field: "image", file: "c.png", data: cover}, {field: "password", data: []byte("pw")}},
			code:  CodeNoPayload,
		},
		{
			name: "not an image",
			parts: []part{
				{field: "image", file: "c.png", data: []byte("definitely not a png")},
				{field: "message", data: []byte("x")},
				{field: "password", data: []byte("pw")},
			},
			code: CodeInvalidImage,
		},
		{
			name: "too much for the image",
			parts: []part{
				{field: "image", file: "c.png", data: cover},
				{field: "message", data: bytes.Repeat([]byte("a"), 200)},
				{field: "password", data: []byte("pw")},
			},
			code: CodeCapacityExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, multipartRequest(t, "/api/stego/encrypt", tt.parts...))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestDecrypt_Errors(t *testing.T) {
	h := newTestHandler(testConfig())
	stegoPNG := encryptImage(t, h, coverPNG(t, 48, 48), "secret", "right")
	blank := pngBytes(t, stego.NewBuffer(16, 16, imageio.Channels))

	tests := []struct {
		name  string
		parts []part
		code  string
	}{
		{
			name:  "no image",
			parts: []part{{field: "password", data: []byte("pw")}},
			code:  CodeNoImage,
		},
		{
			name:  "nothing hidden",
			parts: []part{{field: "image", file: "blank.png", data: blank}},
			code:  CodeNotEncrypted,
		},
		{
			name:  "wrong password",
			parts: []part{{field: "image", file: "s.png", data: stegoPNG}, {field: "password", data: []byte("wrong")}},
			code:  CodeWrongPassword,
		},
		{
			name:  "missing password",
			parts: []part{{field: "image", file: "s.png", data: stegoPNG}},
			code:  CodePasswordRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, multipartRequest(t, "/api/stego/decrypt", tt.parts...))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestDecrypt_LargePayloadIsDownload(t *testing.T) {
	cfg := testConfig()
	cfg.MaxInlineBytes = 8
	h := newTestHandler(cfg)

	stegoPNG := encryptImage(t, h, coverPNG(t, 48, 48), "longer than eight bytes", "pw")
	rec := serve(h, multipartRequest(t, "/api/stego/decrypt",
		part{field: "image", file: "s.png", data: stegoPNG},
		part{field: "password", data: []byte("pw")},
	))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="plain-1700000000000"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "longer than eight bytes", rec.Body.String())
}

func TestDecrypt_BinaryPayloadIsDownload(t *testing.T) {
	h := newTestHandler(testConfig())
	binary := []byte{0xff, 0xfe, 0x00, 0x01}

	rec := serve(h, multipartRequest(t, "/api/stego/encrypt",
		part{field: "image", file: "c.png", data: coverPNG(t, 48, 48)},
		part{field: "payload", file: "blob.bin", data: binary},
		part{field: "password", data: []byte("pw")},
	))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, multipartRequest(t, "/api/stego/decrypt",
		part{field: "image", file: "s.png", data: rec.Body.Bytes()},
		part{field: "password", data: []byte("pw")},
	))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, binary, rec.Body.Bytes())
}

func legacyPNG(t *testing.T, first byte, plaintext string) []byte {
	t.Helper()
	seed := append([]byte{first}, bytes.Repeat([]byte{0x33}, crypto.HeaderSize-1)...)
	env := crypto.NewEnvelope(crypto.WithIterations(1000), crypto.WithRand(bytes.NewReader(seed)))
	blob, err := env.Seal([]byte(plaintext), []byte("pw"))
	require.NoError(t, err)

	buf := stego.NewBuffer(48, 48, imageio.Channels)
	require.NoError(t, stego.Embed(buf, blob))
	return pngBytes(t, buf)
}

func TestDecrypt_LegacyBlob(t *testing.T) {
	h := newTestHandler(testConfig())

	for _, first := range []byte{0x7f, 0x00, 0x01} {
		t.Run(fmt.Sprintf("salt 0x%02x", first), func(t *testing.T) {
			rec := serve(h, multipartRequest(t, "/api/stego/decrypt",
				part{field: "image", file: "old.png", data: legacyPNG(t, first, "written by the old backend")},
				part{field: "password", data: []byte("pw")},
			))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.JSONEq(t, `{"message":"written by the old backend"}`, rec.Body.String())
		})
	}
}

func TestDecrypt_LegacyBlobNeedsPassword(t *testing.T) {
	h := newTestHandler(testConfig())

	rec := serve(h, multipartRequest(t, "/api/stego/decrypt",
		part{field: "image", file: "old.png", data: legacyPNG(t, 0x7f, "written by the old backend")},
	))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodePasswordRequired, decodeError(t, rec).Code)
}

func TestUploadLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUploadBytes = 512
	h := newTestHandler(cfg)

	rec := serve(h, multipartRequest(t, "/api/stego/decrypt",
		part{field: "image", file: "big.png", data: bytes.Repeat([]byte{1}, 4096)},
	))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, CodeTooLarge, decodeError(t, rec).Code)
}

func TestNotMultipart(t *testing.T) {
	h := newTestHandler(testConfig())
	req := httptest.NewRequest(http.MethodPost, "/api/stego/decrypt", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")

	rec := serve(h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeBadRequest, decodeError(t, rec).Code)
}

func TestCORS(t *testing.T) {
	h := newTestHandler(testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/api/stego/encrypt", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := serve(h, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newTestHandler(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")

	rec := serve(h, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}
