package imageio

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/stegvault/internal/stego"
)

func randomBuffer(h, w int, seed int64) *stego.Buffer {
	buf := stego.NewBuffer(h, w, Channels)
	rand.New(rand.NewSource(seed)).Read(buf.Pix)
	return buf
}

func TestEncodeDecode_Lossless(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"out.png", "out.PNG", "out.bmp", "out.tif", "out.tiff"} {
		t.Run(name, func(t *testing.T) {
			buf := randomBuffer(13, 17, 3)
			require.NoError(t, stego.Embed(buf, []byte("lsb survives "+name)))

			written, err := Encode(buf, filepath.Join(dir, name))
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, name), written)

			decoded, err := Decode(written)
			require.NoError(t, err)
			assert.Equal(t, buf.Height, decoded.Height)
			assert.Equal(t, buf.Width, decoded.Width)
			assert.Equal(t, Channels, decoded.Channels)
			assert.Equal(t, buf.Pix, decoded.Pix)

			payload, err := stego.Extract(decoded)
			require.NoError(t, err)
			assert.Equal(t, "lsb survives "+name, string(payload))
		})
	}
}

func TestEncode_AppendsPNGForLossyExtension(t *testing.T) {
	dir := t.TempDir()
	buf := randomBuffer(4, 4, 1)

	written, err := Encode(buf, filepath.Join(dir, "photo.jpg"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "photo.jpg.png"), written)

	_, err = os.Stat(filepath.Join(dir, "photo.jpg"))
	assert.True(t, os.IsNotExist(err))

	decoded, err := Decode(written)
	require.NoError(t, err)
	assert.Equal(t, buf.Pix, decoded.Pix)
}

func TestLosslessPath(t *testing.T) {
	tests := []struct {
		in     string
		out    string
		format Format
	}{
		{"a.png", "a.png", FormatPNG},
		{"a.Bmp", "a.Bmp", FormatBMP},
		{"a.TIF", "a.TIF", FormatTIFF},
		{"a.jpeg", "a.jpeg.png", FormatPNG},
		{"noext", "noext.png", FormatPNG},
	}
	for _, tt := range tests {
		out, format := LosslessPath(tt.in)
		assert.Equal(t, tt.out, out, tt.in)
		assert.Equal(t, tt.format, format, tt.in)
	}
}

func TestFromImage_BGROrder(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 40, G: 50, B: 60, A: 255})

	buf := FromImage(img)
	assert.Equal(t, []byte{30, 20, 10, 60, 50, 40}, buf.Pix)

	back, err := ToImage(buf)
	require.NoError(t, err)
	assert.Equal(t, img.Pix, back.Pix)
}

func TestFromImage_GrayAndOffsetBounds(t *testing.T) {
	img := image.NewGray(image.Rect(5, 5, 7, 6))
	img.SetGray(5, 5, color.Gray{Y: 7})
	img.SetGray(6, 5, color.Gray{Y: 9})

	buf := FromImage(img)
	assert.Equal(t, 1, buf.Height)
	assert.Equal(t, 2, buf.Width)
	assert.Equal(t, []byte{7, 7, 7, 9, 9, 9}, buf.Pix)
}

func TestFromImage_SubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = byte(i)
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xFF
	}
	sub := img.SubImage(image.Rect(1, 1, 3, 3)).(*image.RGBA)

	buf := FromImage(sub)
	require.Equal(t, 2, buf.Height)
	require.Equal(t, 2, buf.Width)
	// pixel (1,1) starts at offset 1*16+1*4 = 20
	assert.Equal(t, []byte{22, 21, 20}, buf.Pix[:3])
}

func TestDecodeReader_JPEGInput(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	var b bytes.Buffer
	require.NoError(t, jpeg.Encode(&b, img, nil))

	buf, format, err := DecodeReader(&b)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 8, buf.Width)
	assert.Equal(t, 8, buf.Height)
}

func TestDecodeReader_PNGWithAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 1, G: 2, B: 3, A: 4})
	var b bytes.Buffer
	require.NoError(t, png.Encode(&b, img))

	buf, format, err := DecodeReader(&b)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, []byte{3, 2, 1}, buf.Pix)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0600))
	_, err = Decode(bad)
	assert.Error(t, err)
}

func TestToImage_RejectsOtherChannelCounts(t *testing.T) {
	_, err := ToImage(stego.NewBuffer(2, 2, 4))
	assert.ErrorIs(t, err, ErrUnsupportedChannels)

	err = EncodeWriter(&bytes.Buffer{}, stego.NewBuffer(1, 1, 3), Format("gif"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestEncode_ReplacesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.png")
	require.NoError(t, os.WriteFile(path, []byte("old contents"), 0600))

	buf := randomBuffer(6, 6, 9)
	_, err := Encode(buf, path)
	require.NoError(t, err)

	decoded, err := Decode(path)
	require.NoError(t, err)
	assert.Equal(t, buf.Pix, decoded.Pix)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestEncode_MissingDirectory(t *testing.T) {
	_, err := Encode(randomBuffer(2, 2, 1), filepath.Join(t.TempDir(), "nope", "out.png"))
	assert.Error(t, err)
}
