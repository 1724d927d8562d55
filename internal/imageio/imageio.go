package imageio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/illarion/stegvault/internal/stego"
)

// Channels is the fixed channel count of decoded buffers, in B, G, R order.
const Channels = 3

// Format is a lossless output format
type Format string

const (
	FormatPNG  Format = "png"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

var (
	ErrUnsupportedChannels = errors.New("unsupported channel count")
	ErrUnsupportedFormat   = errors.New("unsupported output format")
)

// Decode reads an image file into a 3-channel BGR buffer
func Decode(path string) (*stego.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open image %s: %w", path, err)
	}
	defer f.Close()

	buf, _, err := DecodeReader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("cannot decode image %s: %w", path, err)
	}
	return buf, nil
}

// DecodeReader decodes any registered image format and returns the buffer
// together with the detected format name.
func DecodeReader(r io.Reader) (*stego.Buffer, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", err
	}
	return FromImage(img), format, nil
}

// FromImage flattens img into a BGR buffer. Alpha is dropped and samples
// deeper than 8 bits are reduced to their high byte.
func FromImage(img image.Image) *stego.Buffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	buf := stego.NewBuffer(h, w, Channels)

	switch src := img.(type) {
	case *image.NRGBA:
		copyRGBA(buf, src.Pix, src.Stride, w, h)
	case *image.RGBA:
		// Only exact for opaque pixels, which is what Encode produces.
		copyRGBA(buf, src.Pix, src.Stride, w, h)
	default:
		i := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				buf.Pix[i] = c.B
				buf.Pix[i+1] = c.G
				buf.Pix[i+2] = c.R
				i += Channels
			}
		}
	}
	return buf
}

func copyRGBA(buf *stego.Buffer, pix []byte, stride, w, h int) {
	i := 0
	for y := 0; y < h; y++ {
		row := pix[y*stride : y*stride+w*4]
		for x := 0; x < w; x++ {
			buf.Pix[i] = row[x*4+2]
			buf.Pix[i+1] = row[x*4+1]
			buf.Pix[i+2] = row[x*4]
			i += Channels
		}
	}
}

// ToImage converts a BGR buffer to an opaque NRGBA image
func ToImage(buf *stego.Buffer) (*image.NRGBA, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if buf.Channels != Channels {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChannels, buf.Channels)
	}

	img := image.NewNRGBA(image.Rect(0, 0, buf.Width, buf.Height))
	i := 0
	for y := 0; y < buf.Height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+buf.Width*4]
		for x := 0; x < buf.Width; x++ {
			row[x*4] = buf.Pix[i+2]
			row[x*4+1] = buf.Pix[i+1]
			row[x*4+2] = buf.Pix[i]
			row[x*4+3] = 0xFF
			i += Channels
		}
	}
	return img, nil
}

// LosslessPath returns the path an image will actually be written to and
// its format. Paths without a lossless extension get ".png" appended.
func LosslessPath(path string) (string, Format) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return path, FormatPNG
	case ".bmp":
		return path, FormatBMP
	case ".tif", ".tiff":
		return path, FormatTIFF
	default:
		return path + ".png", FormatPNG
	}
}

// Encode writes buf to path in a lossless format and returns the path that
// was written, which differs from path when ".png" had to be appended. The
// file is replaced atomically, so a failed write leaves any previous file
// intact.
func Encode(buf *stego.Buffer, path string) (string, error) {
	outPath, format := LosslessPath(path)

	var encoded bytes.Buffer
	if err := EncodeWriter(&encoded, buf, format); err != nil {
		return "", err
	}
	if err := atomic.WriteFile(outPath, &encoded); err != nil {
		return "", fmt.Errorf("cannot write %s: %w", outPath, err)
	}
	return outPath, nil
}

// EncodeWriter writes buf to w in the given lossless format
func EncodeWriter(w io.Writer, buf *stego.Buffer, format Format) error {
	img, err := ToImage(buf)
	if err != nil {
		return err
	}

	switch format {
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		return enc.Encode(w, img)
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
