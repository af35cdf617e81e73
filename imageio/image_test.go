package imageio

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/stablediffusion/diffusion"
)

func testPixels() *diffusion.Pixels {
	// 2 Bilder, 2x3 Pixel
	px := &diffusion.Pixels{Batch: 2, Height: 2, Width: 3}
	px.Data = make([]uint8, 2*2*3*3)
	for i := range px.Data {
		px.Data[i] = uint8(i * 3)
	}
	return px
}

func TestToImages(t *testing.T) {
	px := testPixels()
	images := ToImages(px)
	require.Len(t, images, 2)

	for i, img := range images {
		assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
		src := px.Image(i)
		for y := range 2 {
			for x := range 3 {
				p := (y*3 + x) * 3
				want := color.RGBA{src[p], src[p+1], src[p+2], 255}
				if got := img.RGBAAt(x, y); got != want {
					t.Errorf("bild %d pixel (%d,%d) = %v, erwartet %v", i, x, y, got, want)
				}
			}
		}
	}
}

func TestEncodeFormats(t *testing.T) {
	img := ToImage(testPixels(), 0)
	for _, f := range []ImageFormat{FormatPNG, FormatJPEG, FormatBMP, FormatTIFF} {
		t.Run(f.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, img, f))
			assert.Equal(t, f, DetectFormat(buf.Bytes()))
		})
	}
}

func TestEncodeUnknown(t *testing.T) {
	err := Encode(&bytes.Buffer{}, image.NewRGBA(image.Rect(0, 0, 1, 1)), FormatUnknown)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("erwartet ErrUnsupportedFormat, bekommen %v", err)
	}
}

func TestSavePNGRoundTrip(t *testing.T) {
	img := ToImage(testPixels(), 1)
	path := filepath.Join(t.TempDir(), "out.png")
	require.NoError(t, Save(path, img))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	decoded, format, err := image.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, "png", format)

	for y := range 2 {
		for x := range 3 {
			r, g, b, a := decoded.At(x, y).RGBA()
			want := img.RGBAAt(x, y)
			got := color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
			if got != want {
				t.Errorf("pixel (%d,%d) = %v, erwartet %v", x, y, got, want)
			}
		}
	}
}

func TestSaveUnknownExtension(t *testing.T) {
	err := Save(filepath.Join(t.TempDir(), "out.webp"), image.NewRGBA(image.Rect(0, 0, 1, 1)))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSaveAll(t *testing.T) {
	dir := t.TempDir()
	images := ToImages(testPixels())

	paths, err := SaveAll(filepath.Join(dir, "out.png"), images)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "out-0.png"), filepath.Join(dir, "out-1.png")}, paths)
	for _, p := range paths {
		assert.FileExists(t, p)
	}

	single, err := SaveAll(filepath.Join(dir, "one.bmp"), images[:1])
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "one.bmp")}, single)
}

func TestResize(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range src.Pix {
		src.Pix[i] = 200
	}
	dst := Resize(src, 8, 2)
	assert.Equal(t, image.Rect(0, 0, 8, 2), dst.Bounds())
	// einfarbige Flaeche bleibt (bis auf Rundung) einfarbig
	c := dst.RGBAAt(3, 1)
	assert.InDelta(t, 200, int(c.R), 1)
	assert.InDelta(t, 200, int(c.A), 1)
}
