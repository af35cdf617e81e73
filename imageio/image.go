// MODUL: image
// ZWECK: Export quantisierter Pixel als Bilddateien
// INPUT: diffusion.Pixels, Zielpfad oder io.Writer
// OUTPUT: image.RGBA, kodierte Bilddaten
// NEBENEFFEKTE: Dateisystem-Schreibzugriff bei Save
// ABHAENGIGKEITEN: golang.org/x/image (bmp, tiff, draw), image/png, image/jpeg
// HINWEISE: Alpha ist immer 255

package imageio

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"github.com/ollama/stablediffusion/diffusion"
)

// JPEGQuality ist die Qualitaet fuer JPEG-Ausgaben
const JPEGQuality = 95

// ToImages wandelt jedes Batch-Element in ein RGBA-Bild
func ToImages(px *diffusion.Pixels) []*image.RGBA {
	images := make([]*image.RGBA, px.Batch)
	for i := range px.Batch {
		images[i] = ToImage(px, i)
	}
	return images
}

// ToImage wandelt Batch-Element i in ein RGBA-Bild
func ToImage(px *diffusion.Pixels, i int) *image.RGBA {
	src := px.Image(i)
	img := image.NewRGBA(image.Rect(0, 0, px.Width, px.Height))
	for p := range px.Width * px.Height {
		img.Pix[p*4+0] = src[p*3+0]
		img.Pix[p*4+1] = src[p*3+1]
		img.Pix[p*4+2] = src[p*3+2]
		img.Pix[p*4+3] = 255
	}
	return img
}

// Encode schreibt img im angegebenen Format nach w
func Encode(w io.Writer, img image.Image, format ImageFormat) error {
	switch format {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality})
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// Save schreibt img nach path, Format aus der Dateiendung
func Save(path string, img image.Image) error {
	format := FormatFromPath(path)
	if format == FormatUnknown {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("datei erstellen fehlgeschlagen: %w", err)
	}
	if err := Encode(f, img, format); err != nil {
		f.Close()
		return fmt.Errorf("bild kodieren fehlgeschlagen: %w", err)
	}
	return f.Close()
}

// SaveAll speichert alle Bilder. Bei mehr als einem Bild wird ein Index
// vor die Endung gesetzt (out.png -> out-0.png, out-1.png).
func SaveAll(path string, images []*image.RGBA) ([]string, error) {
	if len(images) == 1 {
		return []string{path}, Save(path, images[0])
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	paths := make([]string, len(images))
	for i, img := range images {
		paths[i] = fmt.Sprintf("%s-%d%s", base, i, ext)
		if err := Save(paths[i], img); err != nil {
			return nil, err
		}
	}
	return paths, nil
}

// Resize skaliert img auf width x height (Catmull-Rom)
func Resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}
