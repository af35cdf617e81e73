// pixels.go - Quantisierung der Decoder-Ausgabe auf 8 Bit
package diffusion

import (
	"fmt"

	"github.com/pdevine/tensor"
)

// Pixels haelt RGB-Bilder als uint8 in der Form (Batch, Height, Width, 3).
type Pixels struct {
	Data   []uint8
	Batch  int
	Height int
	Width  int
}

// Shape gibt (Batch, Height, Width, 3) zurueck
func (p *Pixels) Shape() []int {
	return []int{p.Batch, p.Height, p.Width, 3}
}

// Image gibt die RGB-Bytes des i-ten Bildes zurueck (kein Kopieren)
func (p *Pixels) Image(i int) []uint8 {
	size := p.Height * p.Width * 3
	return p.Data[i*size : (i+1)*size]
}

// Quantize bildet Decoder-Werte aus [-1,1] per clip(((d+1)/2)*255, 0, 255)
// auf uint8 ab. Nachkommastellen werden abgeschnitten, NaN wird 0.
func Quantize(decoded *tensor.Dense) (*Pixels, error) {
	shape := []int(decoded.Shape())
	if len(shape) != 4 || shape[3] != 3 {
		return nil, fmt.Errorf("%w: decoder output has shape %v, want [B H W 3]", ErrShapeMismatch, shape)
	}
	data, err := Float32s(decoded)
	if err != nil {
		return nil, err
	}

	out := make([]uint8, len(data))
	for i, d := range data {
		v := ((d + 1) / 2) * 255
		switch {
		case !(v > 0):
			v = 0
		case v > 255:
			v = 255
		}
		out[i] = uint8(v)
	}
	return &Pixels{Data: out, Batch: shape[0], Height: shape[1], Width: shape[2]}, nil
}
