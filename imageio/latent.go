// latent.go - Latent-Snapshots als float16
//
// Format (little-endian):
//
//	"SDL1" | uint32 ndim | ndim x uint32 dims | prod(dims) x float16
package imageio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/pdevine/tensor"
	"github.com/x448/float16"

	"github.com/ollama/stablediffusion/diffusion"
)

var latentMagic = [4]byte{'S', 'D', 'L', '1'}

// ErrInvalidLatentFile wird bei falschem Header zurueckgegeben
var ErrInvalidLatentFile = errors.New("ungueltige latent-datei")

// maxLatentDims begrenzt die Anzahl der Dimensionen im Header
const maxLatentDims = 8

// maxLatentElements begrenzt die Gesamtzahl der Werte vor dem Allozieren
const maxLatentElements = 1 << 28

// WriteLatentFP16 schreibt latent verlustbehaftet als float16
func WriteLatentFP16(w io.Writer, latent *tensor.Dense) error {
	data, err := diffusion.Float32s(latent)
	if err != nil {
		return err
	}
	shape := latent.Shape()

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(latentMagic[:]); err != nil {
		return err
	}
	header := make([]uint32, 0, len(shape)+1)
	header = append(header, uint32(len(shape)))
	for _, d := range shape {
		header = append(header, uint32(d))
	}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return err
	}

	bits := make([]uint16, len(data))
	for i, v := range data {
		bits[i] = float16.Fromfloat32(v).Bits()
	}
	if err := binary.Write(bw, binary.LittleEndian, bits); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadLatentFP16 liest einen mit WriteLatentFP16 geschriebenen Snapshot
func ReadLatentFP16(r io.Reader) (*tensor.Dense, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLatentFile, err)
	}
	if magic != latentMagic {
		return nil, fmt.Errorf("%w: magic %q", ErrInvalidLatentFile, magic[:])
	}

	var ndim uint32
	if err := binary.Read(r, binary.LittleEndian, &ndim); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLatentFile, err)
	}
	if ndim == 0 || ndim > maxLatentDims {
		return nil, fmt.Errorf("%w: %d dimensions", ErrInvalidLatentFile, ndim)
	}

	dims := make([]uint32, ndim)
	if err := binary.Read(r, binary.LittleEndian, dims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLatentFile, err)
	}
	shape := make([]int, ndim)
	n := 1
	for i, d := range dims {
		if d == 0 || d > maxLatentElements || n > maxLatentElements/int(d) {
			return nil, fmt.Errorf("%w: invalid shape %v (max %d elements)", ErrInvalidLatentFile, dims, maxLatentElements)
		}
		shape[i] = int(d)
		n *= int(d)
	}

	bits := make([]uint16, n)
	if err := binary.Read(r, binary.LittleEndian, bits); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLatentFile, err)
	}
	data := make([]float32, n)
	for i, b := range bits {
		data[i] = float16.Frombits(b).Float32()
	}
	return diffusion.NewTensor(data, shape...), nil
}
