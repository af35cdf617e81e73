// tensors.go - Tensor-Hilfsfunktionen fuer den Sampler
//
// Enthaelt:
// - NewLatent/NewTensor: float32-Tensoren mit Form erzeugen
// - Float32s/Int32s: typisierten Backing-Slice lesen
// - repeatRows: Vektor ueber die Batch-Dimension replizieren
// - blas32-Wrapper fuer elementweise Arithmetik
package diffusion

import (
	"fmt"
	"slices"

	"github.com/pdevine/tensor"
	"gonum.org/v1/gonum/blas/blas32"
)

// LatentChannels ist die Kanalzahl des latenten Raums
const LatentChannels = 4

// LatentScale ist der Faktor zwischen Pixel- und Latent-Aufloesung
const LatentScale = 8

// NewTensor erzeugt einen float32-Tensor. data wird nicht kopiert.
func NewTensor(data []float32, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// NewInt32Tensor erzeugt einen int32-Tensor. data wird nicht kopiert.
func NewInt32Tensor(data []int32, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// LatentShape gibt die Form (batch, height/8, width/8, 4) zurueck
func LatentShape(batch, height, width int) []int {
	return []int{batch, height / LatentScale, width / LatentScale, LatentChannels}
}

// Float32s gibt den Backing-Slice eines float32-Tensors zurueck
func Float32s(t *tensor.Dense) ([]float32, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil tensor", ErrShapeMismatch)
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("%w: expected float32 tensor, got %v", ErrShapeMismatch, t.Dtype())
	}
	return data, nil
}

// Int32s gibt den Backing-Slice eines int32-Tensors zurueck
func Int32s(t *tensor.Dense) ([]int32, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil tensor", ErrShapeMismatch)
	}
	data, ok := t.Data().([]int32)
	if !ok {
		return nil, fmt.Errorf("%w: expected int32 tensor, got %v", ErrShapeMismatch, t.Dtype())
	}
	return data, nil
}

// checkShape prueft, dass t genau die Form want hat
func checkShape(name string, t *tensor.Dense, want []int) error {
	if t == nil {
		return fmt.Errorf("%w: %s is nil", ErrShapeMismatch, name)
	}
	if got := []int(t.Shape()); !slices.Equal(got, want) {
		return fmt.Errorf("%w: %s has shape %v, want %v", ErrShapeMismatch, name, got, want)
	}
	return nil
}

// repeatRows wiederholt row batch-mal entlang einer neuen fuehrenden Achse.
// Keine Variation pro Batch-Element.
func repeatRows(row []float32, batch int) []float32 {
	out := make([]float32, 0, len(row)*batch)
	for range batch {
		out = append(out, row...)
	}
	return out
}

// repeatInt32 ist repeatRows fuer Token- und Positions-Sequenzen
func repeatInt32(row []int32, batch int) []int32 {
	out := make([]int32, 0, len(row)*batch)
	for range batch {
		out = append(out, row...)
	}
	return out
}

// =============================================================================
// blas32-Wrapper
// =============================================================================

func vec(data []float32) blas32.Vector {
	return blas32.Vector{N: len(data), Inc: 1, Data: data}
}

// clone kopiert data in einen neuen Slice
func clone(data []float32) []float32 {
	out := make([]float32, len(data))
	blas32.Copy(vec(data), vec(out))
	return out
}

// axpy berechnet y += alpha*x
func axpy(alpha float32, x, y []float32) {
	blas32.Axpy(alpha, vec(x), vec(y))
}

// scal berechnet x *= alpha
func scal(alpha float32, x []float32) {
	blas32.Scal(alpha, vec(x))
}
