// embedding.go - Sinusfoermiges Timestep-Embedding
//
// Bildet einen skalaren Diffusions-Timestep auf einen Vektor fester Laenge ab:
// erst die Cosinus-Haelfte, dann die Sinus-Haelfte.
package diffusion

import (
	"fmt"
	"math"
)

const (
	// DefaultEmbeddingDim ist die Breite des Zeit-Embeddings des Denoisers
	DefaultEmbeddingDim = 320

	// DefaultMaxPeriod ist die laengste Periode der Frequenzen
	DefaultMaxPeriod = 10000.0
)

// TimestepEmbedding berechnet freq_i = exp(-ln(maxPeriod) * i / half) fuer
// i in [0, half) und liefert cos(t*freq) ++ sin(t*freq).
func TimestepEmbedding(t float64, dim int, maxPeriod float64) ([]float32, error) {
	if dim <= 0 || dim%2 != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidEmbedding, dim)
	}
	if maxPeriod <= 0 {
		return nil, fmt.Errorf("%w: max period %g", ErrInvalidEmbedding, maxPeriod)
	}

	half := dim / 2
	logPeriod := math.Log(maxPeriod)
	emb := make([]float32, dim)
	for i := range half {
		freq := math.Exp(-logPeriod * float64(i) / float64(half))
		arg := t * freq
		emb[i] = float32(math.Cos(arg))
		emb[half+i] = float32(math.Sin(arg))
	}
	return emb, nil
}
