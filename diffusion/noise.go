// noise.go - Geseedetes Start-Latent
package diffusion

import (
	"github.com/pdevine/tensor"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// NewNoise gibt eine Standardnormalverteilung zurueck, die vollstaendig
// durch seed bestimmt ist.
func NewNoise(seed int64) *distuv.Normal {
	return &distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(uint64(seed))}
}

// InitialLatent zieht ein Latent der Form shape aus noise, Element fuer
// Element in Speicherreihenfolge.
func InitialLatent(noise *distuv.Normal, shape ...int) *tensor.Dense {
	n := 1
	for _, d := range shape {
		n *= d
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(noise.Rand())
	}
	return NewTensor(data, shape...)
}
