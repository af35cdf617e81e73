// MODUL: ddim
// ZWECK: Deterministischer DDIM-Rueckschritt (sigma = 0)
// INPUT: Latent x, gefuehrte Rauschschaetzung e_t, a_t, a_prev, Temperatur
// OUTPUT: x_prev (naechstes Latent) und pred_x0 (Schaetzung des rauschfreien Latents)
// NEBENEFFEKTE: zieht Zufallszahlen nur bei sigma > 0
// ABHAENGIGKEITEN: gonum blas32 (ueber tensors.go), gonum distuv
// HINWEISE: Koeffizienten in float64, Anwendung auf float32-Tensoren.
//           x und e_t werden nicht veraendert.

package diffusion

import (
	"fmt"
	"math"

	"github.com/pdevine/tensor"
	"gonum.org/v1/gonum/stat/distuv"
)

// ddimEta ist 0: deterministischer Sampler. Der Rauschterm bleibt erhalten,
// ist aber immer null.
const ddimEta = 0.0

// DDIMSigma berechnet eta*sqrt((1-a_prev)/(1-a_t))*sqrt(1-a_t/a_prev)
func DDIMSigma(eta, aT, aPrev float64) float64 {
	if eta == 0 {
		return 0
	}
	return eta * math.Sqrt((1-aPrev)/(1-aT)) * math.Sqrt(1-aT/aPrev)
}

// DDIMUpdate fuehrt einen Rueckschritt aus:
//
//	pred_x0 = (x - sqrt(1-a_t)*e_t) / sqrt(a_t)
//	dir_xt  = sqrt(1 - a_prev - sigma^2) * e_t
//	x_prev  = sqrt(a_prev)*pred_x0 + dir_xt + sigma*N(0,1)*temperature
//
// noise darf nil sein, solange sigma 0 ist.
func DDIMUpdate(x, eps *tensor.Dense, aT, aPrev, temperature float64, noise *distuv.Normal) (xPrev, predX0 *tensor.Dense, err error) {
	if math.IsNaN(aT) || aT <= 0 || aT > 1 {
		return nil, nil, fmt.Errorf("%w: a_t = %g", ErrNumericInstability, aT)
	}
	if math.IsNaN(aPrev) || aPrev < 0 || aPrev > 1 {
		return nil, nil, fmt.Errorf("%w: a_prev = %g", ErrNumericInstability, aPrev)
	}

	shape := []int(x.Shape())
	if err := checkShape("noise estimate", eps, shape); err != nil {
		return nil, nil, err
	}
	xs, err := Float32s(x)
	if err != nil {
		return nil, nil, err
	}
	es, err := Float32s(eps)
	if err != nil {
		return nil, nil, err
	}

	sigma := DDIMSigma(ddimEta, aT, aPrev)
	dirVar := 1 - aPrev - sigma*sigma
	if math.IsNaN(dirVar) || dirVar < 0 {
		return nil, nil, fmt.Errorf("%w: 1 - a_prev - sigma^2 = %g", ErrNumericInstability, dirVar)
	}

	pred := clone(xs)
	axpy(float32(-math.Sqrt(1-aT)), es, pred)
	scal(float32(1/math.Sqrt(aT)), pred)

	next := clone(pred)
	scal(float32(math.Sqrt(aPrev)), next)
	axpy(float32(math.Sqrt(dirVar)), es, next)

	if sigma > 0 {
		if noise == nil {
			return nil, nil, fmt.Errorf("%w: sigma %g without noise source", ErrNumericInstability, sigma)
		}
		for i := range next {
			next[i] += float32(sigma * noise.Rand() * temperature)
		}
	}

	for i, v := range next {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, nil, fmt.Errorf("%w: non-finite latent value at %d", ErrNumericInstability, i)
		}
	}

	return NewTensor(next, shape...), NewTensor(pred, shape...), nil
}
