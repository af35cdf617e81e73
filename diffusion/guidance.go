// guidance.go - Classifier-Free Guidance
//
// Zwei Denoiser-Aufrufe pro Schritt (unkonditioniert und konditioniert),
// kombiniert zu n_uncond + s*(n_cond - n_uncond).
package diffusion

import (
	"cmp"
	"context"
	"fmt"

	"github.com/pdevine/tensor"
	"golang.org/x/sync/errgroup"
)

// Guidance berechnet die gefuehrte Rauschschaetzung fuer einen Schritt.
type Guidance struct {
	Denoiser Denoiser

	// Scale ist der Guidance-Faktor (0 = unkonditioniert, 1 = konditioniert)
	Scale float64

	// EmbeddingDim und MaxPeriod parametrisieren das Zeit-Embedding.
	// Nullwerte stehen fuer DefaultEmbeddingDim / DefaultMaxPeriod.
	EmbeddingDim int
	MaxPeriod    float64

	// Parallel fuehrt beide Denoiser-Aufrufe nebenlaeufig aus
	Parallel bool
}

// TimeEmbedding gibt das ueber den Batch replizierte Zeit-Embedding [B,dim] zurueck
func (g *Guidance) TimeEmbedding(timestep, batch int) (*tensor.Dense, error) {
	dim := cmp.Or(g.EmbeddingDim, DefaultEmbeddingDim)
	period := cmp.Or(g.MaxPeriod, DefaultMaxPeriod)
	emb, err := TimestepEmbedding(float64(timestep), dim, period)
	if err != nil {
		return nil, err
	}
	return NewTensor(repeatRows(emb, batch), batch, dim), nil
}

// Predict gibt die gefuehrte Rauschschaetzung mit der Form von x zurueck.
// x und cond werden nur gelesen.
func (g *Guidance) Predict(ctx context.Context, x *tensor.Dense, timestep int, cond *Conditioning) (*tensor.Dense, error) {
	shape := []int(x.Shape())
	if len(shape) != 4 {
		return nil, fmt.Errorf("%w: latent has shape %v", ErrShapeMismatch, shape)
	}

	emb, err := g.TimeEmbedding(timestep, shape[0])
	if err != nil {
		return nil, err
	}

	var uncond, condOut *tensor.Dense
	if g.Parallel {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			var err error
			uncond, err = g.Denoiser.Denoise(egCtx, x, emb, cond.Uncond)
			return err
		})
		eg.Go(func() error {
			var err error
			condOut, err = g.Denoiser.Denoise(egCtx, x, emb, cond.Cond)
			return err
		})
		if err := eg.Wait(); err != nil {
			return nil, fmt.Errorf("denoise: %w", err)
		}
	} else {
		if uncond, err = g.Denoiser.Denoise(ctx, x, emb, cond.Uncond); err != nil {
			return nil, fmt.Errorf("denoise unconditional: %w", err)
		}
		if condOut, err = g.Denoiser.Denoise(ctx, x, emb, cond.Cond); err != nil {
			return nil, fmt.Errorf("denoise conditional: %w", err)
		}
	}

	if err := checkShape("unconditional noise estimate", uncond, shape); err != nil {
		return nil, err
	}
	if err := checkShape("conditional noise estimate", condOut, shape); err != nil {
		return nil, err
	}

	u, err := Float32s(uncond)
	if err != nil {
		return nil, err
	}
	c, err := Float32s(condOut)
	if err != nil {
		return nil, err
	}

	return NewTensor(Combine(u, c, g.Scale), shape...), nil
}

// Combine berechnet u + s*(c - u) in einen neuen Slice. Bei s == 1 ist das
// Ergebnis bitgenau c.
func Combine(u, c []float32, s float64) []float32 {
	if s == 1 {
		return clone(c)
	}
	diff := clone(c)
	axpy(-1, u, diff)
	out := clone(u)
	axpy(float32(s), diff, out)
	return out
}
