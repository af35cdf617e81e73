// MODUL: collaborators
// ZWECK: Schnittstellen zu den Netzwerk-Kollaborateuren des Samplers
// INPUT: Tensoren (pdevine/tensor), context.Context
// OUTPUT: Tensoren
// NEBENEFFEKTE: keine (Implementierungen koennen Modelle ausfuehren)
// ABHAENGIGKEITEN: github.com/pdevine/tensor
// HINWEISE: Implementierungen muessen deterministisch sein (feste Gewichte).
//           Denoiser muss nebenlaeufige Aufrufe vertragen, wenn
//           Guidance.Parallel gesetzt ist.

package diffusion

import (
	"context"

	"github.com/pdevine/tensor"
)

// Tokenizer zerlegt einen Prompt in Token-IDs inklusive Start- und End-Token.
type Tokenizer interface {
	Encode(prompt string) ([]int32, error)
}

// TextEncoder bildet tokens int32[B,77] und positions int32[B,77] auf
// float32[B,77,D] ab.
type TextEncoder interface {
	EncodeText(ctx context.Context, tokens, positions *tensor.Dense) (*tensor.Dense, error)
}

// Denoiser schaetzt das Rauschen: latent float32[B,H,W,4],
// timeEmbedding float32[B,320], context float32[B,77,D] -> float32[B,H,W,4].
type Denoiser interface {
	Denoise(ctx context.Context, latent, timeEmbedding, textContext *tensor.Dense) (*tensor.Dense, error)
}

// Decoder bildet float32[B,H,W,4] auf Pixel float32[B,8H,8W,3] im Bereich
// [-1,1] ab.
type Decoder interface {
	Decode(ctx context.Context, latent *tensor.Dense) (*tensor.Dense, error)
}

// Models buendelt die drei Netzwerk-Kollaborateure und den Tokenizer.
type Models struct {
	Tokenizer   Tokenizer
	TextEncoder TextEncoder
	Denoiser    Denoiser
	Decoder     Decoder
}
