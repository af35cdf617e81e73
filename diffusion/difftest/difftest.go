// Package difftest stellt deterministische Ersatz-Kollaborateure fuer Tests
// der Pakete oberhalb von diffusion bereit. Die Ausgaben sind billig zu
// berechnen und haben die Formen der echten Netze.
package difftest

import (
	"context"
	"math"
	"strings"

	"github.com/pdevine/tensor"

	"github.com/ollama/stablediffusion/diffusion"
)

// ContextWidth ist die Breite D der Text-Embeddings
const ContextWidth = 8

// Tokenizer bildet jedes Wort auf 1000+len(wort) ab
type Tokenizer struct{}

func (Tokenizer) Encode(prompt string) ([]int32, error) {
	words := strings.Fields(prompt)
	tokens := make([]int32, 0, len(words)+2)
	tokens = append(tokens, diffusion.StartOfText)
	for _, w := range words {
		tokens = append(tokens, int32(1000+len(w)))
	}
	return append(tokens, diffusion.EndOfText), nil
}

// TextEncoder bildet Token id auf den konstanten Vektor (id%97)/97 ab
type TextEncoder struct{}

func (TextEncoder) EncodeText(_ context.Context, tokens, _ *tensor.Dense) (*tensor.Dense, error) {
	ids, err := diffusion.Int32s(tokens)
	if err != nil {
		return nil, err
	}
	out := make([]float32, 0, len(ids)*ContextWidth)
	for _, id := range ids {
		v := float32(id%97) / 97
		for range ContextWidth {
			out = append(out, v)
		}
	}
	shape := tokens.Shape()
	return diffusion.NewTensor(out, shape[0], shape[1], ContextWidth), nil
}

// Denoiser: eps = 0.5*x + 0.01*ctx[0] + 0.001*emb[0] pro Batch-Element
type Denoiser struct{}

func (Denoiser) Denoise(_ context.Context, latent, emb, textContext *tensor.Dense) (*tensor.Dense, error) {
	x, err := diffusion.Float32s(latent)
	if err != nil {
		return nil, err
	}
	e, err := diffusion.Float32s(emb)
	if err != nil {
		return nil, err
	}
	c, err := diffusion.Float32s(textContext)
	if err != nil {
		return nil, err
	}

	shape := latent.Shape()
	batch := shape[0]
	per := len(x) / batch
	embPer := len(e) / batch
	ctxPer := len(c) / batch

	out := make([]float32, len(x))
	for b := range batch {
		bias := 0.01*c[b*ctxPer] + 0.001*e[b*embPer]
		for i := range per {
			out[b*per+i] = 0.5*x[b*per+i] + bias
		}
	}
	return diffusion.NewTensor(out, shape...), nil
}

// Decoder skaliert die ersten drei Kanaele per Nearest-Neighbour um 8 hoch
// und begrenzt sie mit tanh auf [-1,1]
type Decoder struct{}

func (Decoder) Decode(_ context.Context, latent *tensor.Dense) (*tensor.Dense, error) {
	x, err := diffusion.Float32s(latent)
	if err != nil {
		return nil, err
	}
	shape := latent.Shape()
	b, h, w, ch := shape[0], shape[1], shape[2], shape[3]
	s := diffusion.LatentScale
	H, W := h*s, w*s

	out := make([]float32, b*H*W*3)
	for n := range b {
		for y := range H {
			for xx := range W {
				src := ((n*h+y/s)*w + xx/s) * ch
				dst := ((n*H+y)*W + xx) * 3
				for k := range 3 {
					out[dst+k] = float32(math.Tanh(float64(x[src+k])))
				}
			}
		}
	}
	return diffusion.NewTensor(out, b, H, W, 3), nil
}

// Models gibt einen vollstaendigen Satz Ersatz-Kollaborateure zurueck
func Models() diffusion.Models {
	return diffusion.Models{
		Tokenizer:   Tokenizer{},
		TextEncoder: TextEncoder{},
		Denoiser:    Denoiser{},
		Decoder:     Decoder{},
	}
}

// Pipeline gibt eine Pipeline mit den Ersatz-Kollaborateuren zurueck
func Pipeline() *diffusion.Pipeline {
	p, err := diffusion.NewPipeline(Models())
	if err != nil {
		panic(err)
	}
	return p
}
