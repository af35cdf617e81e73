//go:build onnx && cgo

// MODUL: onnx/models
// ZWECK: Text-Encoder, Denoiser und Decoder ueber ONNX Runtime
// INPUT: pdevine/tensor Tensoren im NHWC-Layout
// OUTPUT: float32 Tensoren
// NEBENEFFEKTE: ONNX Inference
// ABHAENGIGKEITEN: session.go, diffusion (Tensor-Helfer)
// HINWEISE: Eingaenge werden in Modell-Reihenfolge belegt. Abbruch per ctx
//           nur vor dem Aufruf, ein laufender Run wird nicht unterbrochen.

package onnx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdevine/tensor"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/ollama/stablediffusion/diffusion"
)

// ============================================================================
// Laden
// ============================================================================

// Load oeffnet die drei Modelle aus dir
func Load(dir string, opts Options) (*Models, error) {
	if err := InitRuntime(opts.LibraryPath); err != nil {
		return nil, fmt.Errorf("runtime init: %w", err)
	}

	textPath, diffusionPath, decoderPath := opts.paths(dir)
	m := &Models{}

	open := func(path string) (*session, error) {
		start := time.Now()
		s, err := newSession(path, opts)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.closers = append(m.closers, s.destroy)
		slog.Info("loaded model", "path", path, "duration", time.Since(start))
		return s, nil
	}

	text, err := open(textPath)
	if err != nil {
		return nil, err
	}
	den, err := open(diffusionPath)
	if err != nil {
		return nil, err
	}
	dec, err := open(decoderPath)
	if err != nil {
		return nil, err
	}

	m.TextEncoder = &TextEncoder{s: text}
	m.Denoiser = &Denoiser{s: den, fp16: opts.FP16}
	m.Decoder = &Decoder{s: dec}
	return m, nil
}

func toDense(data []float32, shape []int) *tensor.Dense {
	return diffusion.NewTensor(data, shape...)
}

// ============================================================================
// TextEncoder
// ============================================================================

// TextEncoder bildet (tokens, positions) auf [B,77,D] ab
type TextEncoder struct {
	s *session
}

// EncodeText implementiert diffusion.TextEncoder
func (e *TextEncoder) EncodeText(ctx context.Context, tokens, positions *tensor.Dense) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tok, err := diffusion.Int32s(tokens)
	if err != nil {
		return nil, err
	}
	pos, err := diffusion.Int32s(positions)
	if err != nil {
		return nil, err
	}

	tokVal, err := intValue(e.s.inputType(0), tok, tokens.Shape())
	if err != nil {
		return nil, fmt.Errorf("tokens tensor: %w", err)
	}
	posVal, err := intValue(e.s.inputType(1), pos, positions.Shape())
	if err != nil {
		tokVal.Destroy()
		return nil, fmt.Errorf("positions tensor: %w", err)
	}

	data, shape, err := e.s.run(tokVal, posVal)
	if err != nil {
		return nil, err
	}
	return toDense(data, shape), nil
}

// ============================================================================
// Denoiser
// ============================================================================

// Denoiser schaetzt das Rauschen aus (latent, t_emb, context)
type Denoiser struct {
	s    *session
	fp16 bool
}

func (d *Denoiser) inputType(i int) ElementType {
	if d.fp16 {
		return Float16
	}
	return d.s.inputType(i)
}

// Denoise implementiert diffusion.Denoiser
func (d *Denoiser) Denoise(ctx context.Context, latent, timeEmbedding, textContext *tensor.Dense) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var values []ort.Value
	for i, t := range []*tensor.Dense{latent, timeEmbedding, textContext} {
		data, err := diffusion.Float32s(t)
		if err != nil {
			return nil, err
		}
		v, err := floatValue(d.inputType(i), data, t.Shape())
		if err != nil {
			for _, prev := range values {
				prev.Destroy()
			}
			return nil, fmt.Errorf("input %d tensor: %w", i, err)
		}
		values = append(values, v)
	}

	data, shape, err := d.s.run(values...)
	if err != nil {
		return nil, err
	}
	return toDense(data, shape), nil
}

// ============================================================================
// Decoder
// ============================================================================

// Decoder bildet [B,H,W,4] auf Pixel [B,8H,8W,3] in [-1,1] ab
type Decoder struct {
	s *session
}

// Decode implementiert diffusion.Decoder
func (d *Decoder) Decode(ctx context.Context, latent *tensor.Dense) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := diffusion.Float32s(latent)
	if err != nil {
		return nil, err
	}
	v, err := floatValue(d.s.inputType(0), data, latent.Shape())
	if err != nil {
		return nil, fmt.Errorf("latent tensor: %w", err)
	}

	out, shape, err := d.s.run(v)
	if err != nil {
		return nil, err
	}
	return toDense(out, shape), nil
}
