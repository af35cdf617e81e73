// pipeline.go - Laden von Tokenizer und ONNX-Modellen fuer die CLI
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ollama/stablediffusion/diffusion"
	"github.com/ollama/stablediffusion/envconfig"
	"github.com/ollama/stablediffusion/onnx"
	"github.com/ollama/stablediffusion/tokenizer"
)

// ErrLoadTimeout wird zurueckgegeben wenn das Laden SD_LOAD_TIMEOUT ueberschreitet
var ErrLoadTimeout = errors.New("timed out loading models")

// loadPipeline laedt die Pipeline. Tests ersetzen die Variable.
var loadPipeline = defaultLoadPipeline

type loaded struct {
	pipeline *diffusion.Pipeline
	closer   io.Closer
	err      error
}

// runtimeCloser schliesst die Sessions und danach die ONNX Runtime
type runtimeCloser struct {
	models *onnx.Models
}

func (r runtimeCloser) Close() error {
	return errors.Join(r.models.Close(), onnx.DestroyRuntime())
}

// defaultLoadPipeline laedt Tokenizer und die drei ONNX-Modelle
func defaultLoadPipeline(cmd *cobra.Command) (*diffusion.Pipeline, io.Closer, error) {
	modelsDir := envconfig.Models()
	if v, _ := cmd.Flags().GetString("models"); v != "" {
		modelsDir = v
	}
	tokenizerDir := envconfig.Tokenizer()
	if v, _ := cmd.Flags().GetString("tokenizer"); v != "" {
		tokenizerDir = v
	}

	opts := onnx.DefaultOptions()
	opts.LibraryPath = envconfig.OrtLibrary()
	opts.UseGPU = envconfig.GPU()
	opts.FP16 = envconfig.FP16()

	return awaitLoad(cmd.Context(), envconfig.LoadTimeout(), func() (*diffusion.Pipeline, io.Closer, error) {
		start := time.Now()
		tok, err := tokenizer.Load(tokenizerDir)
		if err != nil {
			return nil, nil, fmt.Errorf("load tokenizer: %w", err)
		}

		models, err := onnx.Load(modelsDir, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("load models from %s: %w", modelsDir, err)
		}
		closer := runtimeCloser{models: models}

		p, err := diffusion.NewPipeline(diffusion.Models{
			Tokenizer:   tok,
			TextEncoder: models.TextEncoder,
			Denoiser:    models.Denoiser,
			Decoder:     models.Decoder,
		})
		if err != nil {
			closer.Close()
			return nil, nil, err
		}
		slog.Debug("pipeline loaded", "models", modelsDir, "tokenizer", tokenizerDir, "duration", time.Since(start))
		return p, closer, nil
	})
}

// awaitLoad fuehrt load im Hintergrund aus und wartet hoechstens timeout.
// Wird das Ergebnis nicht mehr abgeholt, schliesst der Loader es selbst.
func awaitLoad(ctx context.Context, timeout time.Duration, load func() (*diffusion.Pipeline, io.Closer, error)) (*diffusion.Pipeline, io.Closer, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan loaded)
	abandoned := make(chan struct{})
	go func() {
		var r loaded
		r.pipeline, r.closer, r.err = load()
		select {
		case results <- r:
		case <-abandoned:
			if r.closer != nil {
				if err := r.closer.Close(); err != nil {
					slog.Warn("closing abandoned models", "error", err)
				}
				slog.Debug("closed models loaded after timeout")
			}
		}
	}()

	select {
	case r := <-results:
		if r.err != nil {
			return nil, nil, r.err
		}
		return r.pipeline, r.closer, nil
	case <-ctx.Done():
		close(abandoned)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("%w after %s", ErrLoadTimeout, timeout)
		}
		return nil, nil, ctx.Err()
	}
}

// addModelFlags registriert --models und --tokenizer
func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().String("models", "", "Directory with the ONNX models (default $SD_MODELS)")
	cmd.Flags().String("tokenizer", "", "Directory with vocab.json and merges.txt (default $SD_TOKENIZER)")
}
