// MODUL: onnx
// ZWECK: ONNX Runtime Implementierung von Text-Encoder, Denoiser und Decoder
// INPUT: Modell-Verzeichnis mit text_encoder.onnx, diffusion_model.onnx, decoder.onnx
// OUTPUT: diffusion.TextEncoder, diffusion.Denoiser, diffusion.Decoder
// NEBENEFFEKTE: Alloziert ONNX Runtime Ressourcen (nur mit Build-Tag onnx und cgo)
// ABHAENGIGKEITEN: onnxruntime_go (models.go, session.go), halfprec.go
// HINWEISE: Ohne cgo oder Build-Tag liefert Load immer ErrCGORequired.
//           Alle Modelle arbeiten im NHWC-Layout.

package onnx

import (
	"errors"
	"path/filepath"

	"github.com/ollama/stablediffusion/diffusion"
)

// ============================================================================
// Konstanten
// ============================================================================

const (
	DefaultTextEncoderFile = "text_encoder.onnx"
	DefaultDiffusionFile   = "diffusion_model.onnx"
	DefaultDecoderFile     = "decoder.onnx"
)

// ============================================================================
// Fehler-Definitionen
// ============================================================================

var (
	// ErrCGORequired wird zurueckgegeben wenn CGO oder das Build-Tag fehlt
	ErrCGORequired = errors.New("onnx: built without onnx runtime support (requires cgo and -tags onnx)")

	ErrModelLoad     = errors.New("onnx: modell laden fehlgeschlagen")
	ErrSessionCreate = errors.New("onnx: session erstellen fehlgeschlagen")
	ErrInference     = errors.New("onnx: inference fehlgeschlagen")
	ErrAlreadyClosed = errors.New("onnx: modelle bereits geschlossen")
	ErrUnsupported   = errors.New("onnx: nicht unterstuetzter tensor-typ")
)

// ============================================================================
// Optionen
// ============================================================================

// Options konfiguriert das Laden der drei Modelle
type Options struct {
	TextEncoderFile string
	DiffusionFile   string
	DecoderFile     string

	// LibraryPath ist der Pfad zur onnxruntime Shared Library (leer = System-Default)
	LibraryPath string

	// NumThreads fuer Intra-Op Parallelisierung (0 = auto)
	NumThreads int

	// UseGPU aktiviert CUDA Execution Provider, Fallback auf CPU
	UseGPU      bool
	GPUDeviceID int

	// FP16 erzwingt float16-Eingaben fuer den Denoiser, auch wenn das Modell
	// float32 meldet
	FP16 bool
}

// DefaultOptions gibt Standard-Optionen zurueck
func DefaultOptions() Options {
	return Options{
		TextEncoderFile: DefaultTextEncoderFile,
		DiffusionFile:   DefaultDiffusionFile,
		DecoderFile:     DefaultDecoderFile,
	}
}

// paths gibt die drei Modellpfade in dir zurueck
func (o Options) paths(dir string) (textEncoder, diffusionModel, decoder string) {
	join := func(name, def string) string {
		if name == "" {
			name = def
		}
		return filepath.Join(dir, name)
	}
	return join(o.TextEncoderFile, DefaultTextEncoderFile),
		join(o.DiffusionFile, DefaultDiffusionFile),
		join(o.DecoderFile, DefaultDecoderFile)
}

// ============================================================================
// Models
// ============================================================================

// Models buendelt die geladenen Netzwerke. Close gibt alle Sessions frei.
type Models struct {
	TextEncoder diffusion.TextEncoder
	Denoiser    diffusion.Denoiser
	Decoder     diffusion.Decoder

	closers []func()
}

// Close gibt alle Sessions frei
func (m *Models) Close() error {
	for _, c := range m.closers {
		c()
	}
	m.closers = nil
	return nil
}
