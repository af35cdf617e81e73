// MODUL: sampler
// ZWECK: Orchestrierung eines Generierungs-Requests (Zustandsmaschine)
// INPUT: Options (Prompt, Aufloesung, Schritte, Guidance, Temperatur, Seed, Batch)
// OUTPUT: Result mit quantisierten Pixeln und finalem Latent
// NEBENEFFEKTE: ruft Tokenizer, Text-Encoder, Denoiser und Decoder auf; Logging
// ABHAENGIGKEITEN: pdevine/tensor, gonum distuv, logutil
// HINWEISE: Initialized -> Stepping(i) -> Decoded, sonst Failed.
//           Ein Sampler ist einmalig verwendbar. Abbruch nur an Schrittgrenzen.

package diffusion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pdevine/tensor"

	"github.com/ollama/stablediffusion/logutil"
)

// State ist der Zustand eines Samplers
type State int

const (
	StateInitialized State = iota
	StateStepping
	StateDecoded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateStepping:
		return "stepping"
	case StateDecoded:
		return "decoded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result ist das Ergebnis eines erfolgreichen Requests.
type Result struct {
	Images   *Pixels
	Latent   *tensor.Dense
	Schedule *Schedule
	Seed     int64
	Duration time.Duration
}

// =============================================================================
// Pipeline
// =============================================================================

// Pipeline haelt die zwischen Requests geteilten, unveraenderlichen Teile:
// Modelle und Alpha-Tabelle.
type Pipeline struct {
	Models

	// Table ist die Alpha-Tabelle; nil bedeutet DefaultTable()
	Table *Table

	EmbeddingDim int
	MaxPeriod    float64
}

// NewPipeline prueft, dass alle Kollaborateure gesetzt sind.
func NewPipeline(m Models) (*Pipeline, error) {
	switch {
	case m.Tokenizer == nil:
		return nil, errors.New("diffusion: tokenizer is required")
	case m.TextEncoder == nil:
		return nil, errors.New("diffusion: text encoder is required")
	case m.Denoiser == nil:
		return nil, errors.New("diffusion: denoiser is required")
	case m.Decoder == nil:
		return nil, errors.New("diffusion: decoder is required")
	}
	return &Pipeline{Models: m, Table: DefaultTable()}, nil
}

// NewSampler erzeugt einen Sampler fuer genau einen Request
func (p *Pipeline) NewSampler(opts Options) *Sampler {
	return &Sampler{pipeline: p, opts: opts, step: -1}
}

// Generate ist NewSampler(opts).Run(ctx)
func (p *Pipeline) Generate(ctx context.Context, opts Options) (*Result, error) {
	return p.NewSampler(opts).Run(ctx)
}

func (p *Pipeline) table() *Table {
	if p.Table == nil {
		return DefaultTable()
	}
	return p.Table
}

// =============================================================================
// Sampler
// =============================================================================

// Sampler fuehrt einen Request aus und besitzt Latent, Schedule und
// Conditioning dieses Requests.
type Sampler struct {
	pipeline *Pipeline
	opts     Options

	mu    sync.Mutex
	state State
	step  int
	used  bool
}

// State gibt den aktuellen Zustand und den Schedule-Index (nur bei
// StateStepping sinnvoll, sonst -1) zurueck.
func (s *Sampler) State() (State, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.step
}

func (s *Sampler) setState(state State, step int) {
	s.mu.Lock()
	s.state, s.step = state, step
	s.mu.Unlock()
}

// Run fuehrt den kompletten Request aus. Bei einem Fehler wird nie ein
// Teilergebnis zurueckgegeben.
func (s *Sampler) Run(ctx context.Context) (_ *Result, err error) {
	s.mu.Lock()
	if s.used {
		s.mu.Unlock()
		return nil, ErrSamplerUsed
	}
	s.used = true
	s.mu.Unlock()

	defer func() {
		if err != nil {
			s.setState(StateFailed, -1)
		}
	}()

	opts := s.opts
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	p := s.pipeline
	start := time.Now()

	tokens, err := p.Tokenizer.Encode(opts.Prompt)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	if len(tokens) >= MaxTextLength {
		return nil, fmt.Errorf("%w: %d tokens, must be < %d", ErrPromptTooLong, len(tokens), MaxTextLength)
	}

	cond, err := BuildConditioning(ctx, p.TextEncoder, tokens, opts.BatchSize)
	if err != nil {
		return nil, err
	}

	sched, err := p.table().Subsample(opts.Steps)
	if err != nil {
		return nil, err
	}

	noise := NewNoise(opts.Seed)
	shape := LatentShape(opts.BatchSize, opts.Height, opts.Width)
	latent := InitialLatent(noise, shape...)

	guidance := &Guidance{
		Denoiser:     p.Denoiser,
		Scale:        opts.GuidanceScale,
		EmbeddingDim: p.EmbeddingDim,
		MaxPeriod:    p.MaxPeriod,
		Parallel:     opts.ParallelGuidance,
	}

	slog.Debug("sampling", "tokens", len(tokens), "steps", sched.Len(), "latent", shape, "guidance", opts.GuidanceScale, "seed", opts.Seed)

	total := sched.Len()
	for i := total - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.setState(StateStepping, i)
		stepStart := time.Now()

		timestep, alpha, alphaPrev := sched.Step(i)
		eps, err := guidance.Predict(ctx, latent, timestep, cond)
		if err != nil {
			return nil, fmt.Errorf("step %d (t=%d): %w", i, timestep, err)
		}
		next, predX0, err := DDIMUpdate(latent, eps, alpha, alphaPrev, opts.Temperature, noise)
		if err != nil {
			return nil, fmt.Errorf("step %d (t=%d): %w", i, timestep, err)
		}
		latent = next

		logutil.TraceContext(ctx, "ddim step", "index", i, "timestep", timestep, "alpha", alpha, "alpha_prev", alphaPrev, "elapsed", time.Since(stepStart))

		if opts.OnStep != nil {
			opts.OnStep(StepInfo{
				Index:     i,
				Timestep:  timestep,
				Alpha:     alpha,
				AlphaPrev: alphaPrev,
				PredX0:    predX0,
				Latent:    latent,
			})
		}
		if opts.Progress != nil {
			opts.Progress(total-i, total)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decoded, err := p.Decoder.Decode(ctx, latent)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := checkShape("decoded image", decoded, []int{opts.BatchSize, opts.Height, opts.Width, 3}); err != nil {
		return nil, err
	}
	images, err := Quantize(decoded)
	if err != nil {
		return nil, err
	}

	s.setState(StateDecoded, -1)
	elapsed := time.Since(start)
	slog.Debug("sampling done", "steps", total, "batch", opts.BatchSize, "duration", elapsed)

	return &Result{
		Images:   images,
		Latent:   latent,
		Schedule: sched,
		Seed:     opts.Seed,
		Duration: elapsed,
	}, nil
}
