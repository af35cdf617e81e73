// options.go - Request-Parameter des Samplers
package diffusion

import (
	"fmt"
	"math"

	"github.com/pdevine/tensor"
)

// Options sind die Parameter einer Generierungs-Anfrage.
type Options struct {
	Prompt        string
	Height        int // Vielfaches von 8
	Width         int // Vielfaches von 8
	Steps         int
	GuidanceScale float64
	Temperature   float64
	Seed          int64
	BatchSize     int

	// ParallelGuidance fuehrt die zwei Denoiser-Aufrufe pro Schritt
	// nebenlaeufig aus. Der Denoiser muss das unterstuetzen.
	ParallelGuidance bool

	// Progress wird nach jedem Schritt mit (erledigt, gesamt) aufgerufen
	Progress func(step, total int)

	// OnStep erhaelt nach jedem Schritt den Zwischenstand inklusive pred_x0
	OnStep func(StepInfo)
}

// StepInfo beschreibt einen abgeschlossenen Sampling-Schritt.
type StepInfo struct {
	Index     int // Index im Schedule (absteigend)
	Timestep  int
	Alpha     float64
	AlphaPrev float64
	PredX0    *tensor.Dense
	Latent    *tensor.Dense
}

// DefaultOptions gibt die Standardwerte zurueck (512x512, 25 Schritte, Guidance 7.5)
func DefaultOptions() Options {
	return Options{
		Height:        512,
		Width:         512,
		Steps:         25,
		GuidanceScale: 7.5,
		Temperature:   1,
		BatchSize:     1,
	}
}

// Validate prueft die Parameter, bevor irgendein Modell aufgerufen wird.
func (o *Options) Validate() error {
	if o.Height <= 0 || o.Height%LatentScale != 0 {
		return fmt.Errorf("%w: height %d must be a positive multiple of %d", ErrInvalidOptions, o.Height, LatentScale)
	}
	if o.Width <= 0 || o.Width%LatentScale != 0 {
		return fmt.Errorf("%w: width %d must be a positive multiple of %d", ErrInvalidOptions, o.Width, LatentScale)
	}
	if o.Steps < 1 || o.Steps > DefaultTrainSteps {
		return fmt.Errorf("%w: steps must be in [1, %d], got %d", ErrInvalidSchedule, DefaultTrainSteps, o.Steps)
	}
	if o.GuidanceScale < 0 || math.IsNaN(o.GuidanceScale) {
		return fmt.Errorf("%w: guidance scale %g", ErrInvalidOptions, o.GuidanceScale)
	}
	if o.Temperature < 0 || math.IsNaN(o.Temperature) {
		return fmt.Errorf("%w: temperature %g", ErrInvalidOptions, o.Temperature)
	}
	if o.BatchSize < 1 {
		return fmt.Errorf("%w: batch size %d", ErrInvalidOptions, o.BatchSize)
	}
	return nil
}
