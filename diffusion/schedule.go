// MODUL: schedule
// ZWECK: Noise-Schedule - kumulative Alpha-Tabelle und unterabgetasteter Zeitplan
// INPUT: Alpha-Tabelle (Default: Stable Diffusion v1), Anzahl Sampling-Schritte
// OUTPUT: Schedule mit aufsteigenden Timesteps, Alphas und Vorgaenger-Alphas
// NEBENEFFEKTE: keine (Default-Tabelle wird einmalig pro Prozess berechnet)
// ABHAENGIGKEITEN: gonum/floats (Span, CumProd)
// HINWEISE: Tabelle ist unveraenderlich und wird zwischen Requests geteilt

package diffusion

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// Parameter der Stable-Diffusion-v1 Trainings-Schedule (scaled_linear)
const (
	DefaultTrainSteps = 1000
	DefaultBetaStart  = 0.00085
	DefaultBetaEnd    = 0.012
)

// Table bildet einen Diffusions-Timestep t auf alphas_cumprod[t] ab.
// Werte liegen in (0,1] und fallen monoton mit t.
type Table struct {
	alphas []float64
}

var defaultTable = sync.OnceValue(func() *Table {
	t, err := NewScaledLinearTable(DefaultTrainSteps, DefaultBetaStart, DefaultBetaEnd)
	if err != nil {
		panic(err)
	}
	return t
})

// DefaultTable gibt die prozessweit geteilte Stable-Diffusion-v1 Tabelle zurueck
func DefaultTable() *Table {
	return defaultTable()
}

// NewScaledLinearTable berechnet alphas_cumprod aus
// betas = linspace(sqrt(betaStart), sqrt(betaEnd), n)^2.
func NewScaledLinearTable(n int, betaStart, betaEnd float64) (*Table, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least 2 train steps, got %d", ErrInvalidSchedule, n)
	}
	if betaStart <= 0 || betaEnd >= 1 || betaStart > betaEnd {
		return nil, fmt.Errorf("%w: beta range [%g, %g]", ErrInvalidSchedule, betaStart, betaEnd)
	}

	keep := make([]float64, n)
	floats.Span(keep, math.Sqrt(betaStart), math.Sqrt(betaEnd))
	for i, b := range keep {
		keep[i] = 1 - b*b
	}

	alphas := make([]float64, n)
	floats.CumProd(alphas, keep)
	return NewTable(alphas)
}

// NewTable uebernimmt eine vorberechnete Tabelle (wird kopiert) und prueft
// die physikalische Invariante.
func NewTable(alphas []float64) (*Table, error) {
	if len(alphas) < 2 {
		return nil, fmt.Errorf("%w: table needs at least 2 entries", ErrInvalidSchedule)
	}
	prev := 1.0
	for t, a := range alphas {
		if math.IsNaN(a) || a <= 0 || a > 1 {
			return nil, fmt.Errorf("%w: alphas_cumprod[%d] = %g outside (0,1]", ErrInvalidSchedule, t, a)
		}
		if a > prev {
			return nil, fmt.Errorf("%w: alphas_cumprod increases at t=%d", ErrInvalidSchedule, t)
		}
		prev = a
	}
	return &Table{alphas: slices.Clone(alphas)}, nil
}

// Len gibt die Anzahl der Trainings-Timesteps zurueck
func (t *Table) Len() int {
	return len(t.alphas)
}

// At gibt alphas_cumprod[step] zurueck
func (t *Table) At(step int) float64 {
	return t.alphas[step]
}

// Alphas gibt eine Kopie der Tabelle zurueck
func (t *Table) Alphas() []float64 {
	return slices.Clone(t.alphas)
}

// =============================================================================
// Unterabgetasteter Zeitplan
// =============================================================================

// Schedule ist der fuer einen Request abgeleitete Zeitplan. Timesteps sind
// aufsteigend; AlphasPrev[0] ist 1.0 (rauschfreie Randbedingung).
type Schedule struct {
	Timesteps  []int
	Alphas     []float64
	AlphasPrev []float64
}

// Len gibt die Anzahl der Sampling-Schritte zurueck
func (s *Schedule) Len() int {
	return len(s.Timesteps)
}

// Step gibt Timestep, a_t und a_prev fuer Index i zurueck
func (s *Schedule) Step(i int) (timestep int, alpha, alphaPrev float64) {
	return s.Timesteps[i], s.Alphas[i], s.AlphasPrev[i]
}

// Subsample leitet n aufsteigende Timesteps mit Schrittweite
// max(1, (Len-1)/n) ab, beginnend bei 1. Nur wenn n die ganze Tabelle
// abdeckt, beginnt die Rampe bei 0, damit kein Index die Tabelle verlaesst.
func (t *Table) Subsample(n int) (*Schedule, error) {
	size := len(t.alphas)
	if n < 1 || n > size {
		return nil, fmt.Errorf("%w: steps must be in [1, %d], got %d", ErrInvalidSchedule, size, n)
	}

	last := size - 1
	stride := max(1, last/n)
	start := 1
	if start+(n-1)*stride > last {
		start = 0
	}

	s := &Schedule{
		Timesteps:  make([]int, n),
		Alphas:     make([]float64, n),
		AlphasPrev: make([]float64, n),
	}
	for i := range n {
		step := start + i*stride
		s.Timesteps[i] = step
		s.Alphas[i] = t.alphas[step]
		if i == 0 {
			s.AlphasPrev[i] = 1.0
		} else {
			s.AlphasPrev[i] = s.Alphas[i-1]
		}
	}
	return s, nil
}
