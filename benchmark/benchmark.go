// MODUL: benchmark
// ZWECK: Latenz- und Durchsatzmessung fuer die Bildgenerierung
// INPUT: Generator (diffusion.Pipeline), Config mit Prompts und Basis-Optionen
// OUTPUT: Result pro Prompt mit avg/min/max/p95 und Bildern pro Sekunde
// NEBENEFFEKTE: CPU/GPU-Last waehrend Benchmark
// ABHAENGIGKEITEN: diffusion, golang.org/x/exp/rand (Seed-Folge)
// HINWEISE: Warmup-Laeufe werden nicht gemessen

package benchmark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/exp/rand"

	"github.com/ollama/stablediffusion/diffusion"
)

// Generator erzeugt Bilder fuer einen Satz Optionen
type Generator interface {
	Generate(ctx context.Context, opts diffusion.Options) (*diffusion.Result, error)
}

// ============================================================================
// Datenstrukturen
// ============================================================================

// Config definiert die Parameter fuer einen Benchmark-Lauf.
type Config struct {
	Prompts    []string          // Ein Ergebnis pro Prompt
	Options    diffusion.Options // Basis-Optionen (Prompt wird ueberschrieben)
	Iterations int               // Anzahl Messungen pro Prompt (ohne Warmup)
	WarmupRuns int               // Anzahl Warmup-Laeufe (nicht gemessen)
}

// DefaultConfig gibt eine Standard-Konfiguration zurueck.
func DefaultConfig() Config {
	return Config{
		Options:    diffusion.DefaultOptions(),
		Iterations: 3,
		WarmupRuns: 1,
	}
}

// Result enthaelt das Ergebnis fuer einen Prompt.
type Result struct {
	Prompt          string
	ImageSize       string // z.B. "512x512"
	Steps           int
	BatchSize       int
	Iterations      int
	Seeds           []int64
	TotalTime       time.Duration
	AvgLatency      time.Duration
	MinLatency      time.Duration
	MaxLatency      time.Duration
	P95Latency      time.Duration
	ImagesPerSecond float64
	StepsPerSecond  float64
}

// ErrNoPrompts wird zurueckgegeben wenn Config keine Prompts enthaelt
var ErrNoPrompts = errors.New("benchmark: keine prompts")

// ============================================================================
// Ausfuehrung
// ============================================================================

// Run fuehrt den Benchmark fuer alle Prompts aus. Bei genau einer Iteration
// wird Options.Seed verwendet, sonst wird pro Lauf ein Seed aus einer mit
// Options.Seed initialisierten Folge gezogen.
func Run(ctx context.Context, gen Generator, cfg Config) ([]Result, error) {
	if len(cfg.Prompts) == 0 {
		return nil, ErrNoPrompts
	}
	if cfg.Iterations < 1 {
		return nil, fmt.Errorf("benchmark: iterations muss >= 1 sein, ist %d", cfg.Iterations)
	}

	seeds := rand.New(rand.NewSource(uint64(cfg.Options.Seed)))
	results := make([]Result, 0, len(cfg.Prompts))
	for _, prompt := range cfg.Prompts {
		opts := cfg.Options
		opts.Prompt = prompt
		opts.Progress = nil
		opts.OnStep = nil

		for i := range cfg.WarmupRuns {
			slog.Debug("benchmark warmup", "prompt", prompt, "run", i)
			if _, err := gen.Generate(ctx, opts); err != nil {
				return nil, fmt.Errorf("warmup: %w", err)
			}
		}

		latencies := make([]time.Duration, 0, cfg.Iterations)
		used := make([]int64, 0, cfg.Iterations)
		for range cfg.Iterations {
			if cfg.Iterations > 1 {
				opts.Seed = seeds.Int63()
			}
			start := time.Now()
			if _, err := gen.Generate(ctx, opts); err != nil {
				return nil, err
			}
			latencies = append(latencies, time.Since(start))
			used = append(used, opts.Seed)
		}

		r := buildResult(opts, latencies)
		r.Seeds = used
		slog.Info("benchmark", "prompt", prompt, "avg", r.AvgLatency, "p95", r.P95Latency)
		results = append(results, r)
	}
	return results, nil
}

// buildResult erstellt das Result aus den Messungen.
func buildResult(opts diffusion.Options, latencies []time.Duration) Result {
	stats := calculateStats(latencies)
	images := opts.BatchSize * len(latencies)

	r := Result{
		Prompt:     opts.Prompt,
		ImageSize:  fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		Steps:      opts.Steps,
		BatchSize:  opts.BatchSize,
		Iterations: len(latencies),
		TotalTime:  stats.total,
		AvgLatency: stats.avg,
		MinLatency: stats.min,
		MaxLatency: stats.max,
		P95Latency: stats.p95,
	}
	if stats.total > 0 {
		r.ImagesPerSecond = float64(images) / stats.total.Seconds()
		r.StepsPerSecond = float64(opts.Steps*len(latencies)) / stats.total.Seconds()
	}
	return r
}

// ============================================================================
// Statistik-Hilfsfunktionen
// ============================================================================

type latencyStats struct {
	total time.Duration
	avg   time.Duration
	min   time.Duration
	max   time.Duration
	p95   time.Duration
}

// calculateStats berechnet Statistiken aus Latenz-Messungen.
func calculateStats(latencies []time.Duration) latencyStats {
	if len(latencies) == 0 {
		return latencyStats{}
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range latencies {
		total += d
	}

	p95Idx := min(int(float64(len(sorted))*0.95), len(sorted)-1)

	return latencyStats{
		total: total,
		avg:   total / time.Duration(len(latencies)),
		min:   sorted[0],
		max:   sorted[len(sorted)-1],
		p95:   sorted[p95Idx],
	}
}
