// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - BoolWithDefault/Bool: Boolean-Getter mit Default-Wert
// - String: String-Getter
// - Uint/Float: Zahlen-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
)

// =============================================================================
// Boolean-Getter
// =============================================================================

// BoolWithDefault gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// =============================================================================
// String-Getter
// =============================================================================

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// =============================================================================
// Zahlen-Getter
// =============================================================================

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Float gibt eine Funktion zurueck, die einen float64 mit Default-Wert liest
func Float(key string, defaultValue float64) func() float64 {
	return func() float64 {
		if s := Var(key); s != "" {
			if f, err := strconv.ParseFloat(s, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return f
			}
		}
		return defaultValue
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	ret := map[string]EnvVar{
		"SD_DEBUG":             {"SD_DEBUG", LogLevel(), "Show additional debug information (e.g. SD_DEBUG=1, SD_DEBUG=2 for per-step trace)"},
		"SD_HOST":              {"SD_HOST", Host(), "IP Address for the server (default 127.0.0.1:7860)"},
		"SD_ORIGINS":           {"SD_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		"SD_MODELS":            {"SD_MODELS", Models(), "Directory with text_encoder.onnx, diffusion_model.onnx and decoder.onnx"},
		"SD_TOKENIZER":         {"SD_TOKENIZER", Tokenizer(), "Directory with vocab.json and merges.txt"},
		"SD_RUNS_DB":           {"SD_RUNS_DB", RunsDB(), "Path of the run ledger database"},
		"SD_LOAD_TIMEOUT":      {"SD_LOAD_TIMEOUT", LoadTimeout(), "How long to allow model loads before giving up (default \"5m\")"},
		"SD_STEPS":             {"SD_STEPS", Steps(), "Default number of sampling steps (default 25)"},
		"SD_GUIDANCE":          {"SD_GUIDANCE", Guidance(), "Default classifier-free guidance scale (default 7.5)"},
		"SD_NUM_PARALLEL":      {"SD_NUM_PARALLEL", NumParallel(), "Maximum number of parallel generations"},
		"SD_PARALLEL_GUIDANCE": {"SD_PARALLEL_GUIDANCE", ParallelGuidance(), "Run conditional and unconditional denoiser calls concurrently"},
		"SD_ORT_LIBRARY":       {"SD_ORT_LIBRARY", OrtLibrary(), "Path to the onnxruntime shared library"},
		"SD_GPU":               {"SD_GPU", GPU(), "Use the CUDA execution provider"},
		"SD_FP16":              {"SD_FP16", FP16(), "Feed float16 inputs to the diffusion model"},
	}

	// Nicht-macOS: GPU-Variablen
	if runtime.GOOS != "darwin" {
		ret["CUDA_VISIBLE_DEVICES"] = EnvVar{"CUDA_VISIBLE_DEVICES", CudaVisibleDevices(), "Set which NVIDIA devices are visible"}
	}

	return ret
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
