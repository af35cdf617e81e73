// config_features.go - Sampling-Defaults, Runtime- und GPU-Konfiguration
//
// Dieses Modul enthaelt:
// - Defaults fuer Sampling-Parameter (Schritte, Guidance)
// - Parallelitaets-Einstellungen
// - ONNX-Runtime und GPU-Variablen
package envconfig

// =============================================================================
// Sampling-Defaults
// =============================================================================

var (
	// Steps ist die Standard-Anzahl der Sampling-Schritte
	Steps = Uint("SD_STEPS", 25)

	// Guidance ist der Standard-Guidance-Faktor
	Guidance = Float("SD_GUIDANCE", 7.5)
)

// =============================================================================
// Parallelitaets-Einstellungen
// =============================================================================

var (
	// NumParallel ist die maximale Anzahl gleichzeitiger Generierungen
	NumParallel = Uint("SD_NUM_PARALLEL", 1)

	// ParallelGuidance fuehrt die beiden Denoiser-Aufrufe pro Schritt
	// nebenlaeufig aus
	ParallelGuidance = Bool("SD_PARALLEL_GUIDANCE")
)

// =============================================================================
// ONNX-Runtime und GPU
// =============================================================================

var (
	// OrtLibrary ist der Pfad zur onnxruntime Shared Library
	OrtLibrary = String("SD_ORT_LIBRARY")

	// GPU aktiviert den CUDA Execution Provider
	GPU = Bool("SD_GPU")

	// FP16 erzwingt float16-Eingaben fuer den Denoiser
	FP16 = Bool("SD_FP16")

	// CudaVisibleDevices steuert sichtbare NVIDIA-Geraete
	CudaVisibleDevices = String("CUDA_VISIBLE_DEVICES")
)
