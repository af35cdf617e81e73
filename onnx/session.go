//go:build onnx && cgo

// MODUL: onnx/session
// ZWECK: ONNX Runtime Session Management - Erstellen, Konfigurieren, Ausfuehren
// INPUT: Modell-Pfad (.onnx), Options, Eingabe-Daten
// OUTPUT: Session-Handle, float32 Ausgaben mit Form
// NEBENEFFEKTE: Alloziert ONNX Runtime Ressourcen, GPU Memory
// ABHAENGIGKEITEN: onnxruntime_go, halfprec.go
// HINWEISE: Run ist thread-sicher, destroy() MUSS aufgerufen werden

package onnx

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ============================================================================
// Runtime Initialisierung (Singleton)
// ============================================================================

var (
	runtimeInitOnce sync.Once
	runtimeInitErr  error
)

// InitRuntime initialisiert die ONNX Runtime einmalig.
// Wird automatisch beim ersten Laden aufgerufen.
func InitRuntime(libraryPath string) error {
	runtimeInitOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		runtimeInitErr = ort.InitializeEnvironment()
	})
	return runtimeInitErr
}

// DestroyRuntime gibt die ONNX Runtime frei. Die CLI ruft sie nach dem
// Schliessen der Modelle auf.
func DestroyRuntime() error {
	return ort.DestroyEnvironment()
}

// ============================================================================
// Session
// ============================================================================

type session struct {
	inner   *ort.DynamicAdvancedSession
	path    string
	inputs  []ort.InputOutputInfo
	outputs []ort.InputOutputInfo
}

func newSession(path string, opts Options) (*session, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, path, err)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%w: %s has no outputs", ErrModelLoad, path)
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer sessOpts.Destroy()

	if opts.NumThreads > 0 {
		if err := sessOpts.SetIntraOpNumThreads(opts.NumThreads); err != nil {
			return nil, fmt.Errorf("threads setzen: %w", err)
		}
	}

	if opts.UseGPU {
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err == nil {
			if err := cudaOpts.Update(map[string]string{
				"device_id": fmt.Sprintf("%d", opts.GPUDeviceID),
			}); err != nil {
				slog.Warn("cuda provider options not applied, using defaults", "device", opts.GPUDeviceID, "error", err)
			}
			if err := sessOpts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
				slog.Warn("cuda execution provider unavailable, using cpu", "error", err)
			}
			cudaOpts.Destroy()
		} else {
			slog.Warn("cuda provider options unavailable, using cpu", "error", err)
		}
	}

	names := func(infos []ort.InputOutputInfo) []string {
		out := make([]string, len(infos))
		for i, info := range infos {
			out[i] = info.Name
		}
		return out
	}

	inner, err := ort.NewDynamicAdvancedSession(path, names(inputs), names(outputs[:1]), sessOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSessionCreate, path, err)
	}

	for _, in := range inputs {
		slog.Debug("onnx input", "model", path, "name", in.Name, "type", in.DataType, "shape", in.Dimensions)
	}

	return &session{inner: inner, path: path, inputs: inputs, outputs: outputs}, nil
}

// inputType gibt den Element-Typ des i-ten Eingangs zurueck
func (s *session) inputType(i int) ElementType {
	if i >= len(s.inputs) {
		return Float32
	}
	return elementType(s.inputs[i].DataType)
}

func elementType(dt ort.TensorElementDataType) ElementType {
	switch dt {
	case ort.TensorElementDataTypeFloat16:
		return Float16
	case ort.TensorElementDataTypeBFloat16:
		return BFloat16
	case ort.TensorElementDataTypeInt32:
		return Int32
	case ort.TensorElementDataTypeInt64:
		return Int64
	default:
		return Float32
	}
}

func ortShape(shape []int) ort.Shape {
	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}
	return ort.NewShape(dims...)
}

// floatValue erzeugt einen Eingangs-Tensor im Typ t aus float32-Daten
func floatValue(t ElementType, data []float32, shape []int) (ort.Value, error) {
	switch t {
	case Float16:
		return ort.NewCustomDataTensor(ortShape(shape), EncodeFloat16(data), ort.TensorElementDataTypeFloat16)
	case BFloat16:
		return ort.NewCustomDataTensor(ortShape(shape), EncodeBFloat16(data), ort.TensorElementDataTypeBFloat16)
	default:
		return ort.NewTensor(ortShape(shape), data)
	}
}

// intValue erzeugt einen Eingangs-Tensor im Typ t aus int32-Daten
func intValue(t ElementType, data []int32, shape []int) (ort.Value, error) {
	if t == Int64 {
		wide := make([]int64, len(data))
		for i, v := range data {
			wide[i] = int64(v)
		}
		return ort.NewTensor(ortShape(shape), wide)
	}
	return ort.NewTensor(ortShape(shape), data)
}

// run fuehrt die Session aus und gibt den ersten Ausgang als float32 zurueck.
// Die Eingaben werden danach freigegeben.
func (s *session) run(inputs ...ort.Value) ([]float32, []int, error) {
	defer func() {
		for _, in := range inputs {
			in.Destroy()
		}
	}()

	outputs := []ort.Value{nil}
	if err := s.inner.Run(inputs, outputs); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrInference, s.path, err)
	}
	defer outputs[0].Destroy()

	dims := outputs[0].GetShape()
	shape := make([]int, len(dims))
	for i, d := range dims {
		shape[i] = int(d)
	}

	data, err := extractFloat32(outputs[0], elementType(s.outputs[0].DataType))
	if err != nil {
		return nil, nil, err
	}
	return data, shape, nil
}

// extractFloat32 kopiert einen Ausgangs-Tensor nach float32
func extractFloat32(v ort.Value, declared ElementType) ([]float32, error) {
	switch t := v.(type) {
	case *ort.Tensor[float32]:
		src := t.GetData()
		out := make([]float32, len(src))
		copy(out, src)
		return out, nil
	case *ort.Tensor[uint16]:
		src := t.GetData()
		raw := make([]byte, len(src)*2)
		for i, bits := range src {
			binary.LittleEndian.PutUint16(raw[i*2:], bits)
		}
		return Decode(declared, raw)
	case *ort.CustomDataTensor:
		return Decode(declared, t.GetData())
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupported, v)
	}
}

func (s *session) destroy() {
	if s.inner != nil {
		s.inner.Destroy()
		s.inner = nil
	}
}
