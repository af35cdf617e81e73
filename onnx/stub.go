//go:build !onnx || !cgo

// MODUL: onnx/stub
// ZWECK: Stub-Implementierung ohne ONNX Runtime (kein cgo oder Build-Tag)
// HINWEISE: Load gibt immer ErrCGORequired zurueck

package onnx

// Load Stub - gibt immer ErrCGORequired zurueck
func Load(dir string, opts Options) (*Models, error) {
	return nil, ErrCGORequired
}

// InitRuntime Stub
func InitRuntime(libraryPath string) error {
	return ErrCGORequired
}

// DestroyRuntime Stub
func DestroyRuntime() error {
	return nil
}
