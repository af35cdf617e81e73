//go:build !onnx || !cgo

package onnx

import (
	"errors"
	"testing"
)

func TestLoadWithoutRuntime(t *testing.T) {
	m, err := Load(t.TempDir(), DefaultOptions())
	if !errors.Is(err, ErrCGORequired) {
		t.Errorf("Fehler = %v, erwartet ErrCGORequired", err)
	}
	if m != nil {
		t.Error("Models sollte nil sein")
	}
}

func TestDestroyRuntimeWithoutRuntime(t *testing.T) {
	m := &Models{}
	if err := errors.Join(m.Close(), DestroyRuntime()); err != nil {
		t.Errorf("Close ohne Runtime sollte nil liefern, got %v", err)
	}
}
