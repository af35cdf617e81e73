// halfprec.go - float16/bfloat16 Konvertierung fuer Modell-Ein- und Ausgaben
//
// Enthaelt:
// - EncodeFloat16/DecodeFloat16: IEEE 754 half, little-endian (x448/float16)
// - EncodeBFloat16/DecodeBFloat16: bfloat16 (d4l3k/go-bfloat16)
// - ElementType: Element-Typ eines Modell-Eingangs
package onnx

import (
	"encoding/binary"
	"fmt"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// ElementType ist der Element-Typ eines Modell-Tensors
type ElementType int

const (
	Float32 ElementType = iota
	Float16
	BFloat16
	Int32
	Int64
)

func (t ElementType) String() string {
	switch t {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	case BFloat16:
		return "bfloat16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	default:
		return fmt.Sprintf("ElementType(%d)", int(t))
	}
}

// EncodeFloat16 konvertiert float32 in little-endian float16 Bytes
func EncodeFloat16(data []float32) []byte {
	out := make([]byte, len(data)*2)
	for i, v := range data {
		binary.LittleEndian.PutUint16(out[i*2:], float16.Fromfloat32(v).Bits())
	}
	return out
}

// DecodeFloat16 konvertiert little-endian float16 Bytes in float32
func DecodeFloat16(raw []byte) []float32 {
	out := make([]float32, len(raw)/2)
	for i := range out {
		out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
	}
	return out
}

// EncodeBFloat16 konvertiert float32 in bfloat16 Bytes
func EncodeBFloat16(data []float32) []byte {
	return bfloat16.EncodeFloat32(data)
}

// DecodeBFloat16 konvertiert bfloat16 Bytes in float32
func DecodeBFloat16(raw []byte) []float32 {
	return bfloat16.DecodeFloat32(raw)
}

// Encode konvertiert float32 in die Byte-Darstellung von t
func Encode(t ElementType, data []float32) ([]byte, error) {
	switch t {
	case Float16:
		return EncodeFloat16(data), nil
	case BFloat16:
		return EncodeBFloat16(data), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, t)
	}
}

// Decode konvertiert Bytes vom Typ t in float32
func Decode(t ElementType, raw []byte) ([]float32, error) {
	switch t {
	case Float16:
		return DecodeFloat16(raw), nil
	case BFloat16:
		return DecodeBFloat16(raw), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, t)
	}
}
