package wire

import (
	"github.com/x448/float16"
)

// DType names the element type of an [NDArray]. Values match numpy's
// canonical dtype names so buffers can be exchanged with numpy peers.
type DType string

const (
	Bool       DType = "bool"
	Int8       DType = "int8"
	Uint8      DType = "uint8"
	Int16      DType = "int16"
	Uint16     DType = "uint16"
	Float16    DType = "float16"
	Int32      DType = "int32"
	Uint32     DType = "uint32"
	Float32    DType = "float32"
	Int64      DType = "int64"
	Uint64     DType = "uint64"
	Float64    DType = "float64"
	Complex64  DType = "complex64"
	Complex128 DType = "complex128"
)

var itemSizes = map[DType]int{
	Bool:       1,
	Int8:       1,
	Uint8:      1,
	Int16:      2,
	Uint16:     2,
	Float16:    2,
	Int32:      4,
	Uint32:     4,
	Float32:    4,
	Int64:      8,
	Uint64:     8,
	Float64:    8,
	Complex64:  8,
	Complex128: 16,
}

// ItemSize returns the size in bytes of one element, or 0 for an unknown dtype.
func (d DType) ItemSize() int {
	return itemSizes[d]
}

// Valid reports whether d is a supported dtype.
func (d DType) Valid() bool {
	_, ok := itemSizes[d]
	return ok
}

// Element is the set of Go types an [NDArray] can be built from.
type Element interface {
	bool | int8 | uint8 | int16 | uint16 | float16.Float16 |
		int32 | uint32 | float32 | int64 | uint64 | float64 |
		complex64 | complex128
}

// DTypeOf returns the dtype matching the element type T.
func DTypeOf[T Element]() DType {
	var zero T
	switch any(zero).(type) {
	case bool:
		return Bool
	case int8:
		return Int8
	case uint8:
		return Uint8
	case int16:
		return Int16
	case uint16:
		return Uint16
	case float16.Float16:
		return Float16
	case int32:
		return Int32
	case uint32:
		return Uint32
	case float32:
		return Float32
	case int64:
		return Int64
	case uint64:
		return Uint64
	case float64:
		return Float64
	case complex64:
		return Complex64
	default:
		return Complex128
	}
}
