package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/x448/float16"
)

// ByteOrder is the byte order of NDArray buffers on the wire.
var ByteOrder = binary.LittleEndian

var (
	ErrUnknownDType   = errors.New("unknown dtype")
	ErrNegativeDim    = errors.New("negative dimension")
	ErrDTypeMismatch  = errors.New("dtype mismatch")
	ErrShapeMismatch  = errors.New("shape does not match element count")
	ErrRaggedBuffer   = errors.New("buffer length is not a multiple of the item size")
	ErrBufferMismatch = errors.New("buffer length does not match shape")
	ErrShapeOverflow  = errors.New("shape size overflows")
)

// NDArray is a dense, homogeneous, row-major array. Data holds Size()
// elements of DType in [ByteOrder].
type NDArray struct {
	DType DType
	Shape []int
	Data  []byte
}

// NewNDArray copies data into a new array. With no shape the array is
// one-dimensional; otherwise the product of shape must equal len(data).
func NewNDArray[T Element](data []T, shape ...int) (*NDArray, error) {
	if len(shape) == 0 {
		shape = []int{len(data)}
	}
	n, err := shapeSize(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: shape %v holds %d elements, got %d", ErrShapeMismatch, shape, n, len(data))
	}
	buf, err := binary.Append(make([]byte, 0, n*DTypeOf[T]().ItemSize()), ByteOrder, data)
	if err != nil {
		return nil, fmt.Errorf("encode elements: %w", err)
	}
	return &NDArray{
		DType: DTypeOf[T](),
		Shape: slices.Clone(shape),
		Data:  buf,
	}, nil
}

// MustNDArray is like NewNDArray but panics on error.
func MustNDArray[T Element](data []T, shape ...int) *NDArray {
	a, err := NewNDArray(data, shape...)
	if err != nil {
		panic(err)
	}
	return a
}

// Elements decodes the buffer of a into a typed slice. T must match the
// array's dtype.
func Elements[T Element](a *NDArray) ([]T, error) {
	if want := DTypeOf[T](); a.DType != want {
		return nil, fmt.Errorf("%w: array is %s, requested %s", ErrDTypeMismatch, a.DType, want)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	out := make([]T, a.Size())
	if _, err := binary.Decode(a.Data, ByteOrder, out); err != nil {
		return nil, fmt.Errorf("decode elements: %w", err)
	}
	return out, nil
}

// Size returns the number of elements implied by the shape.
func (a *NDArray) Size() int {
	n, _ := shapeSize(a.Shape)
	return n
}

// Ndim returns the number of dimensions.
func (a *NDArray) Ndim() int {
	return len(a.Shape)
}

// ItemSize returns the byte size of one element.
func (a *NDArray) ItemSize() int {
	return a.DType.ItemSize()
}

// Validate checks that the dtype is known and that the buffer length equals
// product(shape) × itemsize.
func (a *NDArray) Validate() error {
	size := a.DType.ItemSize()
	if size == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownDType, a.DType)
	}
	n, err := shapeSize(a.Shape)
	if err != nil {
		return err
	}
	if n > math.MaxInt/size {
		return fmt.Errorf("%w: shape %v of %s", ErrShapeOverflow, a.Shape, a.DType)
	}
	if len(a.Data)%size != 0 {
		return fmt.Errorf("%w: %d bytes, item size %d", ErrRaggedBuffer, len(a.Data), size)
	}
	if len(a.Data)/size != n {
		return fmt.Errorf("%w: %d elements in buffer, shape %v needs %d", ErrBufferMismatch, len(a.Data)/size, a.Shape, n)
	}
	return nil
}

// Reshape returns a view of a with a new shape. The buffer is shared.
func (a *NDArray) Reshape(shape ...int) (*NDArray, error) {
	n, err := shapeSize(shape)
	if err != nil {
		return nil, err
	}
	if n != a.Size() {
		return nil, fmt.Errorf("%w: cannot reshape %v into %v", ErrShapeMismatch, a.Shape, shape)
	}
	return &NDArray{DType: a.DType, Shape: slices.Clone(shape), Data: a.Data}, nil
}

// Float64s converts every element to float64. Complex dtypes are rejected.
func (a *NDArray) Float64s() ([]float64, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	out := make([]float64, a.Size())
	size := a.ItemSize()
	for i := range out {
		b := a.Data[i*size : (i+1)*size]
		switch a.DType {
		case Bool, Uint8:
			out[i] = float64(b[0])
		case Int8:
			out[i] = float64(int8(b[0]))
		case Int16:
			out[i] = float64(int16(ByteOrder.Uint16(b)))
		case Uint16:
			out[i] = float64(ByteOrder.Uint16(b))
		case Float16:
			out[i] = float64(float16.Frombits(ByteOrder.Uint16(b)).Float32())
		case Int32:
			out[i] = float64(int32(ByteOrder.Uint32(b)))
		case Uint32:
			out[i] = float64(ByteOrder.Uint32(b))
		case Float32:
			out[i] = float64(math.Float32frombits(ByteOrder.Uint32(b)))
		case Int64:
			out[i] = float64(int64(ByteOrder.Uint64(b)))
		case Uint64:
			out[i] = float64(ByteOrder.Uint64(b))
		case Float64:
			out[i] = math.Float64frombits(ByteOrder.Uint64(b))
		default:
			return nil, fmt.Errorf("%w: %s has no real value", ErrDTypeMismatch, a.DType)
		}
	}
	return out, nil
}

// Equal reports whether a and b have the same dtype, shape and bytes.
func (a *NDArray) Equal(b *NDArray) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.DType == b.DType && slices.Equal(a.Shape, b.Shape) && string(a.Data) == string(b.Data)
}

func (a *NDArray) String() string {
	return fmt.Sprintf("ndarray(dtype=%s, shape=%v)", a.DType, a.Shape)
}

// shapeSize returns the product of shape. A zero dimension makes the
// product zero whatever the other dimensions are.
func shapeSize(shape []int) (int, error) {
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: %v", ErrNegativeDim, shape)
		}
		if d == 0 {
			return 0, nil
		}
	}
	n := 1
	for _, d := range shape {
		if n > math.MaxInt/d {
			return 0, fmt.Errorf("%w: %v", ErrShapeOverflow, shape)
		}
		n *= d
	}
	return n, nil
}
