package executor

import (
	"fmt"
	"math"
	"slices"

	"github.com/x448/float16"
	"go.starlark.net/starlark"

	"github.com/caffeineduck/goru/wire"
)

// Array exposes a *wire.NDArray to Starlark code. Arrays are immutable;
// indexing the first axis yields a scalar for 1-d arrays and a sub-array
// view otherwise.
type Array struct {
	arr *wire.NDArray
}

var (
	_ starlark.Value     = (*Array)(nil)
	_ starlark.HasAttrs  = (*Array)(nil)
	_ starlark.Indexable = (*Array)(nil)
)

// NewArray wraps arr. arr must be valid; toStarlark checks it.
func NewArray(arr *wire.NDArray) *Array {
	return &Array{arr: arr}
}

// NDArray returns the wrapped array.
func (a *Array) NDArray() *wire.NDArray { return a.arr }

func (a *Array) String() string        { return a.arr.String() }
func (a *Array) Type() string          { return "ndarray" }
func (a *Array) Freeze()               {}
func (a *Array) Truth() starlark.Bool  { return a.arr.Size() > 0 }
func (a *Array) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: ndarray") }

func (a *Array) Len() int {
	if len(a.arr.Shape) == 0 {
		return 0
	}
	return a.arr.Shape[0]
}

func (a *Array) Index(i int) starlark.Value {
	if len(a.arr.Shape) == 1 {
		return scalarAt(a.arr, i)
	}
	sub := a.arr.Shape[1:]
	stride := a.arr.ItemSize()
	for _, d := range sub {
		stride *= d
	}
	return &Array{arr: &wire.NDArray{
		DType: a.arr.DType,
		Shape: slices.Clone(sub),
		Data:  a.arr.Data[i*stride : (i+1)*stride],
	}}
}

var arrayAttrNames = []string{"dtype", "ndim", "shape", "size", "tolist"}

func (a *Array) AttrNames() []string { return arrayAttrNames }

func (a *Array) Attr(name string) (starlark.Value, error) {
	switch name {
	case "dtype":
		return starlark.String(a.arr.DType), nil
	case "ndim":
		return starlark.MakeInt(a.arr.Ndim()), nil
	case "size":
		return starlark.MakeInt(a.arr.Size()), nil
	case "shape":
		dims := make(starlark.Tuple, len(a.arr.Shape))
		for i, d := range a.arr.Shape {
			dims[i] = starlark.MakeInt(d)
		}
		return dims, nil
	case "tolist":
		return starlark.NewBuiltin("tolist", a.tolist).BindReceiver(a), nil
	}
	return nil, nil
}

func (a *Array) tolist(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	if len(a.arr.Shape) == 0 {
		return scalarAt(a.arr, 0), nil
	}
	elems := make([]starlark.Value, a.Len())
	for i := range elems {
		v := a.Index(i)
		if sub, ok := v.(*Array); ok {
			var err error
			if v, err = sub.tolist(thread, b, nil, nil); err != nil {
				return nil, err
			}
		}
		elems[i] = v
	}
	return starlark.NewList(elems), nil
}

// scalarAt decodes the i-th element of the flat buffer.
func scalarAt(arr *wire.NDArray, i int) starlark.Value {
	size := arr.ItemSize()
	b := arr.Data[i*size : (i+1)*size]
	bo := wire.ByteOrder
	switch arr.DType {
	case wire.Bool:
		return starlark.Bool(b[0] != 0)
	case wire.Int8:
		return starlark.MakeInt(int(int8(b[0])))
	case wire.Uint8:
		return starlark.MakeInt(int(b[0]))
	case wire.Int16:
		return starlark.MakeInt(int(int16(bo.Uint16(b))))
	case wire.Uint16:
		return starlark.MakeInt(int(bo.Uint16(b)))
	case wire.Float16:
		return starlark.Float(float16.Frombits(bo.Uint16(b)).Float32())
	case wire.Int32:
		return starlark.MakeInt64(int64(int32(bo.Uint32(b))))
	case wire.Uint32:
		return starlark.MakeUint64(uint64(bo.Uint32(b)))
	case wire.Float32:
		return starlark.Float(math.Float32frombits(bo.Uint32(b)))
	case wire.Int64:
		return starlark.MakeInt64(int64(bo.Uint64(b)))
	case wire.Uint64:
		return starlark.MakeUint64(bo.Uint64(b))
	case wire.Float64:
		return starlark.Float(math.Float64frombits(bo.Uint64(b)))
	case wire.Complex64:
		return starlark.Tuple{
			starlark.Float(math.Float32frombits(bo.Uint32(b[:4]))),
			starlark.Float(math.Float32frombits(bo.Uint32(b[4:]))),
		}
	case wire.Complex128:
		return starlark.Tuple{
			starlark.Float(math.Float64frombits(bo.Uint64(b[:8]))),
			starlark.Float(math.Float64frombits(bo.Uint64(b[8:]))),
		}
	}
	return starlark.None
}

// arrayBuiltin implements array(values, dtype="float64", shape=None).
// values is a scalar, a (nested) list or tuple of numbers, or an ndarray.
func arrayBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		values starlark.Value
		dtype  = string(wire.Float64)
		shape  starlark.Value = starlark.None
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "values", &values, "dtype?", &dtype, "shape?", &shape); err != nil {
		return nil, err
	}
	dt := wire.DType(dtype)
	if !dt.Valid() {
		return nil, fmt.Errorf("%s: %w: %q", b.Name(), wire.ErrUnknownDType, dtype)
	}

	if src, ok := values.(*Array); ok {
		list, err := src.tolist(thread, b, nil, nil)
		if err != nil {
			return nil, err
		}
		values = list
	}

	var flat []starlark.Value
	complexLeaves := dt == wire.Complex64 || dt == wire.Complex128
	dims, err := flatten(values, &flat, complexLeaves, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}

	data := make([]byte, 0, len(flat)*dt.ItemSize())
	for i, v := range flat {
		if data, err = appendElement(data, dt, v); err != nil {
			return nil, fmt.Errorf("%s: element %d: %w", b.Name(), i, err)
		}
	}

	arr := &wire.NDArray{DType: dt, Shape: dims, Data: data}
	if shape != starlark.None {
		want, err := unpackShape(shape)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		if arr, err = arr.Reshape(want...); err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
	}
	return &Array{arr: arr}, nil
}

// zerosBuiltin implements zeros(shape, dtype="float64").
func zerosBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		shape starlark.Value
		dtype = string(wire.Float64)
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "shape", &shape, "dtype?", &dtype); err != nil {
		return nil, err
	}
	dt := wire.DType(dtype)
	if !dt.Valid() {
		return nil, fmt.Errorf("%s: %w: %q", b.Name(), wire.ErrUnknownDType, dtype)
	}
	dims, err := unpackShape(shape)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	arr := &wire.NDArray{DType: dt, Shape: dims}
	arr.Data = make([]byte, arr.Size()*dt.ItemSize())
	if err := arr.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return NewArray(arr), nil
}

// flatten appends the leaves of a nested sequence to flat and returns the
// shape. Sibling sequences must agree in length. With complexLeaves a
// (re, im) pair of numbers is a single leaf.
func flatten(v starlark.Value, flat *[]starlark.Value, complexLeaves bool, depth int) ([]int, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("value nesting exceeds %d levels", maxDepth)
	}
	var seq starlark.Indexable
	switch x := v.(type) {
	case *starlark.List:
		seq = x
	case starlark.Tuple:
		if complexLeaves && isComplexPair(x) {
			*flat = append(*flat, v)
			return []int{}, nil
		}
		seq = x
	default:
		*flat = append(*flat, v)
		return []int{}, nil
	}

	n := seq.Len()
	var inner []int
	for i := range n {
		sub, err := flatten(seq.Index(i), flat, complexLeaves, depth+1)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			inner = sub
		} else if !slices.Equal(inner, sub) {
			return nil, fmt.Errorf("%w: ragged nested sequence", wire.ErrShapeMismatch)
		}
	}
	return append([]int{n}, inner...), nil
}

func isComplexPair(t starlark.Tuple) bool {
	if len(t) != 2 {
		return false
	}
	for _, x := range t {
		switch x.(type) {
		case starlark.Int, starlark.Float:
		default:
			return false
		}
	}
	return true
}

func unpackShape(v starlark.Value) ([]int, error) {
	if n, ok := v.(starlark.Int); ok {
		d, ok := n.Int64()
		if !ok || d < 0 || d > math.MaxInt32 {
			return nil, fmt.Errorf("%w: %s", wire.ErrNegativeDim, n)
		}
		return []int{int(d)}, nil
	}
	seq, ok := v.(starlark.Indexable)
	if !ok {
		return nil, fmt.Errorf("shape must be an int or a sequence of ints, got %s", v.Type())
	}
	dims := make([]int, seq.Len())
	for i := range dims {
		var d int
		if err := starlark.AsInt(seq.Index(i), &d); err != nil {
			return nil, fmt.Errorf("shape[%d]: %w", i, err)
		}
		dims[i] = d
	}
	return dims, checkDims(dims)
}

func checkDims(dims []int) error {
	for _, d := range dims {
		if d < 0 {
			return fmt.Errorf("%w: %v", wire.ErrNegativeDim, dims)
		}
	}
	return nil
}

func appendElement(data []byte, dt wire.DType, v starlark.Value) ([]byte, error) {
	bo := wire.ByteOrder
	switch dt {
	case wire.Bool:
		if v.Truth() {
			return append(data, 1), nil
		}
		return append(data, 0), nil
	case wire.Float16:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		return bo.AppendUint16(data, float16.Fromfloat32(float32(f)).Bits()), nil
	case wire.Float32:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		return bo.AppendUint32(data, math.Float32bits(float32(f))), nil
	case wire.Float64:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		return bo.AppendUint64(data, math.Float64bits(f)), nil
	case wire.Complex64, wire.Complex128:
		re, im, err := toComplex(v)
		if err != nil {
			return nil, err
		}
		if dt == wire.Complex64 {
			data = bo.AppendUint32(data, math.Float32bits(float32(re)))
			return bo.AppendUint32(data, math.Float32bits(float32(im))), nil
		}
		data = bo.AppendUint64(data, math.Float64bits(re))
		return bo.AppendUint64(data, math.Float64bits(im)), nil
	case wire.Uint64:
		n, ok := v.(starlark.Int)
		if !ok {
			return nil, fmt.Errorf("%s needs an int, got %s", dt, v.Type())
		}
		u, ok := n.Uint64()
		if !ok {
			return nil, fmt.Errorf("%s out of range for %s", n, dt)
		}
		return bo.AppendUint64(data, u), nil
	}

	n, err := toInt64(v)
	if err != nil {
		return nil, fmt.Errorf("%s needs an int: %w", dt, err)
	}
	lo, hi := intRange(dt)
	if n < lo || n > hi {
		return nil, fmt.Errorf("%d out of range for %s", n, dt)
	}
	switch dt {
	case wire.Int8, wire.Uint8:
		return append(data, byte(n)), nil
	case wire.Int16, wire.Uint16:
		return bo.AppendUint16(data, uint16(n)), nil
	case wire.Int32, wire.Uint32:
		return bo.AppendUint32(data, uint32(n)), nil
	default:
		return bo.AppendUint64(data, uint64(n)), nil
	}
}

func intRange(dt wire.DType) (int64, int64) {
	switch dt {
	case wire.Int8:
		return math.MinInt8, math.MaxInt8
	case wire.Uint8:
		return 0, math.MaxUint8
	case wire.Int16:
		return math.MinInt16, math.MaxInt16
	case wire.Uint16:
		return 0, math.MaxUint16
	case wire.Int32:
		return math.MinInt32, math.MaxInt32
	case wire.Uint32:
		return 0, math.MaxUint32
	}
	return math.MinInt64, math.MaxInt64
}

func toInt64(v starlark.Value) (int64, error) {
	switch x := v.(type) {
	case starlark.Int:
		n, ok := x.Int64()
		if !ok {
			return 0, fmt.Errorf("%s overflows int64", x)
		}
		return n, nil
	case starlark.Bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("got %s", v.Type())
}

func toFloat64(v starlark.Value) (float64, error) {
	switch x := v.(type) {
	case starlark.Bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case starlark.Int, starlark.Float:
		f, ok := starlark.AsFloat(x)
		if !ok {
			return 0, fmt.Errorf("cannot convert %s to float", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("float needs a number, got %s", v.Type())
}

// toComplex accepts a real number or a (re, im) pair.
func toComplex(v starlark.Value) (float64, float64, error) {
	if t, ok := v.(starlark.Tuple); ok && len(t) == 2 {
		re, err := toFloat64(t[0])
		if err != nil {
			return 0, 0, err
		}
		im, err := toFloat64(t[1])
		if err != nil {
			return 0, 0, err
		}
		return re, im, nil
	}
	re, err := toFloat64(v)
	return re, 0, err
}
