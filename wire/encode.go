package wire

import (
	"fmt"
	"math"
	"reflect"
	"slices"
)

// Encoder is implemented by values that know how to lower themselves to a
// native value Encode understands. Interpreters use it for their own value
// types.
type Encoder interface {
	EncodeWire() (any, error)
}

// Encode converts a native Go value into a Wire Value. Kinds are tested in
// a fixed order so that ambiguous values land in a single branch:
//
//  1. nil (and nil pointers or interfaces) -> null
//  2. integers and bool -> int
//  3. float32 / float64 -> float
//  4. *NDArray / NDArray -> ndarray
//  5. string -> string
//  6. slices and arrays -> list
//  7. maps with string keys -> object
//
// Anything else fails with *EncodeError.
func Encode(v any) (Value, error) {
	return encoder{}.encode(v, "")
}

// EncodeArgs encodes a positional argument list as a list Value, the form
// expected by the "call" and "set_vars" commands. Maps anywhere inside args
// use the dict form.
func EncodeArgs(args ...any) (Value, error) {
	return encoder{dicts: true}.encode(args, "")
}

// EncodeDict encodes m in the dict pair form accepted by [Decode]. Keys are
// emitted in sorted order.
func EncodeDict(m map[string]any) (Value, error) {
	return encoder{dicts: true}.encode(m, "")
}

// encoder emits "object" mappings for results and, with dicts set, "dict"
// pairs for values sent to a worker.
type encoder struct {
	dicts bool
}

func (e encoder) encode(v any, path string) (Value, error) {
	if enc, ok := v.(Encoder); ok {
		native, err := enc.EncodeWire()
		if err != nil {
			return Value{}, &EncodeError{Path: path, Msg: fmt.Sprintf("lower %T", v), Err: err}
		}
		if _, again := native.(Encoder); again {
			return Value{}, encodeErrorf(path, "%T lowered to another encoder", v)
		}
		return e.encode(native, path)
	}

	switch x := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		if x {
			return Int(1), nil
		}
		return Int(0), nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case float64:
		return encodeFloat(x, path)
	case *NDArray:
		if x == nil {
			return Null(), nil
		}
		return encodeArray(x, path)
	case NDArray:
		return encodeArray(&x, path)
	case string:
		return String(x), nil
	case []any:
		return e.encodeList(reflect.ValueOf(x), path)
	case map[string]any:
		return e.encodeMap(reflect.ValueOf(x), path)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		return e.encode(rv.Elem().Interface(), path)
	case reflect.Bool:
		if rv.Bool() {
			return Int(1), nil
		}
		return Int(0), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Value{}, encodeErrorf(path, "integer %d overflows int64", u)
		}
		return Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return encodeFloat(rv.Float(), path)
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Slice, reflect.Array:
		return e.encodeList(rv, path)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, encodeErrorf(path, "unknown result type: %T (map keys must be strings)", v)
		}
		return e.encodeMap(rv, path)
	}
	return Value{}, encodeErrorf(path, "unknown result type: %T", v)
}

func encodeFloat(f float64, path string) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, encodeErrorf(path, "unsupported float value: %v", f)
	}
	return Float(f), nil
}

func encodeArray(a *NDArray, path string) (Value, error) {
	if err := a.Validate(); err != nil {
		return Value{}, &EncodeError{Path: path, Msg: "ndarray", Err: err}
	}
	return Array(a), nil
}

func (e encoder) encodeList(rv reflect.Value, path string) (Value, error) {
	items := make([]Value, rv.Len())
	for i := range items {
		item, err := e.encode(rv.Index(i).Interface(), childPath(path, i))
		if err != nil {
			return Value{}, err
		}
		items[i] = item
	}
	return List(items...), nil
}

func (e encoder) encodeMap(rv reflect.Value, path string) (Value, error) {
	keys := make([]string, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		keys = append(keys, k.String())
	}
	slices.Sort(keys)

	fields := make(map[string]Value, len(keys))
	pairs := make([]Pair, 0, len(keys))
	for _, key := range keys {
		item, err := e.encode(rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key())).Interface(), childPath(path, key))
		if err != nil {
			return Value{}, err
		}
		fields[key] = item
		pairs = append(pairs, Pair{Key: key, Value: item})
	}
	if e.dicts {
		return Value{Class: ClassDict, Pairs: pairs}, nil
	}
	return Value{Class: ClassObject, Object: fields}, nil
}
