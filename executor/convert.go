package executor

import (
	"fmt"
	"reflect"

	"go.starlark.net/starlark"

	"github.com/caffeineduck/goru/wire"
)

// maxDepth bounds conversion of nested containers; Starlark lists can
// contain themselves.
const maxDepth = 1000

// toStarlark converts a native value into a Starlark value. Starlark values
// pass through unchanged.
func toStarlark(v any) (starlark.Value, error) {
	return toStarlarkDepth(v, 0)
}

func toStarlarkDepth(v any, depth int) (starlark.Value, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("value nesting exceeds %d levels", maxDepth)
	}

	switch v := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return v, nil
	case bool:
		return starlark.Bool(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case float64:
		return starlark.Float(v), nil
	case string:
		return starlark.String(v), nil
	case []byte:
		return starlark.Bytes(v), nil
	case *wire.NDArray:
		if v == nil {
			return starlark.None, nil
		}
		if err := v.Validate(); err != nil {
			return nil, err
		}
		return NewArray(v), nil
	case []any:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			sv, err := toStarlarkDepth(e, depth+1)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		d := starlark.NewDict(len(v))
		for k, e := range v {
			sv, err := toStarlarkDepth(e, depth+1)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	}

	value := reflect.ValueOf(v)
	switch value.Kind() {
	case reflect.Bool:
		return starlark.Bool(value.Bool()), nil
	case reflect.String:
		return starlark.String(value.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return starlark.MakeInt64(value.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return starlark.MakeUint64(value.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return starlark.Float(value.Float()), nil
	case reflect.Slice, reflect.Array:
		elems := make([]starlark.Value, value.Len())
		for i := range elems {
			sv, err := toStarlarkDepth(value.Index(i).Interface(), depth+1)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case reflect.Map:
		if value.Type().Key().Kind() != reflect.String {
			break
		}
		d := starlark.NewDict(value.Len())
		iter := value.MapRange()
		for iter.Next() {
			sv, err := toStarlarkDepth(iter.Value().Interface(), depth+1)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(iter.Key().String()), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	case reflect.Pointer, reflect.Interface:
		if value.IsNil() {
			return starlark.None, nil
		}
		return toStarlarkDepth(value.Elem().Interface(), depth+1)
	}
	return nil, fmt.Errorf("unsupported type for starlark: %T", v)
}

// fromStarlark converts a Starlark value into a native wire value.
func fromStarlark(v starlark.Value) (any, error) {
	return fromStarlarkDepth(v, 0)
}

func fromStarlarkDepth(v starlark.Value, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("value nesting exceeds %d levels", maxDepth)
	}

	switch v := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.Int:
		n, ok := v.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s overflows int64", v)
		}
		return n, nil
	case starlark.Float:
		return float64(v), nil
	case starlark.String:
		return string(v), nil
	case starlark.Bytes:
		return []byte(v), nil
	case *Array:
		return v.NDArray(), nil
	case *starlark.List:
		return fromIterable(v, v.Len(), depth)
	case starlark.Tuple:
		return fromIterable(v, v.Len(), depth)
	case *starlark.Dict:
		m := make(map[string]any, v.Len())
		for _, item := range v.Items() {
			k, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("unknown result type: dict with %s key", item[0].Type())
			}
			nv, err := fromStarlarkDepth(item[1], depth+1)
			if err != nil {
				return nil, err
			}
			m[string(k)] = nv
		}
		return m, nil
	}
	return nil, fmt.Errorf("unknown result type: %s", v.Type())
}

func fromIterable(v starlark.Iterable, n, depth int) ([]any, error) {
	out := make([]any, 0, n)
	iter := v.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		nv, err := fromStarlarkDepth(x, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, nv)
	}
	return out, nil
}

// Result carries an interpreter value to the wire. Conversion happens at
// encode time so that unrepresentable values surface as encode errors.
type Result struct {
	Value starlark.Value
}

var _ wire.Encoder = Result{}

// EncodeWire implements wire.Encoder.
func (r Result) EncodeWire() (any, error) {
	if r.Value == nil {
		return nil, nil
	}
	return fromStarlark(r.Value)
}

func (r Result) String() string {
	if r.Value == nil {
		return "None"
	}
	return r.Value.String()
}
