package wire

// Decode converts a Wire Value into a native Go value:
//
//	null    -> nil
//	int     -> int64
//	float   -> float64
//	string  -> string
//	ndarray -> *NDArray
//	list    -> []any
//	dict    -> map[string]any
//
// A dict with a repeated key fails with *DecodeError. Any other class, including "object", fails with *DecodeError.
func Decode(v Value) (any, error) {
	return decoder{}.decode(v, "")
}

// DecodeResult is Decode for the controller side of the pipe: it also
// accepts the "object" mapping form that [Encode] produces.
func DecodeResult(v Value) (any, error) {
	return decoder{acceptObject: true}.decode(v, "")
}

// DecodeJSON parses and decodes one JSON-encoded Wire Value.
func DecodeJSON(data []byte) (any, error) {
	v, err := ParseValue(data)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

type decoder struct {
	acceptObject bool
}

func (d decoder) decode(v Value, path string) (any, error) {
	switch v.Class {
	case ClassNull:
		return nil, nil
	case ClassInt:
		return v.Int, nil
	case ClassFloat:
		return v.Float, nil
	case ClassString:
		return v.String, nil
	case ClassNDArray:
		if v.Array == nil {
			return nil, decodeErrorf(path, "ndarray without payload")
		}
		if err := v.Array.Validate(); err != nil {
			return nil, &DecodeError{Path: path, Msg: "ndarray", Err: err}
		}
		return v.Array, nil
	case ClassList:
		out := make([]any, len(v.List))
		for i, item := range v.List {
			x, err := d.decode(item, childPath(path, i))
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	case ClassDict:
		out := make(map[string]any, len(v.Pairs))
		for _, p := range v.Pairs {
			if _, dup := out[p.Key]; dup {
				return nil, decodeErrorf(childPath(path, p.Key), "duplicate dict key %q", p.Key)
			}
			x, err := d.decode(p.Value, childPath(path, p.Key))
			if err != nil {
				return nil, err
			}
			out[p.Key] = x
		}
		return out, nil
	case ClassObject:
		if !d.acceptObject {
			break
		}
		out := make(map[string]any, len(v.Object))
		for k, item := range v.Object {
			x, err := d.decode(item, childPath(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = x
		}
		return out, nil
	}
	return nil, decodeErrorf(path, "unknown class: %s", v.Class)
}
