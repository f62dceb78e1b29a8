package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
)

// Class is the tag of a Wire Value.
type Class string

const (
	ClassNull    Class = "null"
	ClassInt     Class = "int"
	ClassFloat   Class = "float"
	ClassString  Class = "string"
	ClassNDArray Class = "ndarray"
	ClassList    Class = "list"
	ClassDict    Class = "dict"
	ClassObject  Class = "object"
)

// Value is one tagged Wire Value. Only the payload field matching Class is
// meaningful. Values of an unrecognized class keep their tag so that
// [Decode] can report it.
type Value struct {
	Class Class

	Int    int64
	Float  float64
	String string
	Array  *NDArray
	List   []Value
	Pairs  []Pair           // ClassDict
	Object map[string]Value // ClassObject
}

// Pair is one key/value entry of a dict-tagged Value.
type Pair struct {
	Key   string
	Value Value
}

// Null is the Wire Value for absence of a value.
func Null() Value { return Value{Class: ClassNull} }

// Int returns an int-tagged Value.
func Int(v int64) Value { return Value{Class: ClassInt, Int: v} }

// Float returns a float-tagged Value.
func Float(v float64) Value { return Value{Class: ClassFloat, Float: v} }

// String returns a string-tagged Value.
func String(v string) Value { return Value{Class: ClassString, String: v} }

// List returns a list-tagged Value.
func List(items ...Value) Value { return Value{Class: ClassList, List: items} }

// Array returns an ndarray-tagged Value.
func Array(a *NDArray) Value { return Value{Class: ClassNDArray, Array: a} }

type scalarJSON struct {
	Class Class `json:"class"`
	Value any   `json:"value"`
}

type ndarrayJSON struct {
	Class Class  `json:"class"`
	Data  string `json:"data"`
	DType DType  `json:"dtype"`
	Shape []int  `json:"shape"`
}

// MarshalJSON writes the tagged representation of v.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Class {
	case ClassNull:
		return []byte(`{"class":"null"}`), nil
	case ClassInt:
		return json.Marshal(scalarJSON{Class: v.Class, Value: v.Int})
	case ClassFloat:
		if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			return nil, encodeErrorf("", "unsupported float value: %v", v.Float)
		}
		return json.Marshal(scalarJSON{Class: v.Class, Value: v.Float})
	case ClassString:
		return json.Marshal(scalarJSON{Class: v.Class, Value: v.String})
	case ClassNDArray:
		if v.Array == nil {
			return nil, encodeErrorf("", "ndarray value without array")
		}
		shape := v.Array.Shape
		if shape == nil {
			shape = []int{}
		}
		return json.Marshal(ndarrayJSON{
			Class: v.Class,
			Data:  base64.StdEncoding.EncodeToString(v.Array.Data),
			DType: v.Array.DType,
			Shape: shape,
		})
	case ClassList:
		items := v.List
		if items == nil {
			items = []Value{}
		}
		return json.Marshal(scalarJSON{Class: v.Class, Value: items})
	case ClassDict:
		pairs := make([][2]any, len(v.Pairs))
		for i, p := range v.Pairs {
			pairs[i] = [2]any{p.Key, p.Value}
		}
		return json.Marshal(scalarJSON{Class: v.Class, Value: pairs})
	case ClassObject:
		fields := v.Object
		if fields == nil {
			fields = map[string]Value{}
		}
		return json.Marshal(scalarJSON{Class: v.Class, Value: fields})
	default:
		return json.Marshal(struct {
			Class Class `json:"class"`
		}{v.Class})
	}
}

type rawValue struct {
	Class Class           `json:"class"`
	Value json.RawMessage `json:"value"`
	Data  string          `json:"data"`
	DType DType           `json:"dtype"`
	Shape []int           `json:"shape"`
}

// UnmarshalJSON parses the tagged representation. Structural problems
// (a payload of the wrong JSON type, bad base64) are reported as
// *DecodeError. An unknown class is kept as-is for [Decode] to reject.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw rawValue
	if err := json.Unmarshal(data, &raw); err != nil {
		if de, ok := err.(*DecodeError); ok {
			return de
		}
		return &DecodeError{Msg: "malformed value", Err: err}
	}

	*v = Value{Class: raw.Class}
	switch raw.Class {
	case ClassInt:
		n, err := parseInt(raw.Value)
		if err != nil {
			return err
		}
		v.Int = n
	case ClassFloat:
		var num json.Number
		if err := unmarshalPayload(raw, &num); err != nil {
			return err
		}
		f, err := num.Float64()
		if err != nil {
			return &DecodeError{Msg: "float value", Err: err}
		}
		v.Float = f
	case ClassString:
		if err := unmarshalPayload(raw, &v.String); err != nil {
			return err
		}
	case ClassNDArray:
		buf, err := base64.StdEncoding.DecodeString(raw.Data)
		if err != nil {
			return &DecodeError{Msg: "ndarray data", Err: err}
		}
		shape := raw.Shape
		if shape == nil {
			shape = []int{}
		}
		v.Array = &NDArray{DType: raw.DType, Shape: shape, Data: buf}
	case ClassList:
		if err := unmarshalPayload(raw, &v.List); err != nil {
			return err
		}
	case ClassDict:
		var pairs []json.RawMessage
		if err := unmarshalPayload(raw, &pairs); err != nil {
			return err
		}
		v.Pairs = make([]Pair, 0, len(pairs))
		for i, p := range pairs {
			pair, err := parsePair(p)
			if err != nil {
				if de, ok := err.(*DecodeError); ok && de.Path == "" {
					de.Path = childPath("", i)
				}
				return err
			}
			v.Pairs = append(v.Pairs, pair)
		}
	case ClassObject:
		if err := unmarshalPayload(raw, &v.Object); err != nil {
			return err
		}
	}
	return nil
}

func unmarshalPayload(raw rawValue, out any) error {
	if len(raw.Value) == 0 {
		return decodeErrorf("", "%s value missing", raw.Class)
	}
	if err := json.Unmarshal(raw.Value, out); err != nil {
		if de, ok := err.(*DecodeError); ok {
			return de
		}
		return &DecodeError{Msg: fmt.Sprintf("%s value", raw.Class), Err: err}
	}
	return nil
}

// parseInt accepts JSON integers and integral floats that fit in 64 bits.
func parseInt(data json.RawMessage) (int64, error) {
	var num json.Number
	if err := unmarshalPayload(rawValue{Class: ClassInt, Value: data}, &num); err != nil {
		return 0, err
	}
	if n, err := num.Int64(); err == nil {
		return n, nil
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, decodeErrorf("", "int value %s is not a 64-bit integer", num)
	}
	return int64(f), nil
}

func parsePair(data json.RawMessage) (Pair, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil || len(parts) != 2 {
		return Pair{}, decodeErrorf("", "dict entry must be a [key, value] pair")
	}
	var p Pair
	if err := json.Unmarshal(parts[0], &p.Key); err != nil {
		return Pair{}, decodeErrorf("", "dict key must be a string")
	}
	if err := json.Unmarshal(parts[1], &p.Value); err != nil {
		if de, ok := err.(*DecodeError); ok {
			return Pair{}, de
		}
		return Pair{}, &DecodeError{Msg: "dict value", Err: err}
	}
	return p, nil
}

// ParseValue parses one JSON-encoded Wire Value.
func ParseValue(data []byte) (Value, error) {
	var v Value
	if err := json.Unmarshal(data, &v); err != nil {
		if de, ok := err.(*DecodeError); ok {
			return Value{}, de
		}
		return Value{}, &DecodeError{Msg: "malformed value", Err: err}
	}
	return v, nil
}
