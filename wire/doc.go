// Package wire implements the tagged value codec shared by the worker loop
// and its controllers.
//
// # Wire Values
//
// Every value crossing the pipe boundary is a JSON object carrying a "class"
// tag:
//
//	{"class": "null"}
//	{"class": "int", "value": 42}
//	{"class": "float", "value": 2.5}
//	{"class": "string", "value": "hello"}
//	{"class": "ndarray", "data": "AAAgQQ==", "dtype": "float32", "shape": [1]}
//	{"class": "list", "value": [{"class": "int", "value": 1}]}
//	{"class": "dict", "value": [["k", {"class": "int", "value": 1}]]}
//	{"class": "object", "value": {"k": {"class": "int", "value": 1}}}
//
// Mappings are asymmetric: [Decode] accepts the "dict" pair form that
// controllers send, while [Encode] produces the "object" form that workers
// return. [DecodeResult] is the controller-side decoder and accepts both.
//
// # Arrays
//
// Dense arrays travel as base64 of their little-endian element bytes.
// [NDArray] holds the raw buffer together with its [DType] and shape, and
// [NewNDArray] / [Elements] convert between typed Go slices and buffers.
package wire
