package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// jsonWire is the on-disk shape for a Value when the backing store only
// accepts JSON documents. Binary fields (bytes, ndarray data, image data)
// are base64-encoded.
type jsonWire struct {
	Kind  string         `json:"kind"`
	Bool  *bool          `json:"bool,omitempty"`
	Int   *int64         `json:"int,omitempty"`
	Float *float64       `json:"float,omitempty"`
	Str   *string        `json:"str,omitempty"`
	Bytes *string        `json:"bytes,omitempty"`
	List  []jsonWire     `json:"list,omitempty"`
	Map   []jsonMapEntry `json:"map,omitempty"`
	NDArr *jsonNDArray   `json:"ndarray,omitempty"`
	Img   *jsonImage     `json:"image,omitempty"`
}

type jsonMapEntry struct {
	Key string   `json:"key"`
	Val jsonWire `json:"val"`
}

type jsonNDArray struct {
	DType string  `json:"dtype"`
	Shape []int64 `json:"shape"`
	Data  string  `json:"data"`
}

type jsonImage struct {
	Format string  `json:"format"`
	Data   string  `json:"data"`
	Shape  []int64 `json:"shape,omitempty"`
}

// EncodeJSON renders v as the JSON document form used to persist task
// records and metadata in the backing store.
func EncodeJSON(v Value) ([]byte, error) {
	w, err := toWire(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// DecodeJSON parses a value previously written by EncodeJSON.
func DecodeJSON(b []byte) (Value, error) {
	var w jsonWire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, err
	}
	return fromWire(w)
}

func toWire(v Value) (jsonWire, error) {
	if v == nil {
		v = Null
	}
	switch v.Kind() {
	case KindNull:
		return jsonWire{Kind: "null"}, nil
	case KindBool:
		b, _ := AsBool(v)
		return jsonWire{Kind: "bool", Bool: &b}, nil
	case KindInt:
		i, _ := AsInt(v)
		return jsonWire{Kind: "int", Int: &i}, nil
	case KindFloat:
		f, _ := AsFloat(v)
		return jsonWire{Kind: "float", Float: &f}, nil
	case KindString:
		s, _ := AsString(v)
		return jsonWire{Kind: "string", Str: &s}, nil
	case KindBytes:
		b, _ := AsBytes(v)
		enc := base64.StdEncoding.EncodeToString(b)
		return jsonWire{Kind: "bytes", Bytes: &enc}, nil
	case KindList:
		items, _ := AsList(v)
		list := make([]jsonWire, 0, len(items))
		for _, item := range items {
			w, err := toWire(item)
			if err != nil {
				return jsonWire{}, err
			}
			list = append(list, w)
		}
		return jsonWire{Kind: "list", List: list}, nil
	case KindMap:
		mv, _ := AsMap(v)
		entries := make([]jsonMapEntry, 0, mv.Len())
		for _, k := range mv.Keys() {
			val, _ := mv.Get(k)
			w, err := toWire(val)
			if err != nil {
				return jsonWire{}, err
			}
			entries = append(entries, jsonMapEntry{Key: k, Val: w})
		}
		return jsonWire{Kind: "map", Map: entries}, nil
	case KindNDArray:
		dtype, shape, data, _ := AsNDArray(v)
		return jsonWire{Kind: "ndarray", NDArr: &jsonNDArray{
			DType: dtype.String(), Shape: shape, Data: base64.StdEncoding.EncodeToString(data),
		}}, nil
	case KindImage:
		format, data, shape, _ := AsImage(v)
		return jsonWire{Kind: "image", Img: &jsonImage{
			Format: format, Data: base64.StdEncoding.EncodeToString(data), Shape: shape,
		}}, nil
	default:
		return jsonWire{}, fmt.Errorf("codec: unsupported kind %v for json wire", v.Kind())
	}
}

func fromWire(w jsonWire) (Value, error) {
	switch w.Kind {
	case "null":
		return Null, nil
	case "bool":
		if w.Bool == nil {
			return nil, fmt.Errorf("codec: missing bool field")
		}
		return Bool(*w.Bool), nil
	case "int":
		if w.Int == nil {
			return nil, fmt.Errorf("codec: missing int field")
		}
		return Int(*w.Int), nil
	case "float":
		if w.Float == nil {
			return nil, fmt.Errorf("codec: missing float field")
		}
		return Float(*w.Float), nil
	case "string":
		if w.Str == nil {
			return nil, fmt.Errorf("codec: missing str field")
		}
		return String(*w.Str), nil
	case "bytes":
		if w.Bytes == nil {
			return nil, fmt.Errorf("codec: missing bytes field")
		}
		b, err := base64.StdEncoding.DecodeString(*w.Bytes)
		if err != nil {
			return nil, err
		}
		return Bytes(b), nil
	case "list":
		items := make([]Value, 0, len(w.List))
		for _, item := range w.List {
			v, err := fromWire(item)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return List(items...), nil
	case "map":
		b := Map()
		for _, entry := range w.Map {
			v, err := fromWire(entry.Val)
			if err != nil {
				return nil, err
			}
			b.Set(entry.Key, v)
		}
		return b.Build(), nil
	case "ndarray":
		if w.NDArr == nil {
			return nil, fmt.Errorf("codec: missing ndarray field")
		}
		data, err := base64.StdEncoding.DecodeString(w.NDArr.Data)
		if err != nil {
			return nil, err
		}
		dtype, err := parseDType(w.NDArr.DType)
		if err != nil {
			return nil, err
		}
		return NDArray(dtype, w.NDArr.Shape, data), nil
	case "image":
		if w.Img == nil {
			return nil, fmt.Errorf("codec: missing image field")
		}
		data, err := base64.StdEncoding.DecodeString(w.Img.Data)
		if err != nil {
			return nil, err
		}
		return Image(w.Img.Format, data, w.Img.Shape), nil
	default:
		return nil, fmt.Errorf("codec: unknown json kind %q", w.Kind)
	}
}

func parseDType(s string) (DType, error) {
	switch s {
	case "f16":
		return DTypeF16, nil
	case "f32":
		return DTypeF32, nil
	case "f64":
		return DTypeF64, nil
	case "i8":
		return DTypeI8, nil
	case "i16":
		return DTypeI16, nil
	case "i32":
		return DTypeI32, nil
	case "i64":
		return DTypeI64, nil
	case "u8":
		return DTypeU8, nil
	case "u16":
		return DTypeU16, nil
	case "u32":
		return DTypeU32, nil
	case "u64":
		return DTypeU64, nil
	case "bool":
		return DTypeBool, nil
	default:
		return 0, fmt.Errorf("codec: unknown dtype %q", s)
	}
}
