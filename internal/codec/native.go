package codec

// ToNative renders v as plain Go data (map[string]any, []any, string, int64,
// float64, bool, nil, []byte) for callers that need a generic representation,
// currently only the pub/sub topic filter's CEL evaluator (internal/pubsub),
// which expects cel.DynType-compatible values rather than the tagged Value
// interface. ndarray and image extensions degrade to their raw byte data;
// the filter has no use for shape/dtype metadata.
func ToNative(v Value) any {
	if v == nil {
		return nil
	}
	switch v.Kind() {
	case KindNull:
		return nil
	case KindBool:
		b, _ := AsBool(v)
		return b
	case KindInt:
		i, _ := AsInt(v)
		return i
	case KindFloat:
		f, _ := AsFloat(v)
		return f
	case KindString:
		s, _ := AsString(v)
		return s
	case KindBytes:
		b, _ := AsBytes(v)
		return []byte(b)
	case KindList:
		items, _ := AsList(v)
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = ToNative(item)
		}
		return out
	case KindMap:
		mv, _ := AsMap(v)
		out := make(map[string]any, mv.Len())
		for _, k := range mv.Keys() {
			val, _ := mv.Get(k)
			out[k] = ToNative(val)
		}
		return out
	case KindNDArray:
		_, _, data, _ := AsNDArray(v)
		return data
	case KindImage:
		_, data, _, _ := AsImage(v)
		return data
	default:
		return nil
	}
}
