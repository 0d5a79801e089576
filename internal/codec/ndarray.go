package codec

// DType enumerates the element types an NDArray's data blob may hold.
type DType uint8

const (
	DTypeF16 DType = iota
	DTypeF32
	DTypeF64
	DTypeI8
	DTypeI16
	DTypeI32
	DTypeI64
	DTypeU8
	DTypeU16
	DTypeU32
	DTypeU64
	DTypeBool
)

func (d DType) String() string {
	switch d {
	case DTypeF16:
		return "f16"
	case DTypeF32:
		return "f32"
	case DTypeF64:
		return "f64"
	case DTypeI8:
		return "i8"
	case DTypeI16:
		return "i16"
	case DTypeI32:
		return "i32"
	case DTypeI64:
		return "i64"
	case DTypeU8:
		return "u8"
	case DTypeU16:
		return "u16"
	case DTypeU32:
		return "u32"
	case DTypeU64:
		return "u64"
	case DTypeBool:
		return "bool"
	default:
		return "unknown"
	}
}

// ElemSize returns the byte width of a single element of this dtype.
func (d DType) ElemSize() int {
	switch d {
	case DTypeF16:
		return 2
	case DTypeF32, DTypeI32, DTypeU32:
		return 4
	case DTypeF64, DTypeI64, DTypeU64:
		return 8
	case DTypeI8, DTypeU8, DTypeBool:
		return 1
	case DTypeI16, DTypeU16:
		return 2
	default:
		return 0
	}
}

// ndarrayValue is a row-major tensor: dtype, shape, and the raw element bytes.
type ndarrayValue struct {
	dtype DType
	shape []int64
	data  []byte
}

func (*ndarrayValue) Kind() Kind { return KindNDArray }

// NDArray constructs a tensor Value. data must hold len(shape-product) *
// dtype.ElemSize() bytes in row-major order; callers are responsible for
// producing data in the caller's native byte order (little-endian, matching
// the codec's own integer encoding).
func NDArray(dtype DType, shape []int64, data []byte) Value {
	return &ndarrayValue{dtype: dtype, shape: append([]int64(nil), shape...), data: append([]byte(nil), data...)}
}

// AsNDArray reports whether v is an ndarray Value and returns its fields.
func AsNDArray(v Value) (dtype DType, shape []int64, data []byte, ok bool) {
	n, isND := v.(*ndarrayValue)
	if !isND {
		return 0, nil, nil, false
	}
	return n.dtype, append([]int64(nil), n.shape...), append([]byte(nil), n.data...), true
}

// imageValue carries an encoded image (e.g. PNG/JPEG bytes) plus an
// optional decoded-shape hint.
type imageValue struct {
	format string
	data   []byte
	shape  []int64
}

func (*imageValue) Kind() Kind { return KindImage }

// Image constructs an image Value. format is a lowercase codec name such
// as "png" or "jpeg"; shape is optional (nil when the caller hasn't
// decoded pixel dimensions).
func Image(format string, data []byte, shape []int64) Value {
	var sh []int64
	if shape != nil {
		sh = append([]int64(nil), shape...)
	}
	return &imageValue{format: format, data: append([]byte(nil), data...), shape: sh}
}

// AsImage reports whether v is an image Value and returns its fields.
func AsImage(v Value) (format string, data []byte, shape []int64, ok bool) {
	im, isImg := v.(*imageValue)
	if !isImg {
		return "", nil, nil, false
	}
	var sh []int64
	if im.shape != nil {
		sh = append([]int64(nil), im.shape...)
	}
	return im.format, append([]byte(nil), im.data...), sh, true
}
