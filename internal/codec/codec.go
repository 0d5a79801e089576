package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Encode serializes v to its binary wire representation.
func Encode(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeInto(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a single value from the front of b, returning the value
// and any trailing bytes.
func Decode(b []byte) (Value, []byte, error) {
	r := bytes.NewReader(b)
	v, err := decodeFrom(r)
	if err != nil {
		return nil, nil, err
	}
	rest := b[len(b)-r.Len():]
	return v, rest, nil
}

func encodeInto(w *bytes.Buffer, v Value) error {
	if v == nil {
		v = Null
	}
	kind := v.Kind()
	w.WriteByte(byte(kind))
	switch kind {
	case KindNull:
		return nil
	case KindBool:
		b, _ := AsBool(v)
		if b {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}
		return nil
	case KindInt:
		i, _ := AsInt(v)
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(i))
		w.Write(tmp[:])
		return nil
	case KindFloat:
		f, _ := AsFloat(v)
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], float64bits(f))
		w.Write(tmp[:])
		return nil
	case KindString:
		s, _ := AsString(v)
		writeUvarint(w, uint64(len(s)))
		w.WriteString(s)
		return nil
	case KindBytes:
		b, _ := AsBytes(v)
		writeUvarint(w, uint64(len(b)))
		w.Write(b)
		return nil
	case KindList:
		items, _ := AsList(v)
		writeUvarint(w, uint64(len(items)))
		for _, item := range items {
			if err := encodeInto(w, item); err != nil {
				return err
			}
		}
		return nil
	case KindMap:
		mv, _ := AsMap(v)
		keys := mv.Keys()
		writeUvarint(w, uint64(len(keys)))
		for _, k := range keys {
			writeUvarint(w, uint64(len(k)))
			w.WriteString(k)
			val, _ := mv.Get(k)
			if err := encodeInto(w, val); err != nil {
				return err
			}
		}
		return nil
	case KindNDArray:
		dtype, shape, data, _ := AsNDArray(v)
		w.WriteByte(byte(dtype))
		writeUvarint(w, uint64(len(shape)))
		for _, dim := range shape {
			var tmp [8]byte
			binary.LittleEndian.PutUint64(tmp[:], uint64(dim))
			w.Write(tmp[:])
		}
		writeUvarint(w, uint64(len(data)))
		w.Write(data)
		return nil
	case KindImage:
		format, data, shape, _ := AsImage(v)
		writeUvarint(w, uint64(len(format)))
		w.WriteString(format)
		writeUvarint(w, uint64(len(data)))
		w.Write(data)
		if shape == nil {
			w.WriteByte(0)
		} else {
			w.WriteByte(1)
			writeUvarint(w, uint64(len(shape)))
			for _, dim := range shape {
				var tmp [8]byte
				binary.LittleEndian.PutUint64(tmp[:], uint64(dim))
				w.Write(tmp[:])
			}
		}
		return nil
	default:
		return fmt.Errorf("codec: unknown kind %d", kind)
	}
}

func decodeFrom(r *bytes.Reader) (Value, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch Kind(tag) {
	case KindNull:
		return Null, nil
	case KindBool:
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		return Bool(b != 0), nil
	case KindInt:
		var tmp [8]byte
		if _, err := io.ReadFull(r, tmp[:]); err != nil {
			return nil, err
		}
		return Int(int64(binary.LittleEndian.Uint64(tmp[:]))), nil
	case KindFloat:
		var tmp [8]byte
		if _, err := io.ReadFull(r, tmp[:]); err != nil {
			return nil, err
		}
		return Float(float64frombits(binary.LittleEndian.Uint64(tmp[:]))), nil
	case KindString:
		n, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return String(string(buf)), nil
	case KindBytes:
		n, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return Bytes(buf), nil
	case KindList:
		n, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		items := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			item, err := decodeFrom(r)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return List(items...), nil
	case KindMap:
		n, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		b := Map()
		for i := uint64(0); i < n; i++ {
			klen, err := readUvarint(r)
			if err != nil {
				return nil, err
			}
			kbuf := make([]byte, klen)
			if _, err := io.ReadFull(r, kbuf); err != nil {
				return nil, err
			}
			val, err := decodeFrom(r)
			if err != nil {
				return nil, err
			}
			b.Set(string(kbuf), val)
		}
		return b.Build(), nil
	case KindNDArray:
		dtByte, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		ndims, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		shape := make([]int64, ndims)
		for i := range shape {
			var tmp [8]byte
			if _, err := io.ReadFull(r, tmp[:]); err != nil {
				return nil, err
			}
			shape[i] = int64(binary.LittleEndian.Uint64(tmp[:]))
		}
		dlen, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		data := make([]byte, dlen)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
		return NDArray(DType(dtByte), shape, data), nil
	case KindImage:
		flen, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		fbuf := make([]byte, flen)
		if _, err := io.ReadFull(r, fbuf); err != nil {
			return nil, err
		}
		dlen, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		data := make([]byte, dlen)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
		hasShape, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		var shape []int64
		if hasShape != 0 {
			ndims, err := readUvarint(r)
			if err != nil {
				return nil, err
			}
			shape = make([]int64, ndims)
			for i := range shape {
				var tmp [8]byte
				if _, err := io.ReadFull(r, tmp[:]); err != nil {
					return nil, err
				}
				shape[i] = int64(binary.LittleEndian.Uint64(tmp[:]))
			}
		}
		return Image(string(fbuf), data, shape), nil
	default:
		return nil, fmt.Errorf("codec: unknown tag %d", tag)
	}
}

func writeUvarint(w *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.Write(tmp[:n])
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	return binary.ReadUvarint(r)
}
