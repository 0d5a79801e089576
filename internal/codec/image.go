package codec

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// DecodeImageShape inspects encoded image bytes and returns the pixel
// shape as [height, width, channels], mirroring the row-major convention
// ndarray uses. It never re-encodes the image; decoding is purely to
// recover dimensions for the optional shape hint on an image Value.
func DecodeImageShape(data []byte) ([]int64, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("codec: decode image for shape: %w", err)
	}
	bounds := img.Bounds()
	return []int64{int64(bounds.Dy()), int64(bounds.Dx()), 4}, nil
}

// NewImageValue builds an image Value from raw encoded bytes, always
// inspecting dimensions with DecodeImageShape for the shape hint. A
// decode failure is non-fatal: the image is still stored, just without a
// shape hint, since Zaku treats image bytes as opaque payload.
func NewImageValue(format string, data []byte) Value {
	shape, err := DecodeImageShape(data)
	if err != nil {
		return Image(format, data, nil)
	}
	return Image(format, data, shape)
}
