package encoding

import (
	"encoding/base64"
	"fmt"

	"sag-go/internal/sag"
)

// Base64Encoder encodes content with the standard padded alphabet of RFC 4648.
type Base64Encoder struct{}

var _ sag.ContentEncoder = Base64Encoder{}

// NewBase64Encoder creates a new Base64Encoder.
func NewBase64Encoder() Base64Encoder {
	return Base64Encoder{}
}

func (Base64Encoder) Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func (Base64Encoder) Decode(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sag.ErrEncoding, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}
