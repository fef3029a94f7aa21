package sag

// ContentEncoder turns binary file content into text that can be embedded in
// the JSON container, and back. Encode and Decode are exact inverses.
type ContentEncoder interface {
	Encode(data []byte) string

	// Decode fails with ErrEncoding when text is not valid encoded data.
	Decode(text string) ([]byte, error)
}
