package chunker

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Codec turns text into token ids and back. Splitting happens entirely in
// token space so chunk boundaries stay consistent with the embedder's view
// of the text.
type Codec interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type tiktokenCodec struct {
	enc *tiktoken.Tiktoken
}

// NewCodec loads the cl100k_base encoding.
func NewCodec() (Codec, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("chunker: load encoding: %w", err)
	}
	return &tiktokenCodec{enc: enc}, nil
}

func (c *tiktokenCodec) Encode(text string) []int {
	return c.enc.Encode(text, nil, nil)
}

func (c *tiktokenCodec) Decode(tokens []int) string {
	return c.enc.Decode(tokens)
}
