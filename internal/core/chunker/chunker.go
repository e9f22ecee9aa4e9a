package chunker

import (
	"fmt"
	"strings"
)

// Chunk is one token window of a document, decoded back to text.
// StartToken/EndToken are half-open offsets into the document's token
// stream; TotalTokens is the full stream length, identical on every chunk.
type Chunk struct {
	Text        string
	Index       int
	StartToken  int
	EndToken    int
	TokenCount  int
	TotalTokens int
}

// Chunker splits text into fixed-size token windows with overlap carried
// between consecutive windows.
type Chunker struct {
	codec   Codec
	size    int
	overlap int
}

// New validates the window geometry. Overlap must leave the window making
// forward progress, so overlap >= size is rejected.
func New(codec Codec, size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunker: size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunker: overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunker: overlap %d must be smaller than size %d", overlap, size)
	}
	return &Chunker{codec: codec, size: size, overlap: overlap}, nil
}

// Split tokenizes text once and walks fixed windows over the token stream.
// Each window after the first starts overlap tokens before the previous
// window's end. Empty or whitespace-only input yields no chunks.
func (c *Chunker) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	tokens := c.codec.Encode(text)
	total := len(tokens)
	if total == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < total {
		end := start + c.size
		if end > total {
			end = total
		}
		window := tokens[start:end]
		chunks = append(chunks, Chunk{
			Text:        c.codec.Decode(window),
			Index:       len(chunks),
			StartToken:  start,
			EndToken:    end,
			TokenCount:  len(window),
			TotalTokens: total,
		})
		if end >= total {
			break
		}
		start = end - c.overlap
	}
	return chunks
}
