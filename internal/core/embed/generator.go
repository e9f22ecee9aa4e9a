package embed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrEmptyInput is returned when a single-text embed gets only whitespace.
var ErrEmptyInput = errors.New("embed: empty input")

// Encoder produces one embedding per input text.
type Encoder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Close() error
}

// BuildFunc constructs the backing encoder on first use.
type BuildFunc func(ctx context.Context) (Encoder, error)

// Generator wraps an Encoder with lazy initialization, sub-batching and
// L2 normalization. The encoder is built on the first embed call and
// verified with a warm-up request before it is cached; a failed build is
// retried on the next call.
type Generator struct {
	mu    sync.Mutex
	enc   Encoder
	build BuildFunc

	dim   int
	batch int
	log   *zap.Logger
}

func NewGenerator(build BuildFunc, dim, batch int, logger *zap.Logger) *Generator {
	if batch <= 0 {
		batch = 32
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{build: build, dim: dim, batch: batch, log: logger}
}

// Dim reports the expected embedding dimensionality.
func (g *Generator) Dim() int { return g.dim }

// Ready reports whether the backing encoder has been built and warmed up.
func (g *Generator) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enc != nil
}

func (g *Generator) encoder(ctx context.Context) (Encoder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.enc != nil {
		return g.enc, nil
	}

	g.log.Info("initializing embedding encoder")
	enc, err := g.build(ctx)
	if err != nil {
		return nil, fmt.Errorf("embed: init encoder: %w", err)
	}
	if _, err := enc.Embed(ctx, []string{"warmup"}); err != nil {
		enc.Close()
		return nil, fmt.Errorf("embed: warm-up failed: %w", err)
	}

	g.enc = enc
	return enc, nil
}

// EmbedBatch embeds every non-whitespace text, preserving their relative
// order. Whitespace-only entries are dropped, so the result can be shorter
// than the input. All vectors are unit length and exactly Dim wide.
func (g *Generator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	kept := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}

	enc, err := g.encoder(ctx)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(kept))
	for start := 0; start < len(kept); start += g.batch {
		end := start + g.batch
		if end > len(kept) {
			end = len(kept)
		}

		vectors, err := enc.Embed(ctx, kept[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed: batch [%d:%d]: %w", start, end, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("embed: got %d vectors for %d texts", len(vectors), end-start)
		}
		for _, v := range vectors {
			if len(v) != g.dim {
				return nil, fmt.Errorf("embed: vector has %d dimensions, want %d", len(v), g.dim)
			}
			normalize(v)
			out = append(out, v)
		}
	}
	return out, nil
}

// EmbedSingle embeds one text.
func (g *Generator) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Close releases the backing encoder if one was built.
func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.enc == nil {
		return nil
	}
	err := g.enc.Close()
	g.enc = nil
	return err
}

// normalize scales v to unit L2 length in place. Zero vectors stay zero.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
