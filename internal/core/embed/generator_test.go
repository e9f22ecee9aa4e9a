package embed

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEncoder records every batch it receives and returns fixed-width
// vectors whose first component is the text length.
type fakeEncoder struct {
	mu      sync.Mutex
	batches [][]string
	dim     int
	closed  bool
}

func (f *fakeEncoder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out, nil
}

func (f *fakeEncoder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func builderFor(enc Encoder) BuildFunc {
	return func(context.Context) (Encoder, error) { return enc, nil }
}

func TestEncoderBuiltOnceAcrossGoroutines(t *testing.T) {
	var builds atomic.Int32
	enc := &fakeEncoder{dim: 4}
	g := NewGenerator(func(context.Context) (Encoder, error) {
		builds.Add(1)
		return enc, nil
	}, 4, 32, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.EmbedSingle(context.Background(), "hello")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	// First recorded batch is the warm-up probe.
	require.NotEmpty(t, enc.batches)
	assert.Equal(t, []string{"warmup"}, enc.batches[0])
}

func TestFailedInitRetriedOnNextCall(t *testing.T) {
	var builds atomic.Int32
	enc := &fakeEncoder{dim: 4}
	g := NewGenerator(func(context.Context) (Encoder, error) {
		if builds.Add(1) == 1 {
			return nil, errors.New("credentials not ready")
		}
		return enc, nil
	}, 4, 32, nil)

	_, err := g.EmbedSingle(context.Background(), "hello")
	require.Error(t, err)

	vec, err := g.EmbedSingle(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, int32(2), builds.Load())
}

func TestFailedWarmupClosesEncoder(t *testing.T) {
	bad := &failingEncoder{}
	g := NewGenerator(builderFor(bad), 4, 32, nil)

	_, err := g.EmbedSingle(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, bad.closed)
}

type failingEncoder struct{ closed bool }

func (f *failingEncoder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("model unavailable")
}
func (f *failingEncoder) Close() error { f.closed = true; return nil }

func TestEmbedBatchFiltersWhitespace(t *testing.T) {
	enc := &fakeEncoder{dim: 4}
	g := NewGenerator(builderFor(enc), 4, 32, nil)

	vectors, err := g.EmbedBatch(context.Background(), []string{"one", "  ", "", "two"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
}

func TestEmbedBatchAllWhitespaceSkipsInit(t *testing.T) {
	var builds atomic.Int32
	g := NewGenerator(func(context.Context) (Encoder, error) {
		builds.Add(1)
		return &fakeEncoder{dim: 4}, nil
	}, 4, 32, nil)

	vectors, err := g.EmbedBatch(context.Background(), []string{"", "   "})
	require.NoError(t, err)
	assert.Nil(t, vectors)
	assert.Equal(t, int32(0), builds.Load())
}

func TestEmbedBatchSubBatches(t *testing.T) {
	enc := &fakeEncoder{dim: 4}
	g := NewGenerator(builderFor(enc), 4, 2, nil)

	texts := []string{"a", "b", "c", "d", "e"}
	vectors, err := g.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vectors, 5)

	// Warm-up batch, then 2+2+1.
	require.Len(t, enc.batches, 4)
	assert.Len(t, enc.batches[1], 2)
	assert.Len(t, enc.batches[2], 2)
	assert.Len(t, enc.batches[3], 1)
}

func TestVectorsAreUnitLength(t *testing.T) {
	enc := &fakeEncoder{dim: 4}
	g := NewGenerator(builderFor(enc), 4, 32, nil)

	vec, err := g.EmbedSingle(context.Background(), "hello")
	require.NoError(t, err)

	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
}

func TestDimensionMismatchRejected(t *testing.T) {
	enc := &fakeEncoder{dim: 3}
	g := NewGenerator(builderFor(enc), 4, 32, nil)

	_, err := g.EmbedBatch(context.Background(), []string{"hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
}

func TestReadyReflectsEncoderState(t *testing.T) {
	g := NewGenerator(builderFor(&fakeEncoder{dim: 4}), 4, 32, nil)
	assert.False(t, g.Ready())

	_, err := g.EmbedSingle(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, g.Ready())

	require.NoError(t, g.Close())
	assert.False(t, g.Ready())
}

func TestEmbedSingleEmptyInput(t *testing.T) {
	g := NewGenerator(builderFor(&fakeEncoder{dim: 4}), 4, 32, nil)
	_, err := g.EmbedSingle(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}
