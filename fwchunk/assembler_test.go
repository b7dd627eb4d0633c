package fwchunk_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gordian-engine/fwmerkle"
	"github.com/gordian-engine/fwmerkle/fwchunk"
	"github.com/gordian-engine/fwmerkle/fwhash"
	"github.com/gordian-engine/fwmerkle/internal/dtest"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// writerAtBuffer is a minimal io.WriterAt backed by a fixed-size slice.
type writerAtBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (w *writerAtBuffer) WriteAt(p []byte, off int64) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return copy(w.buf[off:], p), nil
}

type failingWriterAt struct{}

func (failingWriterAt) WriteAt([]byte, int64) (int, error) {
	return 0, errors.New("disk full")
}

func chunksOf(data []byte, chunkSize int) [][]byte {
	var out [][]byte
	for len(data) > chunkSize {
		out = append(out, data[:chunkSize])
		data = data[chunkSize:]
	}
	return append(out, data)
}

// expectedRoot builds the root by setting every chunk in order on a plain tree.
func expectedRoot(t *testing.T, chunks [][]byte) []byte {
	t.Helper()

	tree, err := fwmerkle.NewTree(fwmerkle.TreeConfig{
		Width: len(chunks),
		Hash:  fwhash.SHA256,
	})
	require.NoError(t, err)
	for i, c := range chunks {
		require.NoError(t, tree.Set(i, c))
	}
	return tree.RootHash()
}

func TestNewAssembler_chunkCount(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		size      int64
		chunkSize int
		n         int
		lastLen   int
	}{
		{size: 0, chunkSize: 16, n: 1, lastLen: 0},
		{size: 1, chunkSize: 16, n: 1, lastLen: 1},
		{size: 16, chunkSize: 16, n: 1, lastLen: 16},
		{size: 17, chunkSize: 16, n: 2, lastLen: 1},
		{size: 100, chunkSize: 10, n: 10, lastLen: 10},
		{size: 101, chunkSize: 10, n: 11, lastLen: 1},
	} {
		a, err := fwchunk.NewAssembler(dtest.NewLogger(t), fwchunk.AssemblerConfig{
			Size:      tc.size,
			ChunkSize: tc.chunkSize,
			Hash:      fwhash.SHA256,
		})
		require.NoError(t, err)
		require.Equal(t, tc.n, a.NumChunks())
		require.Equal(t, tc.lastLen, a.ChunkLen(tc.n-1))
		require.Equal(t, -1, a.ChunkLen(tc.n))
		require.Equal(t, -1, a.ChunkLen(-1))
	}
}

func TestNewAssembler_invalid(t *testing.T) {
	t.Parallel()

	_, err := fwchunk.NewAssembler(dtest.NewLogger(t), fwchunk.AssemblerConfig{
		Size:      10,
		ChunkSize: 0,
		Hash:      fwhash.SHA256,
	})
	require.Error(t, err)

	_, err = fwchunk.NewAssembler(dtest.NewLogger(t), fwchunk.AssemblerConfig{
		Size:      -1,
		ChunkSize: 4,
		Hash:      fwhash.SHA256,
	})
	require.Error(t, err)
}

func TestAssembler_outOfOrder(t *testing.T) {
	t.Parallel()

	const chunkSize = 100
	data := dtest.RandomDataForTest(t, 1234)
	chunks := chunksOf(data, chunkSize)
	want := expectedRoot(t, chunks)

	dst := &writerAtBuffer{buf: make([]byte, len(data))}
	a, err := fwchunk.NewAssembler(dtest.NewLogger(t), fwchunk.AssemblerConfig{
		Size:         int64(len(data)),
		ChunkSize:    chunkSize,
		Hash:         fwhash.SHA256,
		Dst:          dst,
		ExpectedRoot: want,
	})
	require.NoError(t, err)
	require.Equal(t, len(chunks), a.NumChunks())

	rng := dtest.RandForTest(t)
	order := make([]int, len(chunks))
	for i := range order {
		order[i] = i
	}
	for i := len(order) - 1; i > 0; i-- {
		j := int(rng.Uint64() % uint64(i+1))
		order[i], order[j] = order[j], order[i]
	}

	for n, i := range order {
		require.Nil(t, a.Root())
		require.Len(t, a.Missing(), len(chunks)-n)
		require.NoError(t, a.AddChunk(context.Background(), i, chunks[i]))
	}

	select {
	case <-a.RootReady():
	default:
		t.Fatal("root should be ready after the final chunk")
	}

	require.Equal(t, want, a.Root())
	require.Empty(t, a.Missing())
	require.Equal(t, data, dst.buf)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	root, err := a.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, want, root)
}

func TestAssembler_concurrent(t *testing.T) {
	t.Parallel()

	const chunkSize = 64
	data := dtest.RandomDataForTest(t, 64*97+13)
	chunks := chunksOf(data, chunkSize)
	want := expectedRoot(t, chunks)

	a, err := fwchunk.NewAssembler(dtest.NewLogger(t), fwchunk.AssemblerConfig{
		Size:      int64(len(data)),
		ChunkSize: chunkSize,
		Hash:      fwhash.SHA256,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	waitRes := make(chan []byte, 1)
	go func() {
		root, err := a.Wait(ctx)
		if err != nil {
			waitRes <- nil
			return
		}
		waitRes <- root
	}()

	// Each worker adds every chunk index congruent to its own index.
	const nWorkers = 8
	errs := make(chan error, len(chunks))
	var wg sync.WaitGroup
	for w := range nWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := len(chunks) - 1 - w; i >= 0; i -= nWorkers {
				errs <- a.AddChunk(context.Background(), i, chunks[i])
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	select {
	case root := <-waitRes:
		require.Equal(t, want, root)
	case <-ctx.Done():
		t.Fatal("timed out waiting for root")
	}
}

func TestAssembler_AddChunk_errors(t *testing.T) {
	t.Parallel()

	a, err := fwchunk.NewAssembler(dtest.NewLogger(t), fwchunk.AssemblerConfig{
		Size:      10,
		ChunkSize: 4,
		Hash:      fwhash.SHA256,
	})
	require.NoError(t, err)
	require.Equal(t, 3, a.NumChunks())

	require.ErrorIs(t, a.AddChunk(context.Background(), 3, []byte("abcd")), fwmerkle.ErrIndexOutOfRange)
	require.ErrorIs(t, a.AddChunk(context.Background(), 0, []byte("abc")), fwchunk.ErrChunkSize)

	// The last chunk is short.
	require.ErrorIs(t, a.AddChunk(context.Background(), 2, []byte("abcd")), fwchunk.ErrChunkSize)
	require.NoError(t, a.AddChunk(context.Background(), 2, []byte("ab")))
	require.ErrorIs(t, a.AddChunk(context.Background(), 2, []byte("ab")), fwmerkle.ErrAlreadySet)

	require.Equal(t, []int{0, 1}, a.Missing())
}

func TestAssembler_writeFailure(t *testing.T) {
	t.Parallel()

	a, err := fwchunk.NewAssembler(dtest.NewLogger(t), fwchunk.AssemblerConfig{
		Size:      8,
		ChunkSize: 4,
		Hash:      fwhash.SHA256,
		Dst:       failingWriterAt{},
	})
	require.NoError(t, err)

	require.ErrorContains(t, a.AddChunk(context.Background(), 0, []byte("abcd")), "disk full")

	// The chunk was not recorded.
	require.Equal(t, []int{0, 1}, a.Missing())
}

func TestAssembler_rootMismatch(t *testing.T) {
	t.Parallel()

	a, err := fwchunk.NewAssembler(dtest.NewLogger(t), fwchunk.AssemblerConfig{
		Size:         8,
		ChunkSize:    4,
		Hash:         fwhash.SHA256,
		ExpectedRoot: bytes.Repeat([]byte{0xaa}, 32),
	})
	require.NoError(t, err)

	require.NoError(t, a.AddChunk(context.Background(), 1, []byte("efgh")))
	require.ErrorIs(t, a.AddChunk(context.Background(), 0, []byte("abcd")), fwchunk.ErrRootMismatch)

	// The computed root is still reported.
	require.Equal(t, expectedRoot(t, [][]byte{[]byte("abcd"), []byte("efgh")}), a.Root())

	root, err := a.Wait(context.Background())
	require.ErrorIs(t, err, fwchunk.ErrRootMismatch)
	require.NotNil(t, root)
}

func TestAssembler_Wait_canceled(t *testing.T) {
	t.Parallel()

	a, err := fwchunk.NewAssembler(dtest.NewLogger(t), fwchunk.AssemblerConfig{
		Size:      8,
		ChunkSize: 4,
		Hash:      fwhash.SHA256,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root, err := a.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, root)
}

func TestAssembler_progressRoundTrip(t *testing.T) {
	t.Parallel()

	a, err := fwchunk.NewAssembler(dtest.NewLogger(t), fwchunk.AssemblerConfig{
		Size:      1000,
		ChunkSize: 10,
		Hash:      fwhash.XXH64,
	})
	require.NoError(t, err)

	for _, i := range []int{0, 7, 63, 64, 99} {
		require.NoError(t, a.AddChunk(context.Background(), i, make([]byte, 10)))
	}

	var buf bytes.Buffer
	require.NoError(t, a.WriteProgress(&buf))

	got, err := fwchunk.ReadProgress(&buf, a.NumChunks())
	require.NoError(t, err)
	require.True(t, a.Have().Equal(got))
	require.Equal(t, uint(5), got.Count())

	_, err = fwchunk.ReadProgress(&buf, 0)
	require.Error(t, err)
}

func TestAssembler_tracing(t *testing.T) {
	t.Parallel()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() {
		require.NoError(t, tp.Shutdown(context.Background()))
	}()

	a, err := fwchunk.NewAssembler(dtest.NewLogger(t), fwchunk.AssemblerConfig{
		Size:           8,
		ChunkSize:      4,
		Hash:           fwhash.SHA256,
		TracerProvider: tp,
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.AddChunk(ctx, 1, []byte("efgh")))
	require.ErrorIs(t, a.AddChunk(ctx, 0, []byte("ab")), fwchunk.ErrChunkSize)
	require.NoError(t, a.AddChunk(ctx, 0, []byte("abcd")))

	spans := sr.Ended()
	require.Len(t, spans, 3)
	for _, s := range spans {
		require.Equal(t, "add chunk", s.Name())
	}

	require.Contains(t, spans[0].Attributes(), attribute.Int("fwchunk.chunk.index", 1))
	require.Contains(t, spans[0].Attributes(), attribute.Int("fwchunk.remaining", 1))
	require.NotEqual(t, codes.Error, spans[0].Status().Code)

	require.Equal(t, codes.Error, spans[1].Status().Code)
	require.Len(t, spans[1].Events(), 1)
	require.Equal(t, "add chunk failed", spans[1].Events()[0].Name)

	events := spans[2].Events()
	require.Len(t, events, 1)
	require.Equal(t, "root ready", events[0].Name)
}
