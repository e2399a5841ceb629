package gzblock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/go-faster/gzblock/gzpool"
)

func TestReader(t *testing.T) {
	for _, tt := range []struct {
		Name string
		Data []byte
	}{
		{Name: "Empty", Data: nil},
		{Name: "Byte", Data: []byte{1}},
		{Name: "Small", Data: []byte("Hi!\n")},
		{Name: "Block-1", Data: randData(DefaultBlockSize - 1)},
		{Name: "Block", Data: randData(DefaultBlockSize)},
		{Name: "Block+1", Data: randData(DefaultBlockSize + 1)},
		{Name: "Random", Data: randData(1024*1024 + 17)},
		{Name: "Text", Data: textData(1024*1024 + 17)},
		{Name: "Zeroes", Data: make([]byte, 512*1024)},
		{Name: "Large", Data: randData(4*1024*1024 + 17)},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			stream, sizes := encode(t, tt.Data, WriterOptions{Workers: 3})
			for workers := 1; workers <= 7; workers++ {
				t.Run(fmt.Sprintf("Workers%d", workers), func(t *testing.T) {
					blocks := sizes
					out, err := decode(t, stream, ReaderOptions{
						Workers: workers,
						Blocks:  &blocks,
					})
					require.NoError(t, err)
					require.True(t, bytes.Equal(tt.Data, out), "mismatch")
					require.Empty(t, blocks, "all blocks should be consumed")
				})
			}
			t.Run("Stream", func(t *testing.T) {
				out, err := decode(t, stream, ReaderOptions{})
				require.NoError(t, err)
				require.True(t, bytes.Equal(tt.Data, out), "mismatch")
			})
		})
	}
}

func TestReader_BlockBoundaries(t *testing.T) {
	data := textData(300_000)
	stream, sizes := encode(t, data, WriterOptions{BlockSize: 10_000})
	require.Greater(t, len(sizes), 1)

	// Sync flush boundaries allow joining any adjacent blocks.
	joined := BlockSizes{int(sizes.Total())}
	for _, workers := range []int{1, 4} {
		blocks := joined
		out, err := decode(t, stream, ReaderOptions{Workers: workers, Blocks: &blocks})
		require.NoError(t, err)
		require.Equal(t, data, out)
	}
	pairs := BlockSizes{sizes[0] + sizes[1]}
	pairs = append(pairs, sizes[2:]...)
	out, err := decode(t, stream, ReaderOptions{Workers: 2, Blocks: &pairs})
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestReader_SmallReads(t *testing.T) {
	data := textData(100_000)
	stream, sizes := encode(t, data, WriterOptions{BlockSize: 4096})
	for _, workers := range []int{1, 3} {
		blocks := sizes
		r, err := NewReader(context.Background(), bytes.NewReader(stream), ReaderOptions{
			Logger:  zaptest.NewLogger(t),
			Workers: workers,
			Blocks:  &blocks,
		})
		require.NoError(t, err)

		out, err := io.ReadAll(iotest.OneByteReader(r))
		require.NoError(t, err)
		require.Equal(t, data, out)
		closeReader(t, r)
	}
}

func TestReader_Pool(t *testing.T) {
	pool := gzpool.New(gzpool.Options{Workers: 4})
	defer func() { require.NoError(t, pool.Close()) }()

	data := randData(500_000)
	stream, sizes := encode(t, data, WriterOptions{Pool: pool, BlockSize: 16 * 1024})
	for i := 0; i < 3; i++ {
		blocks := sizes
		r, err := NewReader(context.Background(), bytes.NewReader(stream), ReaderOptions{
			Pool:   pool,
			Blocks: &blocks,
		})
		require.NoError(t, err)
		out, err := io.ReadAll(r)
		require.NoError(t, err)
		require.Equal(t, data, out)
		require.LessOrEqual(t, r.queue.Peak(), pool.Workers())
		require.NoError(t, r.Close())
	}
	require.Greater(t, pool.Stats().Completed, uint64(0))
}

func TestReader_EmptyBlocks(t *testing.T) {
	hdr, err := appendHeader(nil, Header{OS: OSUnknown}, 0, false)
	require.NoError(t, err)
	stream := appendTrailer(hdr, 0, 0)

	for _, workers := range []int{1, 2} {
		out, err := decode(t, stream, ReaderOptions{Workers: workers, Blocks: &BlockSizes{}})
		require.NoError(t, err)
		require.Empty(t, out)
	}
}

func TestReader_Interop(t *testing.T) {
	data := textData(200_000)
	t.Run("Decode", func(t *testing.T) {
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		w.Name = "data.txt"
		_, err := w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		stream := buf.Bytes()
		r, err := NewReader(context.Background(), bytes.NewReader(stream), ReaderOptions{})
		require.NoError(t, err)
		defer func() { _ = r.Close() }()
		require.Equal(t, "data.txt", r.Header().Name)
		out, err := io.ReadAll(r)
		require.NoError(t, err)
		require.Equal(t, data, out)

		// Whole payload as single block.
		blocks := BlockSizes{len(stream) - r.Header().Len - trailerSize}
		out, err = decode(t, stream, ReaderOptions{Workers: 1, Blocks: &blocks})
		require.NoError(t, err)
		require.Equal(t, data, out)
	})
	t.Run("Encode", func(t *testing.T) {
		stream, _ := encode(t, data, WriterOptions{
			BlockSize: 8192,
			Header:    Header{Name: "data.txt"},
			HeaderCRC: true,
		})
		r, err := gzip.NewReader(bytes.NewReader(stream))
		require.NoError(t, err)
		require.Equal(t, "data.txt", r.Name)
		out, err := io.ReadAll(r)
		require.NoError(t, err)
		require.Equal(t, data, out)
	})
}

func TestReader_Header(t *testing.T) {
	hdr := Header{
		Name:    "hello.txt",
		Comment: "café",
		Extra:   []byte("AB"),
		OS:      3,
	}
	stream, _ := encode(t, []byte("hello"), WriterOptions{Header: hdr, HeaderCRC: true, Level: 9})
	r, err := NewReader(context.Background(), bytes.NewReader(stream), ReaderOptions{})
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	got := r.Header()
	require.Equal(t, hdr.Name, got.Name)
	require.Equal(t, hdr.Comment, got.Comment)
	require.Equal(t, hdr.Extra, got.Extra)
	require.Equal(t, hdr.OS, got.OS)
	require.True(t, got.ModTime.IsZero())
	require.Equal(t, 10+4+len("hello.txt\x00")+len("caf\xe9\x00")+2, got.Len)
}

func TestReader_Errors(t *testing.T) {
	data := textData(50_000)
	stream, sizes := encode(t, data, WriterOptions{BlockSize: 8192})
	require.Greater(t, len(sizes), 2)

	corrupt := func(f func(b []byte) []byte) []byte {
		return f(append([]byte(nil), stream...))
	}
	for _, tt := range []struct {
		Name   string
		Stream []byte
		Code   Error
	}{
		{Name: "Magic", Stream: corrupt(func(b []byte) []byte { b[0] = 'x'; return b }), Code: ErrNotGzipFormat},
		{Name: "Method", Stream: corrupt(func(b []byte) []byte { b[2] = 7; return b }), Code: ErrUnsupportedMethod},
		{Name: "HeaderTruncated", Stream: stream[:5], Code: ErrUnexpectedEndOfInput},
		{Name: "Data", Stream: corrupt(func(b []byte) []byte { b[fixedHeaderSize] = 0xff; return b }), Code: ErrCorruptData},
		{Name: "CRC", Stream: corrupt(func(b []byte) []byte { b[len(b)-8] ^= 1; return b }), Code: ErrCrcMismatch},
		{Name: "Size", Stream: corrupt(func(b []byte) []byte { b[len(b)-4] ^= 1; return b }), Code: ErrSizeMismatch},
		{Name: "TrailerTruncated", Stream: stream[:len(stream)-3], Code: ErrUnexpectedEndOfInput},
		{Name: "NoTrailer", Stream: stream[:len(stream)-trailerSize], Code: ErrUnexpectedEndOfInput},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			for _, workers := range []int{1, 4} {
				blocks := sizes
				_, err := decode(t, tt.Stream, ReaderOptions{Workers: workers, Blocks: &blocks})
				require.ErrorIs(t, err, tt.Code)
				require.True(t, IsErr(err, tt.Code), "%+v", err)
			}
			_, err := decode(t, tt.Stream, ReaderOptions{})
			require.ErrorIs(t, err, tt.Code)
		})
	}
	t.Run("BlockTruncated", func(t *testing.T) {
		truncated := stream[:fixedHeaderSize+sizes[0]+sizes[1]/2]
		for _, workers := range []int{1, 4} {
			blocks := sizes
			_, err := decode(t, truncated, ReaderOptions{Workers: workers, Blocks: &blocks})
			require.ErrorIs(t, err, ErrUnexpectedEndOfInput)
		}
		_, err := decode(t, truncated, ReaderOptions{})
		require.ErrorIs(t, err, ErrUnexpectedEndOfInput)
	})
}

func TestReader_StickyError(t *testing.T) {
	stream, sizes := encode(t, []byte("hello"), WriterOptions{})
	stream[len(stream)-8] ^= 1

	r, err := NewReader(context.Background(), bytes.NewReader(stream), ReaderOptions{Blocks: &sizes})
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	_, err = io.ReadAll(r)
	require.ErrorIs(t, err, ErrCrcMismatch)

	_, again := r.Read(make([]byte, 10))
	require.Equal(t, err, again)
}

func TestReader_Close(t *testing.T) {
	data := randData(200_000)
	stream, sizes := encode(t, data, WriterOptions{BlockSize: 8192})
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("Workers%d", workers), func(t *testing.T) {
			blocks := sizes
			r, err := NewReader(context.Background(), bytes.NewReader(stream), ReaderOptions{
				Workers: workers,
				Blocks:  &blocks,
			})
			require.NoError(t, err)

			buf := make([]byte, 100)
			n, err := r.Read(buf)
			require.NoError(t, err)
			require.Equal(t, data[:n], buf[:n])

			n, err = r.Read(buf[:0])
			require.NoError(t, err)
			require.Zero(t, n)

			require.NoError(t, r.Close())
			closeReader(t, r)

			_, err = r.Read(buf)
			require.ErrorIs(t, err, ErrStreamClosed)
		})
	}
}

type closeRecorder struct {
	io.Reader
	closed int
}

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func TestReader_CloseSource(t *testing.T) {
	stream, _ := encode(t, []byte("hello"), WriterOptions{})
	src := &closeRecorder{Reader: bytes.NewReader(stream)}
	r, err := NewReader(context.Background(), src, ReaderOptions{})
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	require.Equal(t, 1, src.closed)
}

func TestReader_Canceled(t *testing.T) {
	stream, sizes := encode(t, randData(100_000), WriterOptions{BlockSize: 4096})
	for _, workers := range []int{1, 4} {
		ctx, cancel := context.WithCancel(context.Background())
		blocks := sizes
		r, err := NewReader(ctx, bytes.NewReader(stream), ReaderOptions{
			Workers: workers,
			Blocks:  &blocks,
		})
		require.NoError(t, err)
		cancel()

		_, err = io.ReadAll(r)
		require.ErrorIs(t, err, context.Canceled)
		closeReader(t, r)
	}
}

// ctxExecutor runs tasks in new goroutines, recording task contexts.
type ctxExecutor struct {
	mux  sync.Mutex
	ctxs []context.Context
}

func (e *ctxExecutor) Submit(ctx context.Context, task func(ctx context.Context)) error {
	e.mux.Lock()
	e.ctxs = append(e.ctxs, ctx)
	e.mux.Unlock()
	go task(ctx)
	return nil
}

func TestReader_CancelTasks(t *testing.T) {
	stream, sizes := encode(t, randData(100_000), WriterOptions{BlockSize: 4096})
	ctx, cancel := context.WithCancel(context.Background())
	exec := &ctxExecutor{}
	r, err := NewReader(ctx, bytes.NewReader(stream), ReaderOptions{
		Pool:    exec,
		Workers: 4,
		Blocks:  &sizes,
	})
	require.NoError(t, err)
	defer closeReader(t, r)

	_, err = r.Read(make([]byte, 10))
	require.NoError(t, err)
	cancel()

	exec.mux.Lock()
	defer exec.mux.Unlock()
	require.NotEmpty(t, exec.ctxs)
	for _, taskCtx := range exec.ctxs {
		assert.ErrorIs(t, taskCtx.Err(), context.Canceled)
	}
}

func TestReader_TruncatedBlockOrder(t *testing.T) {
	const blockSize = 8192
	data := textData(50_000)
	stream, sizes := encode(t, data, WriterOptions{BlockSize: blockSize})
	require.Greater(t, len(sizes), 4)

	// Cut inside of block 3, blocks 0-2 are complete.
	n := fixedHeaderSize + sizes[0] + sizes[1] + sizes[2] + sizes[3]/2
	truncated := stream[:n]
	for _, workers := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("Workers%d", workers), func(t *testing.T) {
			blocks := sizes
			out, err := decode(t, truncated, ReaderOptions{Workers: workers, Blocks: &blocks})
			require.ErrorIs(t, err, ErrUnexpectedEndOfInput)
			require.Equal(t, data[:3*blockSize], out)
		})
	}
}

func TestReader_Trailing(t *testing.T) {
	// Bytes after trailer are not consumed.
	data := []byte("hello")
	stream, sizes := encode(t, data, WriterOptions{})
	stream = append(stream, "garbage"...)

	out, err := decode(t, stream, ReaderOptions{Blocks: &sizes})
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestReader_BlockLimit(t *testing.T) {
	stream, _ := encode(t, []byte("hello"), WriterOptions{})
	for _, workers := range []int{1, 2} {
		blocks := BlockSizes{maxBlockSize + 1}
		_, err := decode(t, stream, ReaderOptions{Workers: workers, Blocks: &blocks})
		require.ErrorIs(t, err, ErrCorruptData)
		code, ok := AsError(err)
		require.True(t, ok)
		require.Equal(t, ErrCorruptData, code)
	}
}

func BenchmarkReader(b *testing.B) {
	data := textData(8 * 1024 * 1024)
	stream, sizes := encode(b, data, WriterOptions{})
	for _, workers := range []int{1, 2, 4, 8} {
		b.Run(fmt.Sprintf("Workers%d", workers), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(data)))
			for i := 0; i < b.N; i++ {
				blocks := sizes
				r, err := NewReader(context.Background(), bytes.NewReader(stream), ReaderOptions{
					Workers: workers,
					Blocks:  &blocks,
				})
				if err != nil {
					b.Fatal(err)
				}
				if _, err := io.Copy(io.Discard, r); err != nil {
					b.Fatal(err)
				}
				_ = r.Close()
			}
		})
	}
}
