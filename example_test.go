package gzblock_test

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/go-faster/gzblock"
	"github.com/go-faster/gzblock/gzpool"
)

func Example() {
	ctx := context.Background()
	pool := gzpool.New(gzpool.Options{Workers: 4})
	defer func() { _ = pool.Close() }()

	var buf bytes.Buffer
	w, err := gzblock.NewWriter(ctx, &buf, gzblock.WriterOptions{
		Pool:      pool,
		BlockSize: 16,
		Header:    gzblock.Header{Name: "hello.txt"},
	})
	if err != nil {
		panic(err)
	}
	if _, err := io.WriteString(w, "Hello, concurrently decoded gzip world!\n"); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}

	// Block sizes are required for concurrent decoding.
	r, err := gzblock.NewReader(ctx, &buf, gzblock.ReaderOptions{
		Pool:   pool,
		Blocks: w.Index().Source(),
	})
	if err != nil {
		panic(err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		panic(err)
	}
	fmt.Println(r.Header().Name, len(w.BlockSizes()))
	fmt.Print(string(data))

	// Output:
	// hello.txt 3
	// Hello, concurrently decoded gzip world!
}
