// Binary gzblock compresses and decompresses block-structured gzip files.
//
// Compression writes FILE.gz and FILE.gz.blocks.json index, decompression
// uses the index, if present, to inflate blocks concurrently.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-faster/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/go-faster/gzblock"
	"github.com/go-faster/gzblock/gzpool"
	"github.com/go-faster/gzblock/internal/cmd/app"
)

const indexSuffix = ".blocks.json"

type options struct {
	Decompress bool
	Workers    int
	BlockSize  int
	Level      int
	Output     string
	Input      string
}

func openIndex(name string) (*gzblock.Index, error) {
	f, err := os.Open(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	idx, err := gzblock.ReadIndex(f)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}
	return &idx, nil
}

func compress(ctx context.Context, lg *zap.Logger, pool *gzpool.Pool, opt options) (_ int64, rerr error) {
	in, err := os.Open(opt.Input)
	if err != nil {
		return 0, errors.Wrap(err, "open input")
	}
	defer func() { _ = in.Close() }()
	stat, err := in.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat")
	}

	out, err := os.Create(opt.Output)
	if err != nil {
		return 0, errors.Wrap(err, "create output")
	}
	defer func() { multierr.AppendInto(&rerr, out.Close()) }()

	w, err := gzblock.NewWriter(ctx, out, gzblock.WriterOptions{
		Logger:    lg.Named("writer"),
		Pool:      pool,
		Level:     opt.Level,
		BlockSize: opt.BlockSize,
		Header: gzblock.Header{
			Name:    filepath.Base(opt.Input),
			ModTime: stat.ModTime(),
		},
	})
	if err != nil {
		return 0, errors.Wrap(err, "writer")
	}
	if _, err := io.Copy(w, in); err != nil {
		_ = w.Close()
		return 0, errors.Wrap(err, "copy")
	}
	if err := w.Close(); err != nil {
		return 0, errors.Wrap(err, "close")
	}

	idx, err := os.Create(opt.Output + indexSuffix)
	if err != nil {
		return 0, errors.Wrap(err, "create index")
	}
	defer func() { multierr.AppendInto(&rerr, idx.Close()) }()
	if err := gzblock.WriteIndex(idx, w.Index()); err != nil {
		return 0, errors.Wrap(err, "write index")
	}

	lg.Info("Compressed",
		zap.String("output", opt.Output),
		zap.Int("blocks", len(w.BlockSizes())),
		zap.String("size", humanize.Bytes(uint64(stat.Size()))),
		zap.String("compressed", humanize.Bytes(uint64(w.Written()))),
	)
	return stat.Size(), nil
}

func decompress(ctx context.Context, lg *zap.Logger, pool *gzpool.Pool, opt options) (_ int64, rerr error) {
	idx, err := openIndex(opt.Input + indexSuffix)
	if err != nil {
		return 0, errors.Wrap(err, "index")
	}
	ropt := gzblock.ReaderOptions{
		Logger: lg.Named("reader"),
		Pool:   pool,
	}
	if idx != nil {
		ropt.Blocks = idx.Source()
	} else {
		lg.Info("Index not found, decoding sequentially")
	}

	in, err := os.Open(opt.Input)
	if err != nil {
		return 0, errors.Wrap(err, "open input")
	}
	r, err := gzblock.NewReader(ctx, in, ropt)
	if err != nil {
		_ = in.Close()
		return 0, errors.Wrap(err, "reader")
	}
	defer func() { multierr.AppendInto(&rerr, r.Close()) }()

	out, err := os.Create(opt.Output)
	if err != nil {
		return 0, errors.Wrap(err, "create output")
	}
	defer func() { multierr.AppendInto(&rerr, out.Close()) }()

	n, err := io.Copy(out, r)
	if err != nil {
		return 0, errors.Wrap(err, "copy")
	}
	lg.Info("Decompressed",
		zap.String("output", opt.Output),
		zap.String("name", r.Header().Name),
		zap.String("size", humanize.Bytes(uint64(n))),
	)
	return n, nil
}

func main() {
	var (
		opt   options
		debug bool
	)
	flag.BoolVar(&opt.Decompress, "d", false, "decompress")
	flag.IntVar(&opt.Workers, "j", 0, "number of workers, defaults to GOMAXPROCS")
	flag.IntVar(&opt.BlockSize, "b", gzblock.DefaultBlockSize, "uncompressed block size")
	flag.IntVar(&opt.Level, "l", 0, "compression level")
	flag.StringVar(&opt.Output, "o", "", "output file")
	flag.BoolVar(&debug, "v", false, "debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] FILE\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	opt.Input = flag.Arg(0)
	if opt.Output == "" {
		if opt.Decompress {
			opt.Output = strings.TrimSuffix(opt.Input, ".gz")
		} else {
			opt.Output = opt.Input + ".gz"
		}
	}

	app.Run(debug, func(ctx context.Context, lg *zap.Logger) error {
		if opt.Output == opt.Input {
			return errors.Errorf("output %q is the same as input", opt.Output)
		}
		pool := gzpool.New(gzpool.Options{
			Workers: opt.Workers,
			Logger:  lg.Named("pool"),
		})
		defer func() { _ = pool.Close() }()

		start := time.Now()
		run := compress
		if opt.Decompress {
			run = decompress
		}
		n, err := run(ctx, lg, pool, opt)
		if err != nil {
			return err
		}

		duration := time.Since(start)
		stats := pool.Stats()
		lg.Info("Done",
			zap.Duration("duration", duration),
			zap.String("speed", humanize.Bytes(uint64(float64(n)/duration.Seconds()))+"/s"),
			zap.Int("workers", stats.Workers),
			zap.Uint64("tasks", stats.Completed),
		)
		return nil
	})
}
