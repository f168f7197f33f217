package sliceset

import (
	"runtime"

	"github.com/hupe1980/sliceset/codec"
	"github.com/hupe1980/sliceset/internal/fs"
)

type options struct {
	codec       codec.Codec
	logger      *Logger
	fsys        fs.FileSystem
	parallelism int
	progress    func(done, total int)
}

// Option configures Build and Open behavior.
type Option func(*options)

func defaultOptions() options {
	return options{
		codec:       codec.Default,
		logger:      NoopLogger(),
		fsys:        fs.Default,
		parallelism: runtime.GOMAXPROCS(0),
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithCodec configures the codec used to encode and decode items.
//
// Builder and readers of one dataset directory must agree on the codec.
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithLogger configures structured logging. The default discards all output.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithParallelism bounds the number of concurrent workers used to generate a
// block when the generator is parallel-safe. Values below 1 fall back to
// GOMAXPROCS. Sequential generators ignore it.
func WithParallelism(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = runtime.GOMAXPROCS(0)
		}
		o.parallelism = n
	}
}

// WithProgress registers a callback invoked by Build after every persisted or
// skipped block with the number of items settled so far and the total length.
// Open ignores it.
func WithProgress(fn func(done, total int)) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// withFileSystem swaps the filesystem. Tests use it for fault injection.
func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fsys = fsys
	}
}
