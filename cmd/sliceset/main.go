// Command sliceset builds and inspects block-chunked datasets from JSON
// lines files. Each line of the input becomes one dataset item, stored as
// raw JSON.
//
// Usage:
//
//	sliceset build -data items.jsonl -dir ./dataset -budget 67108864
//	sliceset info -dir ./dataset
//	sliceset get -dir ./dataset -index 42
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/hupe1980/sliceset"
	"github.com/hupe1980/sliceset/codec"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error

	switch os.Args[1] {
	case "build":
		err = runBuild(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:])
	case "get":
		err = runGet(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "sliceset:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  sliceset build -data <items.jsonl> -dir <dataset dir> [-budget <bytes>] [-codec <name>] [-length <n>] [-v]
  sliceset info  -dir <dataset dir>
  sliceset get   -dir <dataset dir> -index <i> [-budget <bytes>] [-codec <name>]`)
}

// lineGen yields one raw JSON value per input line. It is exclusive: the
// builder calls it from a single goroutine in item order.
type lineGen struct {
	scanner *bufio.Scanner
}

func (g *lineGen) Generate() json.RawMessage {
	if !g.scanner.Scan() {
		if err := g.scanner.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "sliceset: read input:", err)
		} else {
			fmt.Fprintln(os.Stderr, "sliceset: input shorter than requested length")
		}
		os.Exit(1)
	}

	return json.RawMessage(append([]byte(nil), g.scanner.Bytes()...))
}

func (g *lineGen) Skip(n int) {
	for i := 0; i < n && g.scanner.Scan(); i++ {
	}
}

func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)

	var (
		data      = fs.String("data", "", "input JSON lines file, one item per line")
		dir       = fs.String("dir", "", "dataset directory")
		budget    = fs.Int("budget", 64<<20, "memory budget per block in bytes")
		codecName = fs.String("codec", codec.Default.Name(), "item codec")
		length    = fs.Int("length", 0, "number of items to store (default: all input lines)")
		verbose   = fs.Bool("v", false, "log build progress")
	)

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *data == "" || *dir == "" {
		fs.Usage()
		return fmt.Errorf("build requires -data and -dir")
	}

	c, ok := codec.ByName(*codecName)
	if !ok {
		return fmt.Errorf("unknown codec %q", *codecName)
	}

	n := *length
	if n <= 0 {
		count, err := countLines(*data)
		if err != nil {
			return err
		}

		n = count
	}

	f, err := os.Open(*data)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 16<<20)

	opts := []sliceset.Option{sliceset.WithCodec(c)}

	if *verbose {
		opts = append(opts, sliceset.WithLogger(sliceset.NewTextLogger(slog.LevelDebug)))
	} else {
		bar := pb.New(n)
		bar.Output = os.Stderr
		bar.Start()
		defer bar.Finish()

		opts = append(opts, sliceset.WithProgress(func(done, total int) {
			bar.Set(done)
		}))
	}

	src := sliceset.Sequential[json.RawMessage](&lineGen{scanner: scanner})

	return sliceset.Build(context.Background(), n, *dir, *budget, src, opts...)
}

func runInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)

	dir := fs.String("dir", "", "dataset directory")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *dir == "" {
		fs.Usage()
		return fmt.Errorf("info requires -dir")
	}

	ds, err := sliceset.Open[json.RawMessage](*dir, 0)
	if err != nil {
		return err
	}

	fmt.Printf("length:     %d\n", ds.Len())
	fmt.Printf("blocks:     %d\n", ds.Blocks())
	fmt.Printf("block size: %d\n", ds.BlockSize())

	return nil
}

func runGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)

	var (
		dir       = fs.String("dir", "", "dataset directory")
		index     = fs.Int("index", -1, "item index")
		budget    = fs.Int("budget", 64<<20, "cache memory budget in bytes")
		codecName = fs.String("codec", codec.Default.Name(), "item codec")
	)

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *dir == "" || *index < 0 {
		fs.Usage()
		return fmt.Errorf("get requires -dir and -index")
	}

	c, ok := codec.ByName(*codecName)
	if !ok {
		return fmt.Errorf("unknown codec %q", *codecName)
	}

	ds, err := sliceset.Open[json.RawMessage](*dir, *budget, sliceset.WithCodec(c))
	if err != nil {
		return err
	}

	item, err := ds.Get(*index)
	if err != nil {
		return err
	}

	fmt.Println(string(item))

	return nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 16<<20)

	n := 0
	for scanner.Scan() {
		n++
	}

	return n, scanner.Err()
}