package sliceset_test

import (
	"context"
	"fmt"
	"os"

	"github.com/hupe1980/sliceset"
)

type squareGen struct{ next int }

func (g *squareGen) Generate() int { v := g.next * g.next; g.next++; return v }
func (g *squareGen) Skip(n int)    { g.next += n }

func Example() {
	dir, err := os.MkdirTemp("", "sliceset")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	ctx := context.Background()
	if err := sliceset.Build(ctx, 100, dir, 1<<20, sliceset.Sequential[int](&squareGen{})); err != nil {
		panic(err)
	}

	ds, err := sliceset.Open[int](dir, 1<<20)
	if err != nil {
		panic(err)
	}

	v, err := ds.Get(12)
	if err != nil {
		panic(err)
	}
	fmt.Println(ds.Len(), v)
	// Output: 100 144
}
