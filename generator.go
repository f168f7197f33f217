package sliceset

// Generator produces successive dataset items.
//
// Skip must advance any internal state as if n items had been produced,
// without materializing them. The builder relies on it to fast-forward past
// blocks that already exist on disk when a build is resumed.
type Generator[T any] interface {
	Generate() T
	Skip(n int)
}

// Source pairs a Generator with its concurrency capability. The builder
// branches on the capability once per block: parallel-safe generators have
// block bodies produced by concurrent workers, exclusive generators are
// called strictly one item at a time.
//
// This is a capability dispatch, not a type hierarchy; construct a Source
// with the variant matching the generator's true concurrency safety.
type Source[T any] struct {
	gen      Generator[T]
	parallel bool
}

// Parallel declares g safe for concurrent Generate calls without caller-side
// coordination.
//
// Because workers race on Generate, items of one block may be produced out of
// order; the final block contents preserve generator-defined item identity
// only. Generators whose items depend on call order (and are not keyed by an
// internal index) must use Sequential instead.
func Parallel[T any](g Generator[T]) Source[T] {
	return Source[T]{gen: g, parallel: true}
}

// Sequential declares that g requires exclusive, strictly ordered access.
// Every Generate and Skip call is serialized; blocks are produced one item at
// a time, in order.
func Sequential[T any](g Generator[T]) Source[T] {
	return Source[T]{gen: g}
}
