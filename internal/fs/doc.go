// Package fs provides filesystem abstractions for testability and fault injection.
//
//   - [LocalFS]: production implementation using the standard os package
//   - [FaultyFS]: test wrapper that injects I/O errors and counts writes/renames
//
// Production code uses fs.Default (which is [LocalFS]). Tests inject [FaultyFS]
// to simulate torn writes, unwritable paths and failed renames:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("3.slice", fs.Fault{FailAfterBytes: 16})
//
// Operations intentionally take no context.Context: local filesystem calls are
// fast and non-interruptible at the syscall level.
package fs
