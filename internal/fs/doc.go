// Package fs provides filesystem abstractions for testability and fault
// injection.
//
// Production code uses fs.Default ([LocalFS]); tests can inject [FaultyFS]
// to simulate write and fsync failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.SetFault(fs.Fault{FailOnSync: true})
//	// inject ffs into the component under test
//
// The package intentionally has no context.Context parameters: local file
// operations are fast and non-interruptible at the syscall level.
package fs
