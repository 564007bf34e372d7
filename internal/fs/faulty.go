package fs

import (
	"errors"
	"os"
	"sync"
)

// ErrInjected is the error returned by injected faults unless a custom
// error is configured.
var ErrInjected = errors.New("injected fault error")

// Fault defines specific failure behavior for files opened through a
// FaultyFS.
type Fault struct {
	FailAfterBytes int64 // Fail writes once this many bytes were written. -1 to disable.
	FailOnSync     bool
	Err            error
}

// FaultyFS is a FileSystem wrapper that injects errors, used to test the
// store's durability error paths. Faults armed with SetFault apply to all
// files opened through the wrapper, including ones already open.
type FaultyFS struct {
	FS FileSystem

	mu    sync.Mutex
	fault Fault
}

// NewFaultyFS creates a new FaultyFS wrapping the provided FS (or Default
// if nil). Initially no faults are armed.
func NewFaultyFS(fsys FileSystem) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}
	return &FaultyFS{
		FS:    fsys,
		fault: Fault{FailAfterBytes: -1},
	}
}

// SetFault arms the given fault.
func (f *FaultyFS) SetFault(fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fault.Err == nil {
		fault.Err = ErrInjected
	}
	f.fault = fault
}

func (f *FaultyFS) currentFault() Fault {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fault
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fs: f}, nil
}

func (f *FaultyFS) Remove(name string) error             { return f.FS.Remove(name) }
func (f *FaultyFS) Rename(oldpath, newpath string) error { return f.FS.Rename(oldpath, newpath) }
func (f *FaultyFS) Stat(name string) (os.FileInfo, error) {
	return f.FS.Stat(name)
}

type faultyFile struct {
	File

	fs *FaultyFS

	mu      sync.Mutex
	written int64
}

func (ff *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	fault := ff.fs.currentFault()

	ff.mu.Lock()
	defer ff.mu.Unlock()

	if fault.FailAfterBytes >= 0 && ff.written+int64(len(p)) > fault.FailAfterBytes {
		return 0, fault.Err
	}
	ff.written += int64(len(p))

	return ff.File.WriteAt(p, off)
}

func (ff *faultyFile) Sync() error {
	fault := ff.fs.currentFault()
	if fault.FailOnSync {
		return fault.Err
	}
	return ff.File.Sync()
}
