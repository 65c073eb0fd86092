// Package fs provides filesystem abstractions used to bring up and
// supervise the backing file for a shared memory-mapped cache.
//
// The two implementations are:
//   - [Real]: production use, a thin wrapper over the [os] package.
//   - [Chaos]: testing use, wraps another [FS] and injects failures at
//     chosen call sites so that bring-up error paths can be
//     exercised without corrupting the real filesystem.
package fs

import (
	"io"
	"os"
)

// File represents an open file descriptor.
//
// This interface is satisfied by [os.File]. It exists so page-engine
// bring-up code can be driven against [Chaos] in tests.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the underlying file descriptor, used for mmap and
	// byte-range locking.
	Fd() uintptr

	// Stat returns file metadata. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error

	// Truncate changes the size of the file. See [os.File.Truncate].
	Truncate(size int64) error
}

// FS defines the filesystem operations the page engine needs to bring up
// and tear down its backing file.
type FS interface {
	// OpenFile opens a file with the given flags and permissions. See
	// [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// Stat returns file info, or an error satisfying [os.IsNotExist].
	Stat(path string) (os.FileInfo, error)

	// Remove deletes a file. No error if it does not exist.
	Remove(path string) error

	// Rename atomically replaces newpath with oldpath's contents.
	Rename(oldpath, newpath string) error

	// MkdirAll creates a directory and all parents, as [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error
}

// Compile-time interface check.
var _ File = (*os.File)(nil)
