package pagecache

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	pcfs "sharedmap.dev/sharedmap/pkg/fs"
)

// backingFile is the result of bringing up a cache's backing file: an
// open handle sized to num_pages*page_size, plus whether this bring-up
// (re)created it from scratch.
type backingFile struct {
	file    pcfs.File
	size    int64
	created bool
}

// bringUp opens or creates the backing file described by opts.
//
// A file is (re)created from scratch when init_file is set, when the
// path does not exist, or when an existing file has the wrong size; any
// of those is indistinguishable from "there is no usable file here yet"
// and gets the fail-open treatment of reformatting every page. share_file
// cannot be replaced by a rename, since the caller already owns the
// descriptor: it is truncated to the right size in place instead, and
// reformatted when init_file is set or its size was wrong.
func bringUp(filesystem pcfs.FS, opts Options) (*backingFile, error) {
	size := int64(opts.NumPages) * int64(opts.PageSize)

	if opts.ShareFile != nil {
		fi, err := opts.ShareFile.Stat()
		if err != nil {
			return nil, fmt.Errorf("%w: stat share_file: %w", ErrBringUp, err)
		}

		reformat := fi.Size() != size || opts.InitFile

		if reformat {
			if err := opts.ShareFile.Truncate(size); err != nil {
				return nil, fmt.Errorf("%w: resize share_file: %w", ErrBringUp, err)
			}
		}

		return &backingFile{file: opts.ShareFile, size: size, created: reformat}, nil
	}

	fi, statErr := filesystem.Stat(opts.Path)

	needsInit := opts.InitFile || statErr != nil
	if statErr == nil && fi.Size() != size {
		needsInit = true
	}

	if statErr != nil && !os.IsNotExist(statErr) {
		return nil, fmt.Errorf("%w: stat %s: %w", ErrBringUp, opts.Path, statErr)
	}

	if needsInit {
		if err := createZeroFile(filesystem, opts.Path, size); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBringUp, err)
		}
	}

	f, err := filesystem.OpenFile(opts.Path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrBringUp, opts.Path, err)
	}

	return &backingFile{file: f, size: size, created: needsInit}, nil
}

// createZeroFile materializes a size-byte, all-zero file at path by
// writing to a sibling temp file and renaming it into place, so a crash
// partway through never leaves a short or garbage file where callers
// expect one. Modeled on the teacher's
// pkg/fs/atomic_write.go, routed through the fs.FS abstraction so tests
// can inject a failure at any step.
func createZeroFile(filesystem pcfs.FS, path string, size int64) error {
	tmp := path + ".tmp-init"

	_ = filesystem.Remove(tmp)

	f, err := filesystem.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if err := f.Truncate(size); err != nil {
		f.Close()
		filesystem.Remove(tmp)

		return fmt.Errorf("truncate temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		filesystem.Remove(tmp)

		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		filesystem.Remove(tmp)

		return fmt.Errorf("close temp file: %w", err)
	}

	if err := filesystem.Rename(tmp, path); err != nil {
		filesystem.Remove(tmp)

		return fmt.Errorf("rename into place: %w", err)
	}

	syncDir(filepath.Dir(path))

	return nil
}

// syncDir fsyncs a directory so a rename into it survives a crash. Best
// effort: some platforms and filesystems reject fsync on a directory
// descriptor, which is not worth failing bring-up over.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()

	_ = d.Sync()
}

// mapFile maps the whole of f (size bytes) shared read-write.
func mapFile(f pcfs.File, size int64) ([]byte, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap: %w", ErrBringUp, err)
	}

	return data, nil
}

// unmapFile unmaps a mapping returned by mapFile.
func unmapFile(data []byte) error {
	if data == nil {
		return nil
	}

	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("%w: munmap: %w", ErrBringUp, err)
	}

	return nil
}

// formatAllPages writes a fresh header and slot table into every page of
// a newly (re)created mapping.
func formatAllPages(data []byte, opts Options) {
	for i := 0; i < opts.NumPages; i++ {
		start := i * opts.PageSize
		page := data[start : start+opts.PageSize]
		initPage(page, opts.PageSize, opts.StartSlots).FlushHeader()
	}
}
