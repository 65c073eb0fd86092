package fs

import (
	"fmt"
	"os"
	"sync"
)

// Op identifies an [FS] method, for targeting fault injection.
type Op string

// Injectable operations.
const (
	OpOpenFile  Op = "OpenFile"
	OpStat      Op = "Stat"
	OpRemove    Op = "Remove"
	OpRename    Op = "Rename"
	OpMkdirAll  Op = "MkdirAll"
	OpWrite     Op = "Write"  // File.Write, counted across every file opened through Chaos
	OpTruncate  Op = "Truncate"
)

// Chaos wraps another [FS] and injects failures for selected operations.
//
// It exists so that bring-up error paths (missing share path, failed
// truncate during the initial zero-fill, rename failure) can be exercised
// deterministically in tests instead of relying on real filesystem
// conditions that are awkward or impossible to provoke on demand.
//
// Chaos is safe for concurrent use.
type Chaos struct {
	inner FS

	mu      sync.Mutex
	failOps map[Op]error   // operation -> error to return every time
	failAt  map[Op]int     // operation -> call number (1-based) to fail once
	calls   map[Op]int     // operation -> call count so far
}

// NewChaos wraps inner with fault-injection controls.
func NewChaos(inner FS) *Chaos {
	return &Chaos{
		inner:   inner,
		failOps: make(map[Op]error),
		failAt:  make(map[Op]int),
		calls:   make(map[Op]int),
	}
}

// FailAlways makes every future call to op return err.
func (c *Chaos) FailAlways(op Op, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failOps[op] = err
}

// FailOnCall makes the n'th (1-based) call to op return [errInjected].
func (c *Chaos) FailOnCall(op Op, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failAt[op] = n
}

// Reset clears all injected failures and call counters.
func (c *Chaos) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failOps = make(map[Op]error)
	c.failAt = make(map[Op]int)
	c.calls = make(map[Op]int)
}

var errInjected = fmt.Errorf("fs: injected failure")

// check records a call and returns an error if this call was chosen to fail.
func (c *Chaos) check(op Op) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls[op]++

	if err, ok := c.failOps[op]; ok {
		return err
	}

	if n, ok := c.failAt[op]; ok && c.calls[op] == n {
		return errInjected
	}

	return nil
}

func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if err := c.check(OpOpenFile); err != nil {
		return nil, err
	}

	f, err := c.inner.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{File: f, owner: c, path: path}, nil
}

func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	if err := c.check(OpStat); err != nil {
		return nil, err
	}

	return c.inner.Stat(path)
}

func (c *Chaos) Remove(path string) error {
	if err := c.check(OpRemove); err != nil {
		return err
	}

	return c.inner.Remove(path)
}

func (c *Chaos) Rename(oldpath, newpath string) error {
	if err := c.check(OpRename); err != nil {
		return err
	}

	return c.inner.Rename(oldpath, newpath)
}

func (c *Chaos) MkdirAll(path string, perm os.FileMode) error {
	if err := c.check(OpMkdirAll); err != nil {
		return err
	}

	return c.inner.MkdirAll(path, perm)
}

// chaosFile wraps a [File] so writes and truncates can also be made to
// fail, e.g. to simulate a failed resize during the zero-fill of a
// freshly created backing file.
type chaosFile struct {
	File

	owner *Chaos
	path  string
}

func (f *chaosFile) Write(p []byte) (int, error) {
	if err := f.owner.check(OpWrite); err != nil {
		return 0, err
	}

	return f.File.Write(p)
}

func (f *chaosFile) Truncate(size int64) error {
	if err := f.owner.check(OpTruncate); err != nil {
		return err
	}

	return f.File.Truncate(size)
}

// Compile-time interface check.
var _ FS = (*Chaos)(nil)
