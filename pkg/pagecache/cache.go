package pagecache

import (
	"fmt"
	"sync"
	"time"

	pcfs "sharedmap.dev/sharedmap/pkg/fs"
)

// Cache is a handle onto one shared, memory-mapped page-cache file.
//
// A Cache holds at most one page lock at a time: [Cache.LockPage] must
// be called before [Cache.Read], [Cache.Write], or [Cache.Delete], and
// [Cache.UnlockPage] releases it and flushes the page's header. A Cache
// is not safe for concurrent use by multiple goroutines; callers that
// want concurrent access open one handle per goroutine, exactly as the
// source expects one handle per process.
type Cache struct {
	opts       Options
	filesystem pcfs.FS
	backing    *backingFile
	data       []byte

	numPages   int
	pageSize   int
	startSlots int
	expire     uint32
	lockTO     time.Duration

	mu         sync.Mutex
	curPageIdx int // -1 when no page is locked
	curPage    *Page
	lastErr    string
	closed     bool
}

// Open brings up a handle from opts: opens or creates and
// formats the backing file, maps it, and runs the integrity walk when
// test_file is set.
func Open(opts Options) (*Cache, error) {
	return open(opts, pcfs.NewReal())
}

func open(opts Options, filesystem pcfs.FS) (*Cache, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}

	bf, err := bringUp(filesystem, opts)
	if err != nil {
		return nil, err
	}

	data, err := mapFile(bf.file, bf.size)
	if err != nil {
		bf.file.Close()
		return nil, err
	}

	if bf.created {
		formatAllPages(data, opts)

		// Memory-accounting concern only: drop and remap so the
		// pages just formatted are not needlessly kept resident.
		if err := unmapFile(data); err != nil {
			bf.file.Close()
			return nil, err
		}

		data, err = mapFile(bf.file, bf.size)
		if err != nil {
			bf.file.Close()
			return nil, err
		}
	}

	c := &Cache{
		opts:       opts,
		filesystem: filesystem,
		backing:    bf,
		data:       data,
		numPages:   opts.NumPages,
		pageSize:   opts.PageSize,
		startSlots: opts.StartSlots,
		expire:     uint32(opts.ExpireSeconds),
		lockTO:     opts.LockTimeout,
		curPageIdx: -1,
	}

	if opts.TestFile {
		if err := c.testAllPages(); err != nil {
			c.Close()
			return nil, err
		}
	}

	return c, nil
}

// testAllPages is the test_file bring-up walk: every page is
// locked, validated, and reinitialized in place if it fails either the
// lock or the self-check. A page whose lock cannot be acquired is
// reinitialized without holding the lock.
func (c *Cache) testAllPages() error {
	for i := 0; i < c.numPages; i++ {
		if err := c.rawLock(i); err != nil {
			initPage(c.pageBytes(i), c.pageSize, c.startSlots).FlushHeader()
			continue
		}

		page, perr := openPage(c.pageBytes(i), c.pageSize)
		if perr == nil {
			perr = page.SelfCheck(c.numPages)
		}

		if perr != nil {
			page = initPage(c.pageBytes(i), c.pageSize, c.startSlots)
		}

		page.FlushHeader()

		if err := c.rawUnlock(i); err != nil {
			return fmt.Errorf("%w: page %d: %w", ErrBringUp, i, err)
		}
	}

	return nil
}

func (c *Cache) pageBytes(i int) []byte {
	start := i * c.pageSize
	return c.data[start : start+c.pageSize]
}

func (c *Cache) pageOffset(i int) int64 {
	return int64(i) * int64(c.pageSize)
}

func (c *Cache) rawLock(i int) error {
	return lockPageRange(int(c.backing.file.Fd()), c.pageOffset(i), int64(c.pageSize), c.lockTO)
}

func (c *Cache) rawUnlock(i int) error {
	return unlockPageRange(int(c.backing.file.Fd()), c.pageOffset(i), int64(c.pageSize))
}

// Hash partitions key into a page index and the per-page slot hint
// stored alongside its record.
func (c *Cache) Hash(key []byte) (pageIndex int, slotHash uint32) {
	return partition(key, c.numPages)
}

// NumPages returns the handle's page count.
func (c *Cache) NumPages() int { return c.numPages }

// LastError returns the most recently recorded error string,
// or "" if none has been recorded since open or the last successful
// operation.
func (c *Cache) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastErr
}

// LockPage acquires the byte-range lock for page index and opens it for
// the Read/Write/Delete calls that follow, failing with [ErrPageLocked]
// if any page, including index itself, is already locked on this handle.
func (c *Cache) LockPage(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.setErrLocked(ErrClosed)
	}

	if index < 0 || index >= c.numPages {
		return c.setErrLocked(fmt.Errorf("%w: page index %d out of range", ErrInvalidOption, index))
	}

	if c.curPageIdx != -1 {
		return c.setErrLocked(ErrPageLocked)
	}

	if err := lockPageRange(int(c.backing.file.Fd()), c.pageOffset(index), int64(c.pageSize), c.lockTO); err != nil {
		return c.setErrLocked(err)
	}

	page, err := openPage(c.pageBytes(index), c.pageSize)
	if err != nil {
		unlockPageRange(int(c.backing.file.Fd()), c.pageOffset(index), int64(c.pageSize))
		return c.setErrLocked(err)
	}

	c.curPageIdx = index
	c.curPage = page

	return c.setErrLocked(nil)
}

// UnlockPage flushes the current page's header if it was mutated and
// releases its lock.
func (c *Cache) UnlockPage() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.curPageIdx == -1 {
		return c.setErrLocked(ErrNoPageLocked)
	}

	if c.curPage.Dirty() {
		c.curPage.FlushHeader()
	}

	idx := c.curPageIdx
	c.curPageIdx = -1
	c.curPage = nil

	if err := unlockPageRange(int(c.backing.file.Fd()), c.pageOffset(idx), int64(c.pageSize)); err != nil {
		return c.setErrLocked(err)
	}

	return c.setErrLocked(nil)
}

// setErrLocked is setErr for callers already holding c.mu.
func (c *Cache) setErrLocked(err error) error {
	if err != nil {
		c.lastErr = err.Error()
	} else {
		c.lastErr = ""
	}

	return err
}

// Read looks up key against the currently locked page.
func (c *Cache) Read(key []byte, slotHash uint32, now uint32) (val []byte, flags uint32, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.curPageIdx == -1 {
		return nil, 0, false, c.setErrLocked(ErrNoPageLocked)
	}

	val, flags, ok = c.curPage.Read(key, slotHash, now)

	return val, flags, ok, c.setErrLocked(nil)
}

// Write stores key -> val against the currently locked page. stored is
// false, with no error, when the page lacks room; the caller is expected
// to run [Cache.Expunge] with [ExpungeForRoom] and retry.
func (c *Cache) Write(key, val []byte, flags uint32, slotHash uint32, now uint32) (stored bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.curPageIdx == -1 {
		return false, c.setErrLocked(ErrNoPageLocked)
	}

	stored, err = c.curPage.Write(key, val, flags, slotHash, now, c.expire)

	return stored, c.setErrLocked(err)
}

// Delete removes key from the currently locked page.
func (c *Cache) Delete(key []byte, slotHash uint32) (flags uint32, found bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.curPageIdx == -1 {
		return 0, false, c.setErrLocked(ErrNoPageLocked)
	}

	flags, found = c.curPage.Delete(key, slotHash)

	return flags, found, c.setErrLocked(nil)
}

// Expunge runs the three-mode compacting rehash against the currently
// locked page.
func (c *Cache) Expunge(mode int, now uint32, pendingLen uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.curPageIdx == -1 {
		return c.setErrLocked(ErrNoPageLocked)
	}

	plan := c.curPage.PlanExpunge(mode, now, pendingLen)
	c.curPage.ApplyExpunge(plan)

	return c.setErrLocked(nil)
}

// SelfCheck validates the currently locked page's full structural
// invariants.
func (c *Cache) SelfCheck() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.curPageIdx == -1 {
		return c.setErrLocked(ErrNoPageLocked)
	}

	return c.setErrLocked(c.curPage.SelfCheck(c.numPages))
}

// Stats reports the currently locked page's header counters.
func (c *Cache) Stats() (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.curPageIdx == -1 {
		return Stats{}, c.setErrLocked(ErrNoPageLocked)
	}

	return c.curPage.Stats(), c.setErrLocked(nil)
}

// Close unmaps the backing file and releases the file descriptor.
// It is safe to call more than once.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	if c.curPageIdx != -1 {
		unlockPageRange(int(c.backing.file.Fd()), c.pageOffset(c.curPageIdx), int64(c.pageSize))
		c.curPageIdx = -1
		c.curPage = nil
	}

	var firstErr error

	if err := unmapFile(c.data); err != nil && firstErr == nil {
		firstErr = err
	}

	c.data = nil

	if err := c.backing.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	return c.setErrLocked(firstErr)
}
