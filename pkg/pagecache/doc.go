// Package pagecache implements a shared, persistent, process-safe
// key/value cache backed by a memory-mapped file.
//
// Multiple independent processes attach to the same backing file and
// concurrently read and write cached entries with per-page exclusion.
// The file is divided into fixed-size pages; each page embeds its own
// open-addressing hash table and heap. A single advisory byte-range
// file lock per page is the only coordination cost between processes.
//
// pagecache is a lossy, bounded cache, not a database: there is no
// fsync protocol, no cross-page transaction, and no ordering guarantee
// between operations on different pages. Crash recovery is best-effort
// via structural validation of a page's header when it is next locked.
//
// A typical session:
//
//	c, err := pagecache.Open(pagecache.Options{
//		Path:       "shared.cache",
//		NumPages:   64,
//		PageSize:   64 * 1024,
//		StartSlots: 64,
//	})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	key := []byte("k")
//	pageIndex, slotHash := c.Hash(key)
//
//	if err := c.LockPage(pageIndex); err != nil {
//		return err
//	}
//	defer c.UnlockPage()
//
//	now := uint32(time.Now().Unix())
//
//	if _, err := c.Write(key, []byte("v"), 0, slotHash, now); err != nil {
//		return err
//	}
//
//	val, flags, ok, err := c.Read(key, slotHash, now)
package pagecache
