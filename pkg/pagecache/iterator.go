package pagecache

import "fmt"

// Entry is one record yielded by an [Iterator].
type Entry struct {
	Key        []byte
	Value      []byte
	Flags      uint32
	LastAccess uint32
	ExpireTime uint32
}

// Iterator walks every record across every page sequentially, holding
// exactly one page lock at a time. It gives no stability guarantee
// across a concurrent expunge: a record mutated between being yielded and
// the next call may not be revisited. An Iterator is not reentrant
// against other operations on the same [Cache]; open one only when the
// cache is not otherwise locked, and do not call Cache methods on the
// same handle until the iterator is closed.
type Iterator struct {
	c       *Cache
	pageIdx int
	slotIdx uint32
	page    *Page
	closed  bool
}

// NewIterator opens an iterator over c starting at page 0.
func (c *Cache) NewIterator() (*Iterator, error) {
	it := &Iterator{c: c, pageIdx: -1}
	if err := it.enterPage(0); err != nil {
		return nil, err
	}

	return it, nil
}

// enterPage locks pageIdx and positions the iterator at its first slot,
// whether or not the page holds live records; past the last page it
// leaves the iterator exhausted. Pages with no live records are passed
// over by Next, which moves on once a page's slot table is used up.
func (it *Iterator) enterPage(pageIdx int) error {
	for pageIdx < it.c.numPages {
		if err := it.c.rawLock(pageIdx); err != nil {
			return fmt.Errorf("page %d: %w", pageIdx, err)
		}

		page, err := openPage(it.c.pageBytes(pageIdx), it.c.pageSize)
		if err != nil {
			it.c.rawUnlock(pageIdx)
			return err
		}

		it.pageIdx = pageIdx
		it.page = page
		it.slotIdx = 0

		return nil
	}

	it.pageIdx = -1
	it.page = nil

	return nil
}

func (it *Iterator) leavePage() error {
	if it.pageIdx == -1 {
		return nil
	}

	if it.page.Dirty() {
		it.page.FlushHeader()
	}

	idx := it.pageIdx
	it.pageIdx = -1
	it.page = nil

	return it.c.rawUnlock(idx)
}

// Next advances to the next live record (data_offset > 1), returning
// ok=false once every page has been exhausted.
func (it *Iterator) Next() (entry Entry, ok bool, err error) {
	if it.closed {
		return Entry{}, false, ErrIterClosed
	}

	for it.pageIdx != -1 {
		for it.slotIdx < it.page.hdr.NumSlots {
			off := slotAt(it.page.data, it.slotIdx)
			it.slotIdx++

			if off == slotNeverUsed || off == slotTombstone {
				continue
			}

			r := decodeRecord(it.page.data, off)
			key := recordKey(it.page.data, off, r)
			val := recordValue(it.page.data, off, r)

			out := Entry{
				Key:        append([]byte(nil), key...),
				Value:      append([]byte(nil), val...),
				Flags:      r.Flags,
				LastAccess: r.LastAccess,
				ExpireTime: r.ExpireTime,
			}

			return out, true, nil
		}

		next := it.pageIdx + 1

		if err := it.leavePage(); err != nil {
			return Entry{}, false, err
		}

		if err := it.enterPage(next); err != nil {
			return Entry{}, false, err
		}
	}

	return Entry{}, false, nil
}

// Close releases any held page lock. Safe to call more than once.
func (it *Iterator) Close() error {
	if it.closed {
		return nil
	}

	it.closed = true

	return it.leavePage()
}
