package pagecache

import (
	"fmt"
	"sort"
)

// Page is an in-process view over one page's worth of mapped bytes.
//
// A Page must only be touched while the page's byte-range lock is
// held. It keeps a shadow copy of the 32-bit header counters, mutated in
// memory as operations run and flushed back to the mapped bytes only on
// unlock (FlushHeader); slot table and heap writes go directly into the
// mapped bytes as they happen, since other processes only need to see
// them once they themselves acquire the lock.
type Page struct {
	data []byte
	size int
	hdr  pageHeader

	// dirty is set by any operation that mutates the page (including a
	// record-only change like last_access, which does not move a header
	// counter) so unlock knows to write the header back.
	dirty bool
}

// openPage decodes and validates the header at the start of data, which
// must be exactly size bytes.
func openPage(data []byte, size int) (*Page, error) {
	hdr := decodeHeader(data)
	if err := hdr.validate(size); err != nil {
		return nil, err
	}

	return &Page{data: data, size: size, hdr: hdr}, nil
}

// initPage zeroes data and writes a fresh header with startSlots entries
//. It returns the resulting Page, already marked dirty so the
// caller's unlock flushes the header.
func initPage(data []byte, size int, startSlots int) *Page {
	clear(data)

	freeData := uint32(headerSize + startSlots*slotSize)

	hdr := pageHeader{
		Magic:     magic,
		NumSlots:  uint32(startSlots),
		FreeSlots: uint32(startSlots),
		OldSlots:  0,
		FreeData:  freeData,
		FreeBytes: uint32(size) - freeData,
	}
	hdr.encodeInto(data, true)

	return &Page{data: data, size: size, hdr: hdr, dirty: true}
}

// FlushHeader writes the shadow header counters back into the mapped
// bytes. It never rewrites magic.
func (p *Page) FlushHeader() {
	p.hdr.encodeInto(p.data, false)
}

// Dirty reports whether any operation has mutated this page since it
// was opened or initialized.
func (p *Page) Dirty() bool { return p.dirty }

// Stats is a read-only snapshot of a page's header counters.
type Stats struct {
	NumSlots  uint32
	FreeSlots uint32
	OldSlots  uint32
	FreeData  uint32
	FreeBytes uint32
}

// Stats returns the page's current header counters.
func (p *Page) Stats() Stats {
	return Stats{
		NumSlots:  p.hdr.NumSlots,
		FreeSlots: p.hdr.FreeSlots,
		OldSlots:  p.hdr.OldSlots,
		FreeData:  p.hdr.FreeData,
		FreeBytes: p.hdr.FreeBytes,
	}
}

// Read looks up key. now is the caller's current wall-clock
// second, used both to evaluate expiry and to stamp last_access.
func (p *Page) Read(key []byte, slotHash uint32, now uint32) (val []byte, flags uint32, ok bool) {
	res := find(p.data, p.hdr.NumSlots, slotHash, key, findRead)
	if res.full || !res.used {
		return nil, 0, false
	}

	off := slotAt(p.data, res.slot)
	r := decodeRecord(p.data, off)

	if r.ExpireTime != 0 && now > r.ExpireTime {
		p.tombstone(res.slot)

		return nil, 0, false
	}

	encodeRecordHeader(p.data, off, record{
		LastAccess: now,
		ExpireTime: r.ExpireTime,
		SlotHash:   r.SlotHash,
		Flags:      r.Flags,
		KeyLen:     r.KeyLen,
		ValLen:     r.ValLen,
	})
	p.dirty = true

	raw := recordValue(p.data, off, r)
	out := make([]byte, len(raw))
	copy(out, raw)

	return out, r.Flags, true
}

// Write stores key -> val with flags. It returns stored=false
// (not an error) when the page currently lacks space; the caller is
// expected to run an expunge and retry.
func (p *Page) Write(key, val []byte, flags uint32, slotHash uint32, now uint32, expireSeconds uint32) (stored bool, err error) {
	need := recordSize(len(key), len(val))
	if uint64(need) > uint64(p.size) {
		return false, fmt.Errorf("%w: record of %d bytes can never fit a %d byte page", ErrTooLarge, need, p.size)
	}

	res := find(p.data, p.hdr.NumSlots, slotHash, key, findWrite)
	if res.full {
		return false, nil
	}

	preexistingTombstone := !res.used && slotAt(p.data, res.slot) == slotTombstone

	if res.used {
		// Overwriting an existing key: tombstone its slot first. This
		// happens unconditionally, before the capacity check below, so
		// an overwrite that turns out not to fit still
		// destroys the old value; the caller's expunge-and-retry path
		// is expected to recover the space and succeed on retry.
		p.tombstone(res.slot)
	}

	if p.hdr.FreeBytes < need {
		return false, nil
	}

	var expire uint32
	if expireSeconds != 0 {
		expire = now + expireSeconds
	}

	off := p.hdr.FreeData
	newRec := record{
		LastAccess: now,
		ExpireTime: expire,
		SlotHash:   slotHash,
		Flags:      flags,
		KeyLen:     uint32(len(key)),
		ValLen:     uint32(len(val)),
	}
	encodeRecordHeader(p.data, off, newRec)
	copy(recordKey(p.data, off, newRec), key)
	copy(recordValue(p.data, off, newRec), val)

	setSlotAt(p.data, res.slot, off)
	p.hdr.FreeSlots--

	if preexistingTombstone {
		p.hdr.OldSlots--
	}

	p.hdr.FreeData += need
	p.hdr.FreeBytes -= need
	p.dirty = true

	return true, nil
}

// Delete removes key if present, returning the flags it was
// stored with and whether it was found.
func (p *Page) Delete(key []byte, slotHash uint32) (flags uint32, found bool) {
	res := find(p.data, p.hdr.NumSlots, slotHash, key, findDelete)
	if res.full || !res.used {
		return 0, false
	}

	off := slotAt(p.data, res.slot)
	r := decodeRecord(p.data, off)
	p.tombstone(res.slot)

	return r.Flags, true
}

// tombstone converts slot i to a tombstone and bumps the free/old
// counters, marking the page dirty.
func (p *Page) tombstone(i uint32) {
	setSlotAt(p.data, i, slotTombstone)
	p.hdr.FreeSlots++
	p.hdr.OldSlots++
	p.dirty = true
}

// SelfCheck validates every structural invariant against the page's current
// contents: header counter ordering, slot-table bounds, absence of
// overlapping records, and that every used slot is reachable by probing
// from its own stored slot_hash and by re-hashing its key. numPages is
// the cache's total page count, needed to recompute slot_hash from a
// record's key the same way the cache does.
//
// SelfCheck is the source of truth for what a correct page looks like;
// it is run automatically at open when TestFile is enabled, and
// is exported so tests and operators can run it on demand.
func (p *Page) SelfCheck(numPages int) error {
	if err := p.hdr.validate(p.size); err != nil {
		return err
	}

	type span struct {
		start, end uint32
	}

	var spans []span

	slotTableEnd := headerSize + p.hdr.slotTableBytes()

	for i := uint32(0); i < p.hdr.NumSlots; i++ {
		off := slotAt(p.data, i)
		if off == slotNeverUsed || off == slotTombstone {
			continue
		}

		if off < slotTableEnd || off >= uint32(p.size) || off%4 != 0 {
			return fmt.Errorf("%w: slot %d has out-of-range offset %d", ErrCorrupt, i, off)
		}

		r := decodeRecord(p.data, off)

		size := recordSize(int(r.KeyLen), int(r.ValLen))
		end := off + size

		if end > p.hdr.FreeData {
			return fmt.Errorf("%w: record at slot %d ends at %d past free_data %d", ErrCorrupt, i, end, p.hdr.FreeData)
		}

		key := recordKey(p.data, off, r)

		h := hashKey(key)
		wantSlotHash := h / uint32(numPages)

		if wantSlotHash != r.SlotHash {
			return fmt.Errorf("%w: slot %d key rehashes to slot_hash %d, stored %d", ErrCorrupt, i, wantSlotHash, r.SlotHash)
		}

		res := find(p.data, p.hdr.NumSlots, r.SlotHash, key, findRead)
		if res.full || !res.used || res.slot != i {
			return fmt.Errorf("%w: slot %d is not reachable by probing its own slot_hash", ErrCorrupt, i)
		}

		spans = append(spans, span{start: off, end: end})
	}

	sort.Slice(spans, func(a, b int) bool { return spans[a].start < spans[b].start })

	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return fmt.Errorf("%w: records overlap at offsets %d and %d", ErrCorrupt, spans[i-1].start, spans[i].start)
		}
	}

	return nil
}
