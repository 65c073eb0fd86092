package pagecache

import (
	"encoding/binary"
	"sort"
)

// Expunge modes.
const (
	ExpungeExpired = 0 // drop only expired records
	ExpungeAll     = 1 // drop everything, as for clearing a page
	ExpungeForRoom = 2 // make room for a pending write of a given size
)

// expungeRecord is a survivor carried from planning to application,
// copied out of the page so the plan stays valid even though applying it
// will overwrite the page it was computed from.
type expungeRecord struct {
	rec record
	key []byte
	val []byte
}

// ExpungePlan is the result of [Page.PlanExpunge]: the decided new slot
// count and the records that survive, in the order they will be
// reinserted. A nil plan (with no error) means mode 2 found the page
// already had enough room and nothing needs to change.
type ExpungePlan struct {
	newNumSlots uint32
	records     []expungeRecord
}

// Survivors reports how many records the plan keeps.
func (p *ExpungePlan) Survivors() int {
	if p == nil {
		return 0
	}

	return len(p.records)
}

// PlanExpunge computes what an expunge would do without mutating the
// page. now is the caller's current wall-clock second,
// used to decide which records are expired. pendingLen is only consulted
// in mode 2, by the no-op short-circuit (free_bytes must cover it); the
// LRU eviction threshold is 60% of the new heap and does not depend on it.
func (p *Page) PlanExpunge(mode int, now uint32, pendingLen uint32) *ExpungePlan {
	if mode == ExpungeForRoom && p.hdr.NumSlots > 0 {
		trulyFree := p.hdr.FreeSlots - p.hdr.OldSlots
		if float64(trulyFree)/float64(p.hdr.NumSlots) > 0.30 && p.hdr.FreeBytes >= pendingLen {
			return nil
		}
	}

	type candidate struct {
		off uint32
		rec record
	}

	var keep []candidate

	var usedData uint32

	for i := uint32(0); i < p.hdr.NumSlots; i++ {
		off := slotAt(p.data, i)
		if off == slotNeverUsed || off == slotTombstone {
			continue
		}

		r := decodeRecord(p.data, off)
		expired := r.ExpireTime != 0 && now > r.ExpireTime

		if mode == ExpungeAll || expired {
			continue
		}

		keep = append(keep, candidate{off: off, rec: r})
		usedData += recordSize(int(r.KeyLen), int(r.ValLen))
	}

	newNumSlots := p.hdr.NumSlots

	if p.hdr.NumSlots > 0 && float64(len(keep))/float64(p.hdr.NumSlots) > 0.30 {
		enlarged := 2*p.hdr.NumSlots + 1
		roomForEnlarged := headerSize+enlarged*slotSize+usedData <= uint32(p.size)

		if mode == ExpungeForRoom || roomForEnlarged {
			newNumSlots = enlarged
		}
	}

	if mode == ExpungeForRoom {
		newHeapSize := uint32(p.size) - (headerSize + newNumSlots*slotSize)
		threshold := uint32(float64(newHeapSize) * 0.6)

		sort.SliceStable(keep, func(a, b int) bool {
			return keep[a].rec.LastAccess < keep[b].rec.LastAccess
		})

		i := 0
		for usedData > threshold && i < len(keep) {
			usedData -= recordSize(int(keep[i].rec.KeyLen), int(keep[i].rec.ValLen))
			i++
		}

		keep = keep[i:]
	}

	plan := &ExpungePlan{newNumSlots: newNumSlots, records: make([]expungeRecord, len(keep))}

	for i, c := range keep {
		plan.records[i] = expungeRecord{
			rec: c.rec,
			key: append([]byte(nil), recordKey(p.data, c.off, c.rec)...),
			val: append([]byte(nil), recordValue(p.data, c.off, c.rec)...),
		}
	}

	return plan
}

// ApplyExpunge rebuilds the page from a plan returned by [Page.PlanExpunge]:
// records are reinserted into fresh scratch buffers in keep-order, rehashed
// from their stored slot_hash rather than their key, then copied back over
// the page in one pass. A nil plan is a no-op.
func (p *Page) ApplyExpunge(plan *ExpungePlan) {
	if plan == nil {
		return
	}

	newNumSlots := plan.newNumSlots
	heapStart := headerSize + newNumSlots*slotSize

	newSlotTable := make([]byte, newNumSlots*slotSize)
	newHeap := make([]byte, uint32(p.size)-heapStart)

	var cursor uint32

	for _, rec := range plan.records {
		encodeRecordHeader(newHeap, cursor, rec.rec)
		copy(recordKey(newHeap, cursor, rec.rec), rec.key)
		copy(recordValue(newHeap, cursor, rec.rec), rec.val)

		slot := rec.rec.SlotHash % newNumSlots
		for rawSlotAt(newSlotTable, slot) != slotNeverUsed {
			slot = (slot + 1) % newNumSlots
		}

		rawSetSlotAt(newSlotTable, slot, heapStart+cursor)

		cursor += recordSize(len(rec.key), len(rec.val))
	}

	clear(p.data[headerSize:])
	copy(p.data[headerSize:], newSlotTable)
	copy(p.data[heapStart:], newHeap[:cursor])

	p.hdr.NumSlots = newNumSlots
	p.hdr.FreeSlots = newNumSlots - uint32(len(plan.records))
	p.hdr.OldSlots = 0
	p.hdr.FreeData = heapStart + cursor
	p.hdr.FreeBytes = uint32(p.size) - p.hdr.FreeData
	p.dirty = true
}

// rawSlotAt and rawSetSlotAt index a bare slot table with no header
// offset in front of it, as used by the scratch table built during an
// expunge.
func rawSlotAt(tbl []byte, i uint32) uint32 {
	return binary.LittleEndian.Uint32(tbl[i*slotSize:])
}

func rawSetSlotAt(tbl []byte, i uint32, v uint32) {
	binary.LittleEndian.PutUint32(tbl[i*slotSize:], v)
}
