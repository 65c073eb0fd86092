package pagecache

import "testing"

func TestFind_EmptyTableIsMiss(t *testing.T) {
	t.Parallel()

	page := make([]byte, 64)
	res := find(page, 4, 7, []byte("k"), findRead)

	if res.used {
		t.Fatalf("find on an empty table reported used: %+v", res)
	}

	if res.full {
		t.Fatalf("find on an empty table reported full: %+v", res)
	}

	if res.slot != 3 {
		t.Fatalf("find(read, hash=7, numSlots=4) should stop at start slot 3, got %d", res.slot)
	}
}

func TestFind_WriteModePrefersTombstoneOverNeverUsed(t *testing.T) {
	t.Parallel()

	const numSlots = 4

	page := make([]byte, headerSize+numSlots*slotSize)
	setSlotAt(page, 0, slotTombstone)

	res := find(page, numSlots, 0, []byte("k"), findWrite)
	if res.full || res.used {
		t.Fatalf("find(write) = %+v, want an empty reusable slot", res)
	}

	if res.slot != 0 {
		t.Fatalf("find(write) returned slot %d, want the tombstone at 0", res.slot)
	}
}

func TestFind_ReadModeSkipsTombstonesAndStopsAtNeverUsed(t *testing.T) {
	t.Parallel()

	const numSlots = 4

	page := make([]byte, headerSize+numSlots*slotSize)
	setSlotAt(page, 0, slotTombstone)

	res := find(page, numSlots, 0, []byte("k"), findRead)
	if !res.full && res.slot != 1 {
		t.Fatalf("find(read) = %+v, want miss at slot 1", res)
	}
}

func TestFind_FullTableReportsFull(t *testing.T) {
	t.Parallel()

	const numSlots = 2

	heapStart := headerSize + numSlots*slotSize
	page := make([]byte, heapStart+2*recordSize(1, 1))

	off := uint32(heapStart)

	for i := uint32(0); i < numSlots; i++ {
		r := record{SlotHash: i, KeyLen: 1, ValLen: 1}
		encodeRecordHeader(page, off, r)
		copy(recordKey(page, off, r), []byte{byte('a' + i)})

		setSlotAt(page, i, off)

		off += recordSize(1, 1)
	}

	res := find(page, numSlots, 0, []byte("z"), findWrite)
	if !res.full {
		t.Fatalf("find(write) on a full table with no match = %+v, want full", res)
	}
}

func TestFind_MatchesByKeyAtItsStartSlot(t *testing.T) {
	t.Parallel()

	const numSlots = 8

	heapStart := headerSize + numSlots*slotSize
	page := make([]byte, heapStart+recordSize(3, 1))

	r := record{SlotHash: 5, KeyLen: 3, ValLen: 1}
	encodeRecordHeader(page, uint32(heapStart), r)
	copy(recordKey(page, uint32(heapStart), r), []byte("abc"))
	setSlotAt(page, 5, uint32(heapStart))

	res := find(page, numSlots, 5, []byte("abc"), findRead)
	if !res.used || res.slot != 5 {
		t.Fatalf("find(read) = %+v, want a hit at slot 5", res)
	}
}
