package pagecache

import "encoding/binary"

// slotOffset returns the byte offset of slot i's 32-bit entry.
func slotOffset(i uint32) uint32 {
	return headerSize + i*slotSize
}

// slotAt reads slot i's data offset.
func slotAt(page []byte, i uint32) uint32 {
	return binary.LittleEndian.Uint32(page[slotOffset(i):])
}

// setSlotAt writes slot i's data offset.
func setSlotAt(page []byte, i uint32, v uint32) {
	binary.LittleEndian.PutUint32(page[slotOffset(i):], v)
}

// findResult is what Find reports about a probe.
type findResult struct {
	slot  uint32 // slot index, valid unless full
	used  bool   // true: slot holds a live record whose key matched
	full  bool   // true: probe completed a full cycle with no match/empty
}

// find probes the slot table starting at slotHash mod numSlots, visiting
// at most numSlots entries.
//
// Semantics by mode:
//   - read, delete: stop at the first never-used slot (true miss);
//     tombstones are skipped over.
//   - write: stops at the first tombstone it sees and returns it, without
//     probing any further.
//
// Any slot holding a record whose key matches is returned immediately,
// regardless of mode.
func find(page []byte, numSlots uint32, slotHash uint32, key []byte, mode findMode) findResult {
	if numSlots == 0 {
		return findResult{full: true}
	}

	start := slotHash % numSlots

	for step := uint32(0); step < numSlots; step++ {
		idx := (start + step) % numSlots
		off := slotAt(page, idx)

		switch off {
		case slotNeverUsed:
			return findResult{slot: idx}

		case slotTombstone:
			if mode == findWrite {
				return findResult{slot: idx}
			}

		default:
			r := decodeRecord(page, off)
			if r.KeyLen == uint32(len(key)) {
				candidate := recordKey(page, off, r)
				if bytesEqual(candidate, key) {
					return findResult{slot: idx, used: true}
				}
			}
		}
	}

	return findResult{full: true}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
