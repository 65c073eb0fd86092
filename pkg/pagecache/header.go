package pagecache

import (
	"encoding/binary"
	"fmt"
)

// pageHeader is the fixed 32-byte header at the start of every page.
//
// It is kept as a typed struct in the handle (a "shadow copy") while
// a page is locked, and is the only part of a page written back on
// unlock; slot table and heap mutations go straight to the mapped bytes
// as they happen.
type pageHeader struct {
	Magic      uint32
	NumSlots   uint32
	FreeSlots  uint32
	OldSlots   uint32
	FreeData   uint32
	FreeBytes  uint32
}

// Header field offsets, little-endian.
const (
	offMagic     = 0
	offNumSlots  = 4
	offFreeSlots = 8
	offOldSlots  = 12
	offFreeData  = 16
	offFreeBytes = 20
	// offReserved = 24, 8 bytes, always zero.
)

// decodeHeader reads the 32-byte header from the start of a page's bytes.
func decodeHeader(page []byte) pageHeader {
	return pageHeader{
		Magic:     binary.LittleEndian.Uint32(page[offMagic:]),
		NumSlots:  binary.LittleEndian.Uint32(page[offNumSlots:]),
		FreeSlots: binary.LittleEndian.Uint32(page[offFreeSlots:]),
		OldSlots:  binary.LittleEndian.Uint32(page[offOldSlots:]),
		FreeData:  binary.LittleEndian.Uint32(page[offFreeData:]),
		FreeBytes: binary.LittleEndian.Uint32(page[offFreeBytes:]),
	}
}

// encodeInto writes h's six counters into the first 32 bytes of page.
// magic is only written when writeMagic is true: unlock never
// rewrites it, but page initialization does.
func (h pageHeader) encodeInto(page []byte, writeMagic bool) {
	if writeMagic {
		binary.LittleEndian.PutUint32(page[offMagic:], h.Magic)
	}

	binary.LittleEndian.PutUint32(page[offNumSlots:], h.NumSlots)
	binary.LittleEndian.PutUint32(page[offFreeSlots:], h.FreeSlots)
	binary.LittleEndian.PutUint32(page[offOldSlots:], h.OldSlots)
	binary.LittleEndian.PutUint32(page[offFreeData:], h.FreeData)
	binary.LittleEndian.PutUint32(page[offFreeBytes:], h.FreeBytes)
	// Bytes 24..31 (reserved) are left untouched; page init zeroes the
	// whole page up front so they start and stay zero.
}

// slotTableBytes is the number of bytes the slot table occupies for a
// header reporting NumSlots slots.
func (h pageHeader) slotTableBytes() uint32 {
	return h.NumSlots * slotSize
}

// validate checks the header-level invariants that can be verified
// without walking the slot table or heap. This is the check
// the page lock protocol performs on every acquisition; the
// heavier per-record walk lives in Page.SelfCheck.
func (h pageHeader) validate(pageSize int) error {
	if h.Magic != magic {
		return fmt.Errorf("%w: bad magic %#x", ErrCorrupt, h.Magic)
	}

	if h.OldSlots > h.FreeSlots {
		return fmt.Errorf("%w: old_slots %d > free_slots %d", ErrCorrupt, h.OldSlots, h.FreeSlots)
	}

	if h.FreeSlots > h.NumSlots {
		return fmt.Errorf("%w: free_slots %d > num_slots %d", ErrCorrupt, h.FreeSlots, h.NumSlots)
	}

	if uint64(h.FreeData)+uint64(h.FreeBytes) != uint64(pageSize) {
		return fmt.Errorf("%w: free_data %d + free_bytes %d != page_size %d",
			ErrCorrupt, h.FreeData, h.FreeBytes, pageSize)
	}

	minFreeData := uint64(headerSize) + uint64(h.slotTableBytes())
	if uint64(h.FreeData) < minFreeData {
		return fmt.Errorf("%w: free_data %d < header+slots %d", ErrCorrupt, h.FreeData, minFreeData)
	}

	if minFreeData > uint64(pageSize) {
		return fmt.Errorf("%w: slot table overruns page (num_slots=%d)", ErrCorrupt, h.NumSlots)
	}

	return nil
}
