package pagecache

// Hardcoded configuration limits.
//
// These exist to keep page arithmetic (all 32-bit header counters and
// offsets) comfortably inside uint32 range, and to bound the size of a
// single backing file a handle will create on a caller's behalf.
const (
	minPageSize = 1 << 10 // 1 KiB
	maxPageSize = 1 << 20 // 1 MiB

	minNumPages = 1
	maxNumPages = 1000

	minStartSlots = 10
	maxStartSlots = 500
)

// headerSize is the fixed 32-byte page header.
const headerSize = 32

// slotSize is the width of one slot-table entry: a 32-bit data offset.
const slotSize = 4

// recordHeaderSize is the fixed portion of a record: last_access,
// expire_time, slot_hash, flags, key_len, val_len, each a 32-bit word.
const recordHeaderSize = 6 * 4

// Sentinel slot values.
const (
	slotNeverUsed uint32 = 0
	slotTombstone uint32 = 1
)

// magic is the sentinel written to every page header.
const magic uint32 = 0x92f7e3b1

// findMode selects Find's stop condition.
type findMode int

const (
	findRead findMode = iota
	findWrite
	findDelete
)
