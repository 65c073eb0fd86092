package pagecache

// hashKey computes the engine's key hash: start with the magic
// sentinel, and for each byte rotate the accumulator left 4 bits and add
// the byte, wrapping at 32 bits.
//
// The partition (page index, slot hash) is derived from this single
// hash: page_index = h mod num_pages takes the low-order structure of
// the hash, leaving slot_hash = h div num_pages built from the high
// bits, which is why slot_hash can be used directly to seed a page's
// slot table probe without re-correlating with the page choice.
func hashKey(key []byte) uint32 {
	h := magic

	for _, b := range key {
		h = (h<<4 | h>>28) + uint32(b)
	}

	return h
}

// partition derives (pageIndex, slotHash) for key against a cache with
// numPages pages. Only slotHash is ever stored on disk; pageIndex
// is re-derived on demand from the key.
func partition(key []byte, numPages int) (pageIndex int, slotHash uint32) {
	h := hashKey(key)
	n := uint32(numPages)

	return int(h % n), h / n
}
