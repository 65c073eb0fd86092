package pagecache

import "encoding/binary"

// record is the fixed header preceding every key/value pair on a page's
// heap: last_access, expire_time, slot_hash, flags, key_len,
// val_len, each a 32-bit word, followed by the key bytes then the value
// bytes, padded to a 4-byte multiple.
type record struct {
	LastAccess uint32
	ExpireTime uint32
	SlotHash   uint32
	Flags      uint32
	KeyLen     uint32
	ValLen     uint32
}

// Record field offsets relative to the record's start.
const (
	recOffLastAccess = 0
	recOffExpireTime = 4
	recOffSlotHash   = 8
	recOffFlags      = 12
	recOffKeyLen     = 16
	recOffValLen     = 20
	recOffKey        = recordHeaderSize
)

// decodeRecord reads a record header starting at page[off:].
func decodeRecord(page []byte, off uint32) record {
	return record{
		LastAccess: binary.LittleEndian.Uint32(page[off+recOffLastAccess:]),
		ExpireTime: binary.LittleEndian.Uint32(page[off+recOffExpireTime:]),
		SlotHash:   binary.LittleEndian.Uint32(page[off+recOffSlotHash:]),
		Flags:      binary.LittleEndian.Uint32(page[off+recOffFlags:]),
		KeyLen:     binary.LittleEndian.Uint32(page[off+recOffKeyLen:]),
		ValLen:     binary.LittleEndian.Uint32(page[off+recOffValLen:]),
	}
}

// encodeRecordHeader writes r's six header words at page[off:].
func encodeRecordHeader(page []byte, off uint32, r record) {
	binary.LittleEndian.PutUint32(page[off+recOffLastAccess:], r.LastAccess)
	binary.LittleEndian.PutUint32(page[off+recOffExpireTime:], r.ExpireTime)
	binary.LittleEndian.PutUint32(page[off+recOffSlotHash:], r.SlotHash)
	binary.LittleEndian.PutUint32(page[off+recOffFlags:], r.Flags)
	binary.LittleEndian.PutUint32(page[off+recOffKeyLen:], r.KeyLen)
	binary.LittleEndian.PutUint32(page[off+recOffValLen:], r.ValLen)
}

// recordKey returns the key bytes for the record at off (whose header
// has already been decoded into r).
func recordKey(page []byte, off uint32, r record) []byte {
	start := off + recOffKey
	return page[start : start+r.KeyLen]
}

// recordValue returns the value bytes for the record at off.
func recordValue(page []byte, off uint32, r record) []byte {
	start := off + recOffKey + r.KeyLen
	return page[start : start+r.ValLen]
}

// recordSize returns the 4-byte-aligned total size of a record with the
// given key and value lengths, as used by Write's capacity check.
func recordSize(keyLen, valLen int) uint32 {
	raw := uint32(recordHeaderSize + keyLen + valLen)
	return roundUp4(raw)
}

// roundUp4 rounds x up to the next multiple of 4.
func roundUp4(x uint32) uint32 {
	return (x + 3) &^ 3
}
