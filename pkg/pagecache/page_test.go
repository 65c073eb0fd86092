package pagecache

import "testing"

func newTestPage(t *testing.T, pageSize, startSlots int) *Page {
	t.Helper()

	data := make([]byte, pageSize)
	return initPage(data, pageSize, startSlots)
}

func TestPage_InitPage(t *testing.T) {
	t.Parallel()

	p := newTestPage(t, 1024, 16)
	stats := p.Stats()

	want := Stats{NumSlots: 16, FreeSlots: 16, OldSlots: 0, FreeData: headerSize + 16*slotSize, FreeBytes: 1024 - (headerSize + 16*slotSize)}
	if stats != want {
		t.Fatalf("initPage stats = %+v, want %+v", stats, want)
	}

	if !p.Dirty() {
		t.Fatalf("a freshly initialized page should be dirty")
	}
}

func TestPage_WriteThenRead(t *testing.T) {
	t.Parallel()

	p := newTestPage(t, 1024, 16)

	_, slotHash := partition([]byte("k"), 1)

	stored, err := p.Write([]byte("k"), []byte("v"), 0, slotHash, 1000, 0)
	if err != nil || !stored {
		t.Fatalf("Write() = (%v, %v), want (true, nil)", stored, err)
	}

	val, flags, ok := p.Read([]byte("k"), slotHash, 1001)
	if !ok || string(val) != "v" || flags != 0 {
		t.Fatalf("Read() = (%q, %d, %v), want (v, 0, true)", val, flags, ok)
	}
}

func TestPage_Overwrite(t *testing.T) {
	t.Parallel()

	const startSlots = 16

	p := newTestPage(t, 1024, startSlots)
	_, slotHash := partition([]byte("abc"), 1)

	if stored, err := p.Write([]byte("abc"), []byte("X"), 0, slotHash, 1, 0); err != nil || !stored {
		t.Fatalf("first write failed: stored=%v err=%v", stored, err)
	}

	if stored, err := p.Write([]byte("abc"), []byte("YY"), 0, slotHash, 2, 0); err != nil || !stored {
		t.Fatalf("second write failed: stored=%v err=%v", stored, err)
	}

	val, _, ok := p.Read([]byte("abc"), slotHash, 2)
	if !ok || string(val) != "YY" {
		t.Fatalf("Read() after overwrite = (%q, %v), want (YY, true)", val, ok)
	}

	stats := p.Stats()
	if stats.FreeSlots != startSlots-1 {
		t.Fatalf("free_slots = %d, want %d", stats.FreeSlots, startSlots-1)
	}

	if stats.OldSlots != 1 {
		t.Fatalf("old_slots = %d, want 1", stats.OldSlots)
	}
}

func TestPage_Expiry(t *testing.T) {
	t.Parallel()

	p := newTestPage(t, 1024, 16)
	_, slotHash := partition([]byte("k"), 1)

	if stored, err := p.Write([]byte("k"), []byte("v"), 0, slotHash, 100, 1); err != nil || !stored {
		t.Fatalf("write failed: stored=%v err=%v", stored, err)
	}

	before := p.Stats()

	_, _, ok := p.Read([]byte("k"), slotHash, 102)
	if ok {
		t.Fatalf("Read() after expiry should be a miss")
	}

	after := p.Stats()
	if after.FreeSlots != before.FreeSlots+1 || after.OldSlots != before.OldSlots+1 {
		t.Fatalf("expiry should tombstone: before=%+v after=%+v", before, after)
	}
}

func TestPage_Delete(t *testing.T) {
	t.Parallel()

	p := newTestPage(t, 1024, 16)
	_, slotHash := partition([]byte("k"), 1)

	if stored, err := p.Write([]byte("k"), []byte("v"), 7, slotHash, 1, 0); err != nil || !stored {
		t.Fatalf("write failed: stored=%v err=%v", stored, err)
	}

	flags, found := p.Delete([]byte("k"), slotHash)
	if !found || flags != 7 {
		t.Fatalf("Delete() = (%d, %v), want (7, true)", flags, found)
	}

	if _, _, ok := p.Read([]byte("k"), slotHash, 1); ok {
		t.Fatalf("Read() after delete should miss")
	}

	if _, found := p.Delete([]byte("k"), slotHash); found {
		t.Fatalf("Delete() of an absent key should report not found")
	}
}

func TestPage_WriteTooLargeForPage(t *testing.T) {
	t.Parallel()

	p := newTestPage(t, 128, 10)

	_, err := p.Write(make([]byte, 1000), nil, 0, 0, 1, 0)
	if err == nil {
		t.Fatalf("Write() of an oversized record should error")
	}
}

func TestPage_WriteNotStoredWhenFull(t *testing.T) {
	t.Parallel()

	p := newTestPage(t, 200, 4)

	var stored bool

	for i := 0; i < 100; i++ {
		key := []byte{byte('a' + i)}
		_, slotHash := partition(key, 1)

		var err error

		stored, err = p.Write(key, []byte("x"), 0, slotHash, 1, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !stored {
			break
		}
	}

	if stored {
		t.Fatalf("expected the page to eventually report not-stored")
	}
}

func TestPage_SelfCheckPassesOnFreshAndWrittenPage(t *testing.T) {
	t.Parallel()

	p := newTestPage(t, 1024, 16)
	if err := p.SelfCheck(1); err != nil {
		t.Fatalf("SelfCheck on a fresh page: %v", err)
	}

	_, slotHash := partition([]byte("k"), 1)
	if _, err := p.Write([]byte("k"), []byte("v"), 0, slotHash, 1, 0); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := p.SelfCheck(1); err != nil {
		t.Fatalf("SelfCheck after a write: %v", err)
	}
}
