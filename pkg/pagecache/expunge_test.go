package pagecache

import "testing"

func TestExpunge_ModeAllDropsEverything(t *testing.T) {
	t.Parallel()

	p := newTestPage(t, 1024, 16)

	for i := 0; i < 5; i++ {
		key := []byte{byte('a' + i)}
		_, slotHash := partition(key, 1)

		if stored, err := p.Write(key, []byte("v"), 0, slotHash, 1, 0); err != nil || !stored {
			t.Fatalf("write %d failed: stored=%v err=%v", i, stored, err)
		}
	}

	plan := p.PlanExpunge(ExpungeAll, 1, 0)
	p.ApplyExpunge(plan)

	if plan.Survivors() != 0 {
		t.Fatalf("mode=1 plan kept %d survivors, want 0", plan.Survivors())
	}

	stats := p.Stats()
	if stats.FreeSlots != stats.NumSlots || stats.OldSlots != 0 {
		t.Fatalf("page after mode=1 expunge should be empty: %+v", stats)
	}
}

func TestExpunge_ModeExpiredKeepsLiveRecords(t *testing.T) {
	t.Parallel()

	p := newTestPage(t, 1024, 16)

	_, liveHash := partition([]byte("live"), 1)
	if _, err := p.Write([]byte("live"), []byte("v"), 0, liveHash, 1, 0); err != nil {
		t.Fatalf("write live: %v", err)
	}

	_, deadHash := partition([]byte("dead"), 1)
	if _, err := p.Write([]byte("dead"), []byte("v"), 0, deadHash, 1, 1); err != nil {
		t.Fatalf("write dead: %v", err)
	}

	plan := p.PlanExpunge(ExpungeExpired, 100, 0)
	p.ApplyExpunge(plan)

	if _, _, ok := p.Read([]byte("live"), liveHash, 100); !ok {
		t.Fatalf("live record was dropped by an expired-only expunge")
	}

	if _, _, ok := p.Read([]byte("dead"), deadHash, 100); ok {
		t.Fatalf("expired record survived an expired-only expunge")
	}
}

func TestExpunge_ModeForRoomGrowsAndReclaims(t *testing.T) {
	t.Parallel()

	const pageSize = 512

	p := newTestPage(t, pageSize, 8)

	i := 0
	for {
		key := []byte{byte('a' + i%26), byte('a' + (i/26)%26)}
		_, slotHash := partition(key, 1)

		stored, err := p.Write(key, []byte("value-payload"), 0, slotHash, uint32(i), 0)
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}

		if !stored {
			break
		}

		i++
	}

	need := recordSize(2, 100)

	plan := p.PlanExpunge(ExpungeForRoom, uint32(i+1), need)
	if plan == nil {
		t.Fatalf("expected a non-nil plan when the page is full")
	}

	p.ApplyExpunge(plan)

	stats := p.Stats()
	if stats.FreeBytes < need {
		t.Fatalf("expunge(mode=2) left free_bytes=%d, want >= %d", stats.FreeBytes, need)
	}

	if stats.OldSlots != 0 {
		t.Fatalf("expunge should reset old_slots to 0, got %d", stats.OldSlots)
	}
}

func TestExpunge_ModeForRoomIsNoOpWithEnoughRoom(t *testing.T) {
	t.Parallel()

	p := newTestPage(t, 4096, 64)

	plan := p.PlanExpunge(ExpungeForRoom, 1, 32)
	if plan != nil {
		t.Fatalf("expected a nil no-op plan on a near-empty page, got %d survivors", plan.Survivors())
	}
}
