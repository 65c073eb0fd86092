package pagecache

import "testing"

func TestHashKey_Deterministic(t *testing.T) {
	t.Parallel()

	h1 := hashKey([]byte("abc"))
	h2 := hashKey([]byte("abc"))

	if h1 != h2 {
		t.Fatalf("hashKey not deterministic: %d != %d", h1, h2)
	}
}

func TestHashKey_SensitiveToLastByte(t *testing.T) {
	t.Parallel()

	if hashKey([]byte("abc")) == hashKey([]byte("abd")) {
		t.Fatalf("hashKey collided on a single-byte change")
	}
}

func TestHashKey_EmptyKeyIsSeed(t *testing.T) {
	t.Parallel()

	if got := hashKey(nil); got != magic {
		t.Fatalf("hashKey(nil) = %#x, want seed %#x", got, magic)
	}
}

func TestPartition_RoundTripsFullHash(t *testing.T) {
	t.Parallel()

	cases := []struct {
		key      string
		numPages int
	}{
		{"abc", 1},
		{"abc", 4},
		{"", 7},
		{"a long enough key to exercise several rotate-add rounds", 13},
	}

	for _, tc := range cases {
		h := hashKey([]byte(tc.key))
		pageIndex, slotHash := partition([]byte(tc.key), tc.numPages)

		wantPage := int(h % uint32(tc.numPages))
		wantSlot := h / uint32(tc.numPages)

		if pageIndex != wantPage || slotHash != wantSlot {
			t.Fatalf("partition(%q, %d) = (%d, %d), want (%d, %d)",
				tc.key, tc.numPages, pageIndex, slotHash, wantPage, wantSlot)
		}

		if pageIndex < 0 || pageIndex >= tc.numPages {
			t.Fatalf("partition(%q, %d) page index %d out of range", tc.key, tc.numPages, pageIndex)
		}
	}
}
