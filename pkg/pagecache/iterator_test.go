package pagecache_test

import (
	"path/filepath"
	"testing"

	"sharedmap.dev/sharedmap/pkg/pagecache"
)

func TestIterator_YieldsAllWrittenRecords(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.bin")
	c := openTestCache(t, pagecache.Options{Path: path, NumPages: 3, PageSize: 4096, StartSlots: 32})

	want := map[string]string{"alpha": "1", "beta": "2", "gamma": "3", "delta": "4"}

	for k, v := range want {
		pageIndex, slotHash := c.Hash([]byte(k))

		if err := c.LockPage(pageIndex); err != nil {
			t.Fatalf("LockPage: %v", err)
		}

		if stored, err := c.Write([]byte(k), []byte(v), 0, slotHash, 1); err != nil || !stored {
			t.Fatalf("Write(%q): stored=%v err=%v", k, stored, err)
		}

		if err := c.UnlockPage(); err != nil {
			t.Fatalf("UnlockPage: %v", err)
		}
	}

	it, err := c.NewIterator()
	if err != nil {
		t.Fatalf("NewIterator: %v", err)
	}
	defer it.Close()

	got := make(map[string]string)

	for {
		entry, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}

		if !ok {
			break
		}

		got[string(entry.Key)] = string(entry.Value)
	}

	if len(got) != len(want) {
		t.Fatalf("iterator yielded %d records, want %d: %v", len(got), len(want), got)
	}

	for k, v := range want {
		if got[k] != v {
			t.Fatalf("iterator entry %q = %q, want %q", k, got[k], v)
		}
	}
}

func TestIterator_EmptyCacheYieldsNothing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.bin")
	c := openTestCache(t, pagecache.Options{Path: path, NumPages: 2, PageSize: 1024, StartSlots: 16})

	it, err := c.NewIterator()
	if err != nil {
		t.Fatalf("NewIterator: %v", err)
	}
	defer it.Close()

	if _, ok, err := it.Next(); ok || err != nil {
		t.Fatalf("Next() on an empty cache = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}

func TestIterator_CloseAfterCloseIsSafe(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.bin")
	c := openTestCache(t, pagecache.Options{Path: path, NumPages: 1, PageSize: 1024, StartSlots: 16})

	it, err := c.NewIterator()
	if err != nil {
		t.Fatalf("NewIterator: %v", err)
	}

	if err := it.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}

	if err := it.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, _, err := it.Next(); err != pagecache.ErrIterClosed {
		t.Fatalf("Next() after Close = %v, want ErrIterClosed", err)
	}
}
