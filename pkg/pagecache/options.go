package pagecache

import (
	"fmt"
	"os"
	"time"
)

// Options configures a cache handle.
//
// The source API exposes these as named get/set calls (init_file,
// test_file, page_size, num_pages, expire_time, share_file,
// start_slots); Go callers set struct fields directly. [Options.Set] and
// [Options.Get] are provided alongside for callers translating from that
// named-parameter shape (e.g. a config file with string keys).
type Options struct {
	// Path is the backing file's path. Required unless ShareFile is set.
	Path string

	// ShareFile, if non-nil, is an already-open file descriptor to use
	// as the backing file instead of opening Path. The handle does not
	// take ownership of closing it beyond what Close documents.
	ShareFile *os.File

	// NumPages is the number of equal-sized pages in the file.
	// Range: [1, 1000].
	NumPages int

	// PageSize is the size in bytes of each page.
	// Range: [1 KiB, 1 MiB].
	PageSize int

	// StartSlots is the initial slot-table size of every page.
	// Range: [10, 500].
	StartSlots int

	// ExpireSeconds is the TTL applied to every write; 0 means entries
	// never expire.
	ExpireSeconds int

	// InitFile forces re-initialization (recreate + reformat every
	// page) even if an existing file of the right size is found.
	InitFile bool

	// TestFile enables the integrity self-check walk over every page at
	// open, re-initializing any page that fails lock acquisition or
	// self-check.
	TestFile bool

	// LockTimeout overrides the page-lock safety alarm. Zero
	// means [defaultLockTimeout].
	LockTimeout time.Duration
}

// DefaultOptions returns the smallest configuration the range checks
// accept: one page, the minimum page size, the minimum slot count, no
// expiry. Path and ShareFile are left unset, so Open rejects it until
// one of them is filled in.
func DefaultOptions() Options {
	return Options{
		NumPages:   minNumPages,
		PageSize:   minPageSize,
		StartSlots: minStartSlots,
	}
}

func (o Options) validate() error {
	if o.Path == "" && o.ShareFile == nil {
		return fmt.Errorf("%w: path or share_file is required", ErrInvalidOption)
	}

	if o.NumPages < minNumPages || o.NumPages > maxNumPages {
		return fmt.Errorf("%w: num_pages %d outside [%d, %d]", ErrInvalidOption, o.NumPages, minNumPages, maxNumPages)
	}

	if o.PageSize < minPageSize || o.PageSize > maxPageSize {
		return fmt.Errorf("%w: page_size %d outside [%d, %d]", ErrInvalidOption, o.PageSize, minPageSize, maxPageSize)
	}

	if o.StartSlots < minStartSlots || o.StartSlots > maxStartSlots {
		return fmt.Errorf("%w: start_slots %d outside [%d, %d]", ErrInvalidOption, o.StartSlots, minStartSlots, maxStartSlots)
	}

	minPageBytes := headerSize + o.StartSlots*slotSize
	if minPageBytes > o.PageSize {
		return fmt.Errorf("%w: start_slots %d leaves no heap in a %d byte page", ErrInvalidOption, o.StartSlots, o.PageSize)
	}

	if o.ExpireSeconds < 0 {
		return fmt.Errorf("%w: expire_time must be >= 0", ErrInvalidOption)
	}

	return nil
}

// Set assigns a named option, mirroring the source's set-parameter call.
// Supported names: init_file, test_file, page_size, num_pages,
// expire_time, start_slots. share_file and path have no string
// representation and must be set via the struct fields directly.
func (o *Options) Set(name string, value any) error {
	switch name {
	case "init_file":
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: init_file wants bool", ErrInvalidOption)
		}

		o.InitFile = v
	case "test_file":
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: test_file wants bool", ErrInvalidOption)
		}

		o.TestFile = v
	case "page_size":
		v, err := asInt(value)
		if err != nil {
			return fmt.Errorf("%w: page_size: %w", ErrInvalidOption, err)
		}

		o.PageSize = v
	case "num_pages":
		v, err := asInt(value)
		if err != nil {
			return fmt.Errorf("%w: num_pages: %w", ErrInvalidOption, err)
		}

		o.NumPages = v
	case "start_slots":
		v, err := asInt(value)
		if err != nil {
			return fmt.Errorf("%w: start_slots: %w", ErrInvalidOption, err)
		}

		o.StartSlots = v
	case "expire_time":
		v, err := asInt(value)
		if err != nil {
			return fmt.Errorf("%w: expire_time: %w", ErrInvalidOption, err)
		}

		o.ExpireSeconds = v
	default:
		return fmt.Errorf("%w: unknown option %q", ErrInvalidOption, name)
	}

	return nil
}

// Get retrieves a named option previously described in [Options.Set].
func (o Options) Get(name string) (any, error) {
	switch name {
	case "init_file":
		return o.InitFile, nil
	case "test_file":
		return o.TestFile, nil
	case "page_size":
		return o.PageSize, nil
	case "num_pages":
		return o.NumPages, nil
	case "start_slots":
		return o.StartSlots, nil
	case "expire_time":
		return o.ExpireSeconds, nil
	default:
		return nil, fmt.Errorf("%w: unknown option %q", ErrInvalidOption, name)
	}
}

func asInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("want an integer, got %T", value)
	}
}
