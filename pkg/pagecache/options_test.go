package pagecache

import (
	"errors"
	"testing"
)

func TestOptions_ValidateRanges(t *testing.T) {
	t.Parallel()

	valid := Options{Path: "x", NumPages: 4, PageSize: 4096, StartSlots: 32}
	if err := valid.validate(); err != nil {
		t.Fatalf("validate() on a well-formed Options: %v", err)
	}

	cases := []Options{
		{NumPages: 4, PageSize: 4096, StartSlots: 32},                 // no path, no share_file
		{Path: "x", NumPages: 0, PageSize: 4096, StartSlots: 32},      // num_pages too small
		{Path: "x", NumPages: 4, PageSize: 1, StartSlots: 32},         // page_size too small
		{Path: "x", NumPages: 4, PageSize: 4096, StartSlots: 1},       // start_slots too small
		{Path: "x", NumPages: 4, PageSize: 1024, StartSlots: 500},     // slot table overruns page
		{Path: "x", NumPages: 4, PageSize: 4096, StartSlots: 32, ExpireSeconds: -1},
	}

	for i, o := range cases {
		if err := o.validate(); !errors.Is(err, ErrInvalidOption) {
			t.Fatalf("case %d: validate() = %v, want ErrInvalidOption", i, err)
		}
	}
}

func TestOptions_SetGetRoundTrip(t *testing.T) {
	t.Parallel()

	var o Options

	if err := o.Set("page_size", 8192); err != nil {
		t.Fatalf("Set(page_size): %v", err)
	}

	if err := o.Set("init_file", true); err != nil {
		t.Fatalf("Set(init_file): %v", err)
	}

	got, err := o.Get("page_size")
	if err != nil || got != 8192 {
		t.Fatalf("Get(page_size) = (%v, %v), want (8192, nil)", got, err)
	}

	got, err = o.Get("init_file")
	if err != nil || got != true {
		t.Fatalf("Get(init_file) = (%v, %v), want (true, nil)", got, err)
	}
}

func TestOptions_SetUnknownName(t *testing.T) {
	t.Parallel()

	var o Options
	if err := o.Set("bogus", 1); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("Set(bogus) = %v, want ErrInvalidOption", err)
	}
}

func TestOptions_SetWrongType(t *testing.T) {
	t.Parallel()

	var o Options
	if err := o.Set("init_file", "yes"); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("Set(init_file, string) = %v, want ErrInvalidOption", err)
	}
}
