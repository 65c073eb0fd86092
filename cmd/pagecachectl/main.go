// pagecachectl is a simple CLI for inspecting and exercising a pagecache
// file.
//
// Usage:
//
//	pagecachectl <cache-file>              Open an existing cache file
//	pagecachectl new [opts] <cache-file>   Create a new cache file
//
// Options for 'new':
//
//	-n, --num-pages    Number of pages (default: 4)
//	-p, --page-size    Page size in bytes (default: 65536)
//	-s, --start-slots  Initial slots per page (default: 64)
//	-e, --expire       Default TTL in seconds (default: 0, never)
//	-c, --config       JSONC options file, merged under the flags above
//
// Commands (in REPL):
//
//	put <key> <value>      Insert or overwrite an entry
//	get <key>               Retrieve an entry
//	del <key>                Delete an entry
//	stats                  Show the current page's header counters
//	scan                    List every record across all pages
//	expunge <mode>          Run an expunge on the current page (0, 1, or 2)
//	selfcheck               Validate the current page's structure
//	dump <path>             Atomically write a decoded page dump to disk
//	page <n>                 Lock page n, unlocking any page currently held
//	unlock                  Release the currently locked page
//	help                    Show this help
//	exit / quit / q          Exit
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
	"github.com/tailscale/hujson"

	"sharedmap.dev/sharedmap/pkg/pagecache"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return errors.New("missing command or cache file path")
	}

	if os.Args[1] == "new" {
		return runNew(os.Args[2:])
	}

	return runOpen(os.Args[1:])
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  pagecachectl <cache-file>              Open an existing cache file")
	fmt.Fprintln(os.Stderr, "  pagecachectl new [opts] <cache-file>   Create a new cache file")
}

// fileOptions is the JSONC shape accepted by --config, merged under
// whatever pflag values were given explicitly on the command line.
type fileOptions struct {
	NumPages   *int `json:"num_pages,omitempty"`   //nolint:tagliatelle
	PageSize   *int `json:"page_size,omitempty"`   //nolint:tagliatelle
	StartSlots *int `json:"start_slots,omitempty"` //nolint:tagliatelle
	ExpireTime *int `json:"expire_time,omitempty"` //nolint:tagliatelle
}

func loadConfigFile(path string) (fileOptions, error) {
	if path == "" {
		return fileOptions{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fileOptions{}, fmt.Errorf("reading %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileOptions{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	var fo fileOptions
	if err := json.Unmarshal(standardized, &fo); err != nil {
		return fileOptions{}, fmt.Errorf("decoding %s: %w", path, err)
	}

	return fo, nil
}

func runNew(args []string) error {
	fs := flag.NewFlagSet("new", flag.ExitOnError)

	numPages := fs.IntP("num-pages", "n", 4, "number of pages")
	pageSize := fs.IntP("page-size", "p", 65536, "page size in bytes")
	startSlots := fs.IntP("start-slots", "s", 64, "initial slots per page")
	expire := fs.IntP("expire", "e", 0, "default TTL in seconds, 0 means never")
	config := fs.StringP("config", "c", "", "JSONC options file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		return errors.New("new: missing cache file path")
	}

	path := fs.Arg(0)

	fo, err := loadConfigFile(*config)
	if err != nil {
		return err
	}

	opts := pagecache.DefaultOptions()
	opts.Path = path
	opts.NumPages = *numPages
	opts.PageSize = *pageSize
	opts.StartSlots = *startSlots
	opts.ExpireSeconds = *expire
	opts.InitFile = true

	if fo.NumPages != nil && !fs.Changed("num-pages") {
		opts.NumPages = *fo.NumPages
	}

	if fo.PageSize != nil && !fs.Changed("page-size") {
		opts.PageSize = *fo.PageSize
	}

	if fo.StartSlots != nil && !fs.Changed("start-slots") {
		opts.StartSlots = *fo.StartSlots
	}

	if fo.ExpireTime != nil && !fs.Changed("expire") {
		opts.ExpireSeconds = *fo.ExpireTime
	}

	c, err := pagecache.Open(opts)
	if err != nil {
		return fmt.Errorf("creating cache: %w", err)
	}

	fmt.Printf("created %s: num_pages=%d page_size=%d start_slots=%d\n", path, opts.NumPages, opts.PageSize, opts.StartSlots)

	return (&REPL{cache: c}).Run()
}

// runOpen opens an existing cache file. Unlike slotcache, a pagecache
// file carries no file-level header describing num_pages/page_size, so
// the caller must supply the same layout flags used to create it (or
// point --config at the JSONC file that recorded them).
func runOpen(args []string) error {
	fs := flag.NewFlagSet("open", flag.ExitOnError)

	numPages := fs.IntP("num-pages", "n", 4, "number of pages")
	pageSize := fs.IntP("page-size", "p", 65536, "page size in bytes")
	startSlots := fs.IntP("start-slots", "s", 64, "initial slots per page")
	expire := fs.IntP("expire", "e", 0, "default TTL in seconds, 0 means never")
	testFile := fs.BoolP("test-file", "t", false, "run the integrity walk at open")
	config := fs.StringP("config", "c", "", "JSONC options file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		return errors.New("missing cache file path")
	}

	path := fs.Arg(0)

	fo, err := loadConfigFile(*config)
	if err != nil {
		return err
	}

	opts := pagecache.DefaultOptions()
	opts.Path = path
	opts.NumPages = *numPages
	opts.PageSize = *pageSize
	opts.StartSlots = *startSlots
	opts.ExpireSeconds = *expire
	opts.TestFile = *testFile

	if fo.NumPages != nil && !fs.Changed("num-pages") {
		opts.NumPages = *fo.NumPages
	}

	if fo.PageSize != nil && !fs.Changed("page-size") {
		opts.PageSize = *fo.PageSize
	}

	if fo.StartSlots != nil && !fs.Changed("start-slots") {
		opts.StartSlots = *fo.StartSlots
	}

	if fo.ExpireTime != nil && !fs.Changed("expire") {
		opts.ExpireSeconds = *fo.ExpireTime
	}

	c, err := pagecache.Open(opts)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}

	return (&REPL{cache: c}).Run()
}

// REPL is the interactive command loop.
type REPL struct {
	cache   *pagecache.Cache
	curPage int
	locked  bool
	liner   *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".pagecachectl_history")
}

// Run starts the REPL loop (grounded on the teacher's cmd/sloty REPL).
func (r *REPL) Run() error {
	defer r.cache.Close()

	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("pagecachectl - %d pages\n", r.cache.NumPages())
	fmt.Println("Type 'help' for available commands.")

	for {
		line, err := r.liner.Prompt("pagecache> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			r.saveHistory()
			return nil
		case "help", "?":
			r.printHelp()
		case "put":
			r.cmdPut(args)
		case "get":
			r.cmdGet(args)
		case "del", "delete":
			r.cmdDelete(args)
		case "stats":
			r.cmdStats()
		case "scan":
			r.cmdScan()
		case "expunge":
			r.cmdExpunge(args)
		case "selfcheck":
			r.cmdSelfCheck()
		case "dump":
			r.cmdDump(args)
		case "page":
			r.cmdPage(args)
		case "unlock":
			r.cmdUnlock()
		default:
			fmt.Printf("unknown command: %s (type 'help')\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()

	r.liner.WriteHistory(f)
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  page <n>            lock page n (unlocks any currently held page)")
	fmt.Println("  unlock              release the currently locked page")
	fmt.Println("  put <key> <value>   insert or overwrite against the locked page")
	fmt.Println("  get <key>           look up against the locked page")
	fmt.Println("  del <key>           delete against the locked page")
	fmt.Println("  stats               show the locked page's header counters")
	fmt.Println("  scan                list every record across all pages")
	fmt.Println("  expunge <mode>      run expunge mode 0, 1, or 2 on the locked page")
	fmt.Println("  selfcheck           validate the locked page's structure")
	fmt.Println("  dump <path>         atomically write a decoded dump of the locked page")
	fmt.Println("  exit / quit / q")
}

func (r *REPL) cmdPage(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: page <n>")
		return
	}

	n, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Printf("bad page index: %v\n", err)
		return
	}

	if r.locked {
		r.cache.UnlockPage()
		r.locked = false
	}

	if err := r.cache.LockPage(n); err != nil {
		fmt.Printf("lock page %d: %v\n", n, err)
		return
	}

	r.curPage = n
	r.locked = true
	fmt.Printf("locked page %d\n", n)
}

func (r *REPL) cmdUnlock() {
	if !r.locked {
		fmt.Println("no page locked")
		return
	}

	if err := r.cache.UnlockPage(); err != nil {
		fmt.Printf("unlock: %v\n", err)
		return
	}

	r.locked = false
}

func (r *REPL) requireLocked() bool {
	if !r.locked {
		fmt.Println("no page locked, use: page <n>")
		return false
	}

	return true
}

func (r *REPL) cmdPut(args []string) {
	if !r.requireLocked() || len(args) != 2 {
		fmt.Println("usage: put <key> <value>")
		return
	}

	_, slotHash := r.cache.Hash([]byte(args[0]))

	stored, err := r.cache.Write([]byte(args[0]), []byte(args[1]), 0, slotHash, uint32(time.Now().Unix()))
	if err != nil {
		fmt.Printf("put: %v\n", err)
		return
	}

	if !stored {
		fmt.Println("not stored: page lacks room, try: expunge 2")
		return
	}

	fmt.Println("ok")
}

func (r *REPL) cmdGet(args []string) {
	if !r.requireLocked() || len(args) != 1 {
		fmt.Println("usage: get <key>")
		return
	}

	_, slotHash := r.cache.Hash([]byte(args[0]))

	val, flags, ok, err := r.cache.Read([]byte(args[0]), slotHash, uint32(time.Now().Unix()))
	if err != nil {
		fmt.Printf("get: %v\n", err)
		return
	}

	if !ok {
		fmt.Println("(miss)")
		return
	}

	fmt.Printf("%s  (flags=%d)\n", val, flags)
}

func (r *REPL) cmdDelete(args []string) {
	if !r.requireLocked() || len(args) != 1 {
		fmt.Println("usage: del <key>")
		return
	}

	_, slotHash := r.cache.Hash([]byte(args[0]))

	_, found, err := r.cache.Delete([]byte(args[0]), slotHash)
	if err != nil {
		fmt.Printf("del: %v\n", err)
		return
	}

	if !found {
		fmt.Println("(not found)")
		return
	}

	fmt.Println("ok")
}

func (r *REPL) cmdStats() {
	if !r.requireLocked() {
		return
	}

	stats, err := r.cache.Stats()
	if err != nil {
		fmt.Printf("stats: %v\n", err)
		return
	}

	fmt.Printf("page %d: num_slots=%d free_slots=%d old_slots=%d free_data=%d free_bytes=%d\n",
		r.curPage, stats.NumSlots, stats.FreeSlots, stats.OldSlots, stats.FreeData, stats.FreeBytes)
}

func (r *REPL) cmdExpunge(args []string) {
	if !r.requireLocked() || len(args) != 1 {
		fmt.Println("usage: expunge <0|1|2>")
		return
	}

	mode, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Printf("bad mode: %v\n", err)
		return
	}

	if err := r.cache.Expunge(mode, uint32(time.Now().Unix()), 0); err != nil {
		fmt.Printf("expunge: %v\n", err)
		return
	}

	fmt.Println("ok")
}

func (r *REPL) cmdSelfCheck() {
	if !r.requireLocked() {
		return
	}

	if err := r.cache.SelfCheck(); err != nil {
		fmt.Printf("selfcheck: %v\n", err)
		return
	}

	fmt.Println("ok")
}

func (r *REPL) cmdScan() {
	wasLocked := r.locked
	if wasLocked {
		r.cache.UnlockPage()
		r.locked = false
	}

	it, err := r.cache.NewIterator()
	if err != nil {
		fmt.Printf("scan: %v\n", err)
		return
	}
	defer it.Close()

	count := 0

	for {
		entry, ok, err := it.Next()
		if err != nil {
			fmt.Printf("scan: %v\n", err)
			return
		}

		if !ok {
			break
		}

		fmt.Printf("%s = %s\n", entry.Key, entry.Value)

		count++
	}

	fmt.Printf("(%d records)\n", count)

	if wasLocked {
		if err := r.cache.LockPage(r.curPage); err == nil {
			r.locked = true
		}
	}
}

// cmdDump writes a decoded snapshot of the locked page to path, using an
// atomic rename-into-place so a dump is never observed half-written.
func (r *REPL) cmdDump(args []string) {
	if !r.requireLocked() || len(args) != 1 {
		fmt.Println("usage: dump <path>")
		return
	}

	stats, err := r.cache.Stats()
	if err != nil {
		fmt.Printf("dump: %v\n", err)
		return
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "page %d\n", r.curPage)
	fmt.Fprintf(&buf, "num_slots=%d free_slots=%d old_slots=%d free_data=%d free_bytes=%d\n",
		stats.NumSlots, stats.FreeSlots, stats.OldSlots, stats.FreeData, stats.FreeBytes)

	if err := atomic.WriteFile(args[0], strings.NewReader(buf.String())); err != nil {
		fmt.Printf("dump: %v\n", err)
		return
	}

	fmt.Println("ok")
}
