package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fileWatcher reports changes to one file. It watches the parent directory
// because editors often replace files instead of writing them in place.
type fileWatcher struct {
	w    *fsnotify.Watcher
	path string
}

func newFileWatcher(path string) (*fileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}
	return &fileWatcher{w: w, path: abs}, nil
}

// Run calls onChange after every write to the file until ctx is done.
// Bursts of events within settle are coalesced into one call.
func (fw *fileWatcher) Run(ctx context.Context, settle time.Duration, onChange func()) error {
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != fw.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending = time.After(settle)
			}
		case err, ok := <-fw.w.Errors:
			if !ok {
				return nil
			}
			return err
		case <-pending:
			pending = nil
			onChange()
		}
	}
}

func (fw *fileWatcher) Close() error { return fw.w.Close() }

// watch re-inspects a unit every time it changes.
//
// Usage: gobridge watch <file.go>
func (e *env) watch(ctx context.Context, args []string) int {
	if len(args) != 1 {
		return e.errorf("usage: gobridge watch <file.go>")
	}
	path := args[0]
	fw, err := newFileWatcher(path)
	if err != nil {
		return e.errorf("watching %s: %v", path, err)
	}
	defer fw.Close()

	check := func() {
		res, err := inspectFile(path)
		if err != nil {
			fmt.Fprintf(e.stdout, "%s %v\n", e.paint("31", "✗"), err)
			return
		}
		e.printResult(res)
		fmt.Fprintf(e.stdout, "%s %d functions, %d types\n", e.paint("32", "✓"), len(res.Functions), len(res.Classes))
	}
	check()
	fmt.Fprintf(e.stdout, "Watching %s (Ctrl-C to stop)\n", path)

	if err := fw.Run(ctx, 100*time.Millisecond, check); err != nil {
		return e.errorf("%v", err)
	}
	return 0
}
