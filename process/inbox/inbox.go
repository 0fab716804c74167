// Package inbox imports band submissions dropped as JSON files into a
// directory. Each file goes through the same allocation path as POST
// /entries; accepted files move to done/, rejected ones to failed/ next to a
// .err file holding the reason.
package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"bandalloc/pkg/apperr"
	"bandalloc/pkg/bands"

	"github.com/fsnotify/fsnotify"
)

const (
	doneDir   = "done"
	failedDir = "failed"

	pollInterval = 250 * time.Millisecond
	settleDelay  = 300 * time.Millisecond
)

type Allocator interface {
	Allocate(ctx context.Context, sub bands.Submission) (bands.Allocation, error)
}

type Processor struct {
	dir   string
	alloc Allocator
	// OnAllocated runs after every accepted file, e.g. to drop cached listings.
	OnAllocated func(context.Context)
}

func New(dir string, alloc Allocator) *Processor {
	return &Processor{dir: dir, alloc: alloc}
}

// Prepare creates the inbox and its done/ and failed/ subdirectories.
func (p *Processor) Prepare() error {
	for _, d := range []string{p.dir, filepath.Join(p.dir, doneDir), filepath.Join(p.dir, failedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func isSubmission(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ".json")
}

// Pending lists the submission files waiting in the inbox, sorted by name.
func (p *Processor) Pending() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isSubmission(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// ProcessFile allocates the submission stored in name and files it under
// done/ or failed/. The returned error is the rejection reason.
func (p *Processor) ProcessFile(ctx context.Context, name string) error {
	path := filepath.Join(p.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var sub bands.Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		err = apperr.Validation("invalid submission JSON: %v", err)
		p.reject(name, err)
		return err
	}
	out, err := p.alloc.Allocate(ctx, sub)
	if err != nil {
		p.reject(name, err)
		return err
	}
	if p.OnAllocated != nil {
		p.OnAllocated(ctx)
	}
	if err := os.Rename(path, filepath.Join(p.dir, doneDir, name)); err != nil {
		log.Printf("inbox: move %s to done: %v", name, err)
	}
	log.Printf("inbox: %s allocated %d bands for %s (group %s, replaced %d)", name, len(out.IDs), sub.UserID, out.EntryGroupID, out.ReplacedCount)
	return nil
}

func (p *Processor) reject(name string, reason error) {
	log.Printf("inbox: %s rejected: %v", name, reason)
	target := filepath.Join(p.dir, failedDir, name)
	if err := os.Rename(filepath.Join(p.dir, name), target); err != nil {
		log.Printf("inbox: move %s to failed: %v", name, err)
	}
	msg := reason.Error() + "\n"
	for _, d := range apperr.DuplicatesOf(reason) {
		msg += fmt.Sprintf("band %d held by %s\n", d.BandNo, d.User)
	}
	if err := os.WriteFile(target+".err", []byte(msg), 0o644); err != nil {
		log.Printf("inbox: write %s.err: %v", name, err)
	}
}

// ProcessPending handles every file already waiting in the inbox and
// reports how many were accepted and rejected.
func (p *Processor) ProcessPending(ctx context.Context) (accepted, rejected int, err error) {
	names, err := p.Pending()
	if err != nil {
		return 0, 0, err
	}
	for _, name := range names {
		if ctx.Err() != nil {
			return accepted, rejected, ctx.Err()
		}
		if p.ProcessFile(ctx, name) != nil {
			rejected++
		} else {
			accepted++
		}
	}
	return accepted, rejected, nil
}

// Watch processes files as they appear until ctx is cancelled. A file is
// picked up once it has stopped changing for a short while.
func (p *Processor) Watch(ctx context.Context, workers int) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(p.dir); err != nil {
		return err
	}
	log.Printf("Watching %s (debounced) ...", p.dir)

	if workers < 1 {
		workers = 1
	}
	fileCh := make(chan string, 256)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range fileCh {
				// finish in-flight files even while shutting down
				_ = p.ProcessFile(context.WithoutCancel(ctx), name)
			}
		}()
	}
	defer wg.Wait()
	defer close(fileCh)

	pending := map[string]time.Time{}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if filepath.Dir(ev.Name) != filepath.Clean(p.dir) || !isSubmission(name) {
				continue
			}
			pending[name] = time.Now()
		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) > settleDelay {
					delete(pending, name)
					select {
					case fileCh <- name:
					case <-ctx.Done():
						return nil
					}
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch error: %v", err)
		}
	}
}
