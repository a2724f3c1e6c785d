// Package verify compares a copied tree against its source by content
// digest.
package verify

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/mpetersen/treecp/internal/event"
	"github.com/mpetersen/treecp/internal/filter"
)

// Config controls a verification pass.
type Config struct {
	SrcRoot string
	DstRoot string
	Workers int
	Filter  *filter.Chain
	Events  chan<- event.Event
}

// Result holds the outcome of a verification pass.
type Result struct {
	Verified int64
	Failed   int64
	Errors   []Mismatch
}

// Mismatch records a single checksum disagreement.
type Mismatch struct {
	Path    string
	SrcHash string
	DstHash string
}

// Run walks the destination tree and compares BLAKE3 checksums against the
// source for every regular file present in both trees. Hashing fans out to
// cfg.Workers goroutines.
func Run(ctx context.Context, cfg Config) Result {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	files := collectFiles(ctx, cfg.SrcRoot, cfg.DstRoot, cfg.Filter)

	taskCh := make(chan string, workers*2)
	var mu sync.Mutex
	var result Result
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for relPath := range taskCh {
				select {
				case <-ctx.Done():
					return
				default:
				}

				srcHash, srcErr := HashFile(filepath.Join(cfg.SrcRoot, relPath))
				dstHash, dstErr := HashFile(filepath.Join(cfg.DstRoot, relPath))

				if srcErr != nil || dstErr != nil || srcHash != dstHash {
					mu.Lock()
					result.Failed++
					result.Errors = append(result.Errors, Mismatch{
						Path:    relPath,
						SrcHash: hashOrError(srcHash, srcErr),
						DstHash: hashOrError(dstHash, dstErr),
					})
					mu.Unlock()
					event.Emit(cfg.Events, event.Event{
						Type:  event.VerifyFailed,
						Path:  relPath,
						Error: firstErr(srcErr, dstErr),
					})
					continue
				}

				mu.Lock()
				result.Verified++
				mu.Unlock()
				event.Emit(cfg.Events, event.Event{Type: event.VerifyOK, Path: relPath})
			}
		}()
	}

	for _, f := range files {
		select {
		case <-ctx.Done():
		case taskCh <- f:
			continue
		}
		break
	}
	close(taskCh)
	wg.Wait()

	return result
}

// collectFiles walks the destination tree and returns relative paths of
// regular files that pass the filter and also exist in the source.
func collectFiles(ctx context.Context, srcRoot, dstRoot string, f *filter.Chain) []string {
	var files []string
	_ = filepath.WalkDir(dstRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(dstRoot, path)
		if err != nil {
			return nil
		}

		if f != nil && !f.Empty() {
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if !f.Match(relPath, false, info.Size()) {
				return nil
			}
		}

		if _, err := os.Lstat(filepath.Join(srcRoot, relPath)); err != nil {
			return nil
		}

		files = append(files, relPath)
		return nil
	})
	return files
}

func hashOrError(hash string, err error) string {
	if err != nil {
		return "error"
	}
	return hash
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
