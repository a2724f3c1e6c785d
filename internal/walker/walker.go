// Package walker implements a depth-first filesystem traversal that
// dispatches each visited node to a Visitor hook by file type. Directories
// are visited twice, pre-order before their children and post-order after.
// Symlinks are never dereferenced and recursion never crosses a mount-point
// boundary.
package walker

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sys/unix"
)

// Action is a bit set returned by Visitor hooks to steer the walk.
// The zero value continues normally; Fail, Skip and Stop are combinable.
type Action uint

const (
	// Fail records the node as failed; the walk continues unless Stop is
	// also set.
	Fail Action = 1 << iota
	// Skip prevents descending into the current directory.
	Skip
	// Stop aborts the entire walk.
	Stop

	// OK continues the walk normally.
	OK Action = 0
)

// Entry describes the node currently under visit.
type Entry struct {
	// Path is the node's full path, prefixed by the path the walk was
	// started with.
	Path string
	// Name is the node's base name.
	Name string
	// Stat is the node's lstat result, never dereferenced.
	Stat unix.Stat_t
}

// Visitor receives traversal hooks. Every hook returns an Action; hooks
// that return Stop abort the walk, Fail marks the walk unsuccessful.
type Visitor interface {
	// PreExecute runs before the walk starts. Returning false aborts
	// with failure before any node is visited.
	PreExecute() bool
	// ChangedPath runs once per visited node, before its type hook.
	ChangedPath(e *Entry) Action
	VisitDirPre(e *Entry) Action
	VisitDirPost(e *Entry) Action
	VisitFile(e *Entry) Action
	VisitSymlink(e *Entry) Action
	VisitBlockDev(e *Entry) Action
	VisitCharDev(e *Entry) Action
	VisitFIFO(e *Entry) Action
	VisitSocket(e *Entry) Action
}

// Walker drives a depth-first walk rooted at a single path.
type Walker struct {
	root    string
	visitor Visitor

	rootDev uint64
	failed  bool
	stopped bool
}

// New creates a Walker over root that dispatches to v.
func New(root string, v Visitor) *Walker {
	return &Walker{root: filepath.Clean(root), visitor: v}
}

// Run executes the walk and reports overall success: true when PreExecute
// accepted, no hook returned Fail or Stop, and the context stayed live.
// Error detail is the visitor's concern; hooks observe failures first-hand.
func (w *Walker) Run(ctx context.Context) bool {
	if !w.visitor.PreExecute() {
		return false
	}

	var st unix.Stat_t
	if err := unix.Lstat(w.root, &st); err != nil {
		slog.Warn("lstat walk root", "path", w.root, "error", err)
		return false
	}
	w.rootDev = uint64(st.Dev)

	w.walk(ctx, w.root, filepath.Base(w.root), st)
	return !w.failed && !w.stopped && ctx.Err() == nil
}

func (w *Walker) walk(ctx context.Context, path, name string, st unix.Stat_t) {
	if w.stopped || ctx.Err() != nil {
		return
	}

	e := &Entry{Path: path, Name: name, Stat: st}
	if w.apply(w.visitor.ChangedPath(e)) {
		return
	}

	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		w.apply(w.visitNonDir(e))
		return
	}

	skip := w.apply(w.visitor.VisitDirPre(e))
	if skip || w.stopped {
		return
	}

	// Recursion stays on the root's device.
	if uint64(st.Dev) == w.rootDev {
		w.walkChildren(ctx, path)
	}

	if w.stopped || ctx.Err() != nil {
		return
	}
	w.apply(w.visitor.VisitDirPost(e))
}

func (w *Walker) walkChildren(ctx context.Context, dir string) {
	names, err := readDirNames(dir)
	if err != nil {
		slog.Warn("read directory", "path", dir, "error", err)
		w.failed = true
		return
	}

	for _, name := range names {
		if w.stopped || ctx.Err() != nil {
			return
		}

		childPath := filepath.Join(dir, name)
		var st unix.Stat_t
		if err := unix.Lstat(childPath, &st); err != nil {
			slog.Warn("lstat entry", "path", childPath, "error", err)
			w.failed = true
			continue
		}
		w.walk(ctx, childPath, name, st)
	}
}

func (w *Walker) visitNonDir(e *Entry) Action {
	switch e.Stat.Mode & unix.S_IFMT {
	case unix.S_IFREG:
		return w.visitor.VisitFile(e)
	case unix.S_IFLNK:
		return w.visitor.VisitSymlink(e)
	case unix.S_IFBLK:
		return w.visitor.VisitBlockDev(e)
	case unix.S_IFCHR:
		return w.visitor.VisitCharDev(e)
	case unix.S_IFIFO:
		return w.visitor.VisitFIFO(e)
	case unix.S_IFSOCK:
		return w.visitor.VisitSocket(e)
	default:
		slog.Warn("unknown file type", "path", e.Path, "mode", e.Stat.Mode)
		return Fail
	}
}

// apply folds an Action into walk state and reports whether the current
// subtree should not be descended into.
func (w *Walker) apply(act Action) bool {
	if act&Fail != 0 {
		w.failed = true
	}
	if act&Stop != 0 {
		w.stopped = true
	}
	return act&(Skip|Stop) != 0
}

func readDirNames(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
