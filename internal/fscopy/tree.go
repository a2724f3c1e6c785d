package fscopy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/mpetersen/treecp/internal/event"
	"github.com/mpetersen/treecp/internal/filter"
	"github.com/mpetersen/treecp/internal/stats"
	"github.com/mpetersen/treecp/internal/walker"
)

// TreeOptions carries the optional collaborators of a tree copy. The zero
// value is valid.
type TreeOptions struct {
	// Filter selects which entries to copy; nil copies everything.
	Filter *filter.Chain
	// Stats receives per-entry counters; nil allocates a private one.
	Stats *stats.Collector
	// Events receives best-effort progress events; nil drops them.
	Events chan<- event.Event
	// BWLimit caps aggregate copy throughput; nil is unlimited.
	BWLimit *rate.Limiter
}

// devIno identifies a filesystem entry for the self-copy guard.
type devIno struct {
	dev uint64
	ino uint64
}

// treeCopier copies a directory tree by implementing the walker hooks. It
// keeps the walk's state: the resolved target root's identity (captured
// once at walk start), the target path of the node under visit and the
// first error encountered.
type treeCopier struct {
	ctx   context.Context
	src   string
	dst   string
	flags Flags
	opts  TreeOptions

	rootID   devIno
	curTgt   string
	curRel   string
	firstErr error
}

// Tree copies the directory tree rooted at src into dst, creating dst if
// absent. Unless ExcludeTopLevel is set, src's own base name is nested
// under dst. Per-entry failures are logged and the walk continues; the
// self-copy guard and a non-directory target are fatal. The first error
// encountered is returned once the walk finishes.
func Tree(ctx context.Context, src, dst string, flags Flags, opts TreeOptions) error {
	defer clearUmask()()

	if opts.Stats == nil {
		opts.Stats = stats.NewCollector()
	}

	c := &treeCopier{
		ctx:   ctx,
		src:   filepath.Clean(src),
		dst:   filepath.Clean(dst),
		flags: flags,
		opts:  opts,
	}

	event.Emit(opts.Events, event.Event{Type: event.WalkStarted, Path: src})

	ok := walker.New(c.src, c).Run(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ok {
		if c.firstErr != nil {
			return c.firstErr
		}
		return fmt.Errorf("copy %s to %s failed", src, dst)
	}
	return nil
}

// setErr retains the first error for reporting; later ones are only logged.
func (c *treeCopier) setErr(err error) {
	if c.firstErr == nil {
		c.firstErr = err
	}
}

func (c *treeCopier) PreExecute() bool {
	// Dereferencing symlinks during recursion is almost never wanted, so
	// it is disallowed outright.
	if c.flags&FollowSymlinks != 0 {
		c.setErr(errors.New("cannot follow symlinks in a recursive copy"))
		slog.Error("cannot follow symlinks in a recursive copy", "source", c.src)
		return false
	}

	if err := unix.Mkdir(c.dst, 0o777); err != nil && !errors.Is(err, unix.EEXIST) {
		c.setErr(fmt.Errorf("create directory %s: %w", c.dst, err))
		slog.Error("create target root", "path", c.dst, "error", err)
		return false
	}

	var st unix.Stat_t
	if err := unix.Stat(c.dst, &st); err != nil {
		c.setErr(fmt.Errorf("stat %s: %w", c.dst, err))
		slog.Error("stat target root", "path", c.dst, "error", err)
		return false
	}
	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		c.setErr(fmt.Errorf("%s: target exists but is not a directory", c.dst))
		slog.Error("target exists but is not a directory", "path", c.dst)
		return false
	}

	c.rootID = devIno{dev: uint64(st.Dev), ino: st.Ino}
	return true
}

func (c *treeCopier) ChangedPath(e *walker.Entry) walker.Action {
	// Refuse to copy the target on top of itself.
	if c.rootID == (devIno{dev: uint64(e.Stat.Dev), ino: e.Stat.Ino}) {
		c.setErr(fmt.Errorf("%s: cannot copy on top of itself", e.Path))
		slog.Error("cannot copy on top of itself", "path", e.Path)
		return walker.Fail | walker.Stop
	}

	rel := strings.TrimPrefix(e.Path, c.src)
	rel = strings.TrimPrefix(rel, string(filepath.Separator))

	c.curRel = rel
	if c.flags&ExcludeTopLevel != 0 {
		c.curTgt = filepath.Join(c.dst, rel)
	} else {
		c.curTgt = filepath.Join(c.dst, filepath.Base(c.src), rel)
	}
	return walker.OK
}

func (c *treeCopier) VisitDirPre(e *walker.Entry) walker.Action {
	if !c.included(e, true) {
		return walker.Skip
	}

	skip := false
	failed := false

	if err := unix.Mkdir(c.curTgt, 0o777); err != nil && !errors.Is(err, unix.EEXIST) {
		c.fail(e, fmt.Errorf("create directory %s: %w", c.curTgt, err))
		skip, failed = true, true
	}

	if !skip {
		var st unix.Stat_t
		if err := unix.Stat(c.curTgt, &st); err == nil && st.Mode&unix.S_IFMT != unix.S_IFDIR {
			c.fail(e, fmt.Errorf("%s: exists but is not a directory", c.curTgt))
			skip, failed = true, true
		}
	}

	if skip {
		// The post-visit hook will not run for a skipped subtree, so
		// attributes have to be applied here.
		if c.applyMeta(e) != nil {
			failed = true
		}
		if failed {
			return walker.Skip | walker.Fail
		}
		return walker.Skip
	}

	c.opts.Stats.AddDirsCreated(1)
	event.Emit(c.opts.Events, event.Event{Type: event.DirCreated, Path: c.curRel})
	return walker.OK
}

func (c *treeCopier) VisitDirPost(e *walker.Entry) walker.Action {
	if c.applyMeta(e) != nil {
		return walker.Fail
	}
	return walker.OK
}

func (c *treeCopier) VisitFile(e *walker.Entry) walker.Action {
	if !c.included(e, false) {
		return walker.OK
	}
	if !c.removeExisting(e) {
		return walker.Fail
	}

	n, err := copyPath(c.ctx, e.Path, c.curTgt, c.opts.BWLimit)
	if err != nil {
		c.fail(e, err)
		return walker.Fail
	}

	if c.applyMeta(e) != nil {
		return walker.Fail
	}

	c.opts.Stats.AddFilesCopied(1)
	c.opts.Stats.AddBytesCopied(n)
	event.Emit(c.opts.Events, event.Event{Type: event.EntryCopied, Path: c.curRel, Size: n})
	return walker.OK
}

func (c *treeCopier) VisitSymlink(e *walker.Entry) walker.Action {
	if !c.included(e, false) {
		return walker.OK
	}
	if !c.removeExisting(e) {
		return walker.Fail
	}

	target, err := Readlink(e.Path)
	if err != nil {
		c.fail(e, err)
		return walker.Fail
	}
	if err := unix.Symlink(target, c.curTgt); err != nil {
		c.fail(e, fmt.Errorf("create symlink %s: %w", c.curTgt, err))
		return walker.Fail
	}

	if c.applyMeta(e) != nil {
		return walker.Fail
	}

	c.opts.Stats.AddSymlinksCreated(1)
	event.Emit(c.opts.Events, event.Event{Type: event.EntryCopied, Path: c.curRel})
	return walker.OK
}

func (c *treeCopier) VisitBlockDev(e *walker.Entry) walker.Action {
	return c.visitDevice(e, unix.S_IFBLK, "block device")
}

func (c *treeCopier) VisitCharDev(e *walker.Entry) walker.Action {
	return c.visitDevice(e, unix.S_IFCHR, "character device")
}

// visitDevice recreates a device node with the source's device numbers and
// owner-only permissions; the real mode arrives with applyMeta.
func (c *treeCopier) visitDevice(e *walker.Entry, ifmt uint32, kind string) walker.Action {
	if !c.included(e, false) {
		return walker.OK
	}
	if !c.removeExisting(e) {
		return walker.Fail
	}

	if err := unix.Mknod(c.curTgt, ifmt|0o700, int(e.Stat.Rdev)); err != nil {
		c.fail(e, fmt.Errorf("create %s %s: %w", kind, c.curTgt, err))
		return walker.Fail
	}

	if c.applyMeta(e) != nil {
		return walker.Fail
	}

	c.opts.Stats.AddSpecialsCreated(1)
	event.Emit(c.opts.Events, event.Event{Type: event.EntryCopied, Path: c.curRel})
	return walker.OK
}

func (c *treeCopier) VisitFIFO(e *walker.Entry) walker.Action {
	if !c.included(e, false) {
		return walker.OK
	}
	if !c.removeExisting(e) {
		return walker.Fail
	}

	if err := unix.Mkfifo(c.curTgt, 0o700); err != nil {
		c.fail(e, fmt.Errorf("create fifo %s: %w", c.curTgt, err))
		return walker.Fail
	}

	if c.applyMeta(e) != nil {
		return walker.Fail
	}

	c.opts.Stats.AddSpecialsCreated(1)
	event.Emit(c.opts.Events, event.Event{Type: event.EntryCopied, Path: c.curRel})
	return walker.OK
}

func (c *treeCopier) VisitSocket(e *walker.Entry) walker.Action {
	// Sockets cannot be copied; excluded from the target, not an error.
	slog.Debug("skipping socket", "path", e.Path)
	c.opts.Stats.AddEntriesSkipped(1)
	event.Emit(c.opts.Events, event.Event{Type: event.EntrySkipped, Path: c.curRel})
	return walker.Skip
}

// removeExisting unlinks any pre-existing entry at the current target path.
func (c *treeCopier) removeExisting(e *walker.Entry) bool {
	if err := unix.Unlink(c.curTgt); err != nil && !errors.Is(err, unix.ENOENT) {
		c.fail(e, fmt.Errorf("remove old path %s: %w", c.curTgt, err))
		return false
	}
	return true
}

// applyMeta applies ownership/mode and xattrs per the active flags.
func (c *treeCopier) applyMeta(e *walker.Entry) error {
	if c.flags&PreserveAttrs != 0 {
		if err := Attrs(e.Path, c.curTgt); err != nil {
			c.fail(e, fmt.Errorf("copy attributes to %s: %w", c.curTgt, err))
			return err
		}
	}
	if c.flags&PreserveXattrs != 0 {
		if err := Xattrs(e.Path, c.curTgt); err != nil {
			c.fail(e, fmt.Errorf("copy xattrs to %s: %w", c.curTgt, err))
			return err
		}
	}
	return nil
}

// fail records a per-entry failure: first error retained, all logged at the
// point of detection, counters and events updated.
func (c *treeCopier) fail(e *walker.Entry, err error) {
	c.setErr(err)
	slog.Warn("copy entry failed", "path", e.Path, "error", err)
	c.opts.Stats.AddEntriesFailed(1)
	event.Emit(c.opts.Events, event.Event{Type: event.EntryFailed, Path: c.curRel, Error: err})
}

// included applies the filter chain to the node under visit. Excluded
// entries are counted as skipped. The walk root itself is never filtered.
func (c *treeCopier) included(e *walker.Entry, isDir bool) bool {
	if c.opts.Filter == nil || c.opts.Filter.Empty() || c.curRel == "" {
		return true
	}
	if c.opts.Filter.Match(c.curRel, isDir, e.Stat.Size) {
		return true
	}
	slog.Debug("filtered out", "path", e.Path)
	c.opts.Stats.AddEntriesSkipped(1)
	event.Emit(c.opts.Events, event.Event{Type: event.EntrySkipped, Path: c.curRel})
	return false
}
