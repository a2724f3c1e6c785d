package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/mpetersen/treecp/internal/config"
	"github.com/mpetersen/treecp/internal/event"
	"github.com/mpetersen/treecp/internal/filter"
	"github.com/mpetersen/treecp/internal/fscopy"
	"github.com/mpetersen/treecp/internal/stats"
	"github.com/mpetersen/treecp/internal/verify"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// filterFlag is a custom pflag.Value that preserves CLI ordering of
// --exclude and --include rules by appending to a shared filter.Chain.
type filterFlag struct {
	chain   *filter.Chain
	include bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "pattern" }

func (f *filterFlag) Set(val string) error {
	if f.include {
		return f.chain.AddInclude(val)
	}
	return f.chain.AddExclude(val)
}

func run() int {
	var (
		archive        bool
		preserveAttrs  bool
		preserveXattrs bool
		followSymlinks bool
		contentsOnly   bool
		verifyFlag     bool
		verifyProcs    int
		verbose        bool
		quiet          bool
		showVersion    bool
		minSizeStr     string
		maxSizeStr     string
		bwLimitStr     string
		logFile        string
	)

	chain := filter.NewChain()

	rootCmd := &cobra.Command{
		Use:   "treecp [flags] <source> <target>",
		Short: "Copy files and directory trees, preserving POSIX file types and attributes",
		Args: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				return nil
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "treecp %s\n", version)
				return nil
			}

			src, dst := args[0], args[1]

			// Load optional config file.
			cfg, err := config.Load()
			if err != nil {
				slog.Warn("failed to load config", "error", err)
			}

			// Apply config defaults for flags not explicitly set.
			if !cmd.Flags().Changed("archive") && cfg.Defaults.Archive != nil {
				archive = *cfg.Defaults.Archive
			}
			if !cmd.Flags().Changed("verify") && cfg.Defaults.Verify != nil {
				verifyFlag = *cfg.Defaults.Verify
			}
			if !cmd.Flags().Changed("verify-procs") && cfg.Defaults.VerifyProcs != nil {
				verifyProcs = *cfg.Defaults.VerifyProcs
			}
			if !cmd.Flags().Changed("bwlimit") && cfg.Defaults.BWLimit != nil {
				bwLimitStr = *cfg.Defaults.BWLimit
			}

			// Configure logging.
			logLevel := slog.LevelWarn
			if verbose {
				logLevel = slog.LevelDebug
			} else if !quiet {
				logLevel = slog.LevelInfo
			}
			textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: logLevel,
			})
			var logHandler slog.Handler = textHandler
			if logFile != "" {
				lf, lfErr := os.Create(logFile)
				if lfErr != nil {
					return fmt.Errorf("open log file: %w", lfErr)
				}
				defer lf.Close()
				jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})
				logHandler = newMultiHandler(textHandler, jsonHandler)
			}
			slog.SetDefault(slog.New(logHandler))

			// Parse bandwidth limit.
			var limiter *rate.Limiter
			if bwLimitStr != "" {
				n, err := filter.ParseSize(bwLimitStr)
				if err != nil {
					return fmt.Errorf("invalid --bwlimit: %w", err)
				}
				if n <= 0 {
					return fmt.Errorf("invalid --bwlimit %q: must be positive", bwLimitStr)
				}
				limiter = fscopy.NewBWLimiter(n)
			}

			// Parse size filters.
			if minSizeStr != "" {
				n, err := filter.ParseSize(minSizeStr)
				if err != nil {
					return fmt.Errorf("invalid --min-size: %w", err)
				}
				chain.SetMinSize(n)
			}
			if maxSizeStr != "" {
				n, err := filter.ParseSize(maxSizeStr)
				if err != nil {
					return fmt.Errorf("invalid --max-size: %w", err)
				}
				chain.SetMaxSize(n)
			}

			var copyFlags fscopy.Flags
			if archive || preserveAttrs {
				copyFlags |= fscopy.PreserveAttrs
			}
			if archive || preserveXattrs {
				copyFlags |= fscopy.PreserveXattrs
			}
			if followSymlinks {
				copyFlags |= fscopy.FollowSymlinks
			}
			if contentsOnly {
				copyFlags |= fscopy.ExcludeTopLevel
			}

			ctx, stop := signal.NotifyContext(context.Background(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srcInfo, err := os.Lstat(src)
			if err != nil {
				return fmt.Errorf("source: %w", err)
			}

			if !srcInfo.IsDir() {
				// Single entry: an existing directory target means
				// "copy into it", like cp.
				if dstInfo, err := os.Stat(dst); err == nil && dstInfo.IsDir() {
					dst = filepath.Join(dst, filepath.Base(src))
				}
				if err := fscopy.File(src, dst, copyFlags); err != nil {
					return err
				}
				slog.Info("copied", "source", src, "target", dst)
				return nil
			}

			collector := stats.NewCollector()
			events := make(chan event.Event, 256)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for e := range events {
					slog.Debug("progress", "event", e.Type.String(),
						"path", e.Path, "size", e.Size, "error", e.Error)
				}
			}()

			copyErr := fscopy.Tree(ctx, src, dst, copyFlags, fscopy.TreeOptions{
				Filter:  chain,
				Stats:   collector,
				Events:  events,
				BWLimit: limiter,
			})
			close(events)
			<-done

			if !quiet {
				fmt.Fprintln(os.Stderr, collector.Snapshot().Summary())
			}
			if copyErr != nil {
				return copyErr
			}

			if verifyFlag {
				return runVerify(ctx, src, dst, contentsOnly, verifyProcs, chain)
			}
			return nil
		},
	}

	flags := rootCmd.Flags()
	flags.BoolVarP(&archive, "archive", "a", false,
		"preserve ownership, permissions and extended attributes")
	flags.BoolVar(&preserveAttrs, "preserve-attrs", false,
		"preserve ownership and permission bits")
	flags.BoolVar(&preserveXattrs, "preserve-xattrs", false,
		"preserve extended attributes")
	flags.BoolVarP(&followSymlinks, "follow-symlinks", "L", false,
		"dereference symlink sources (single-entry copies only)")
	flags.BoolVar(&contentsOnly, "contents", false,
		"copy the source directory's contents directly into the target")
	flags.BoolVar(&verifyFlag, "verify", false,
		"verify copied file contents with BLAKE3 checksums")
	flags.IntVar(&verifyProcs, "verify-procs", 0,
		"number of parallel verify workers (0 = auto)")
	flags.Var(&filterFlag{chain: chain}, "exclude",
		"exclude entries matching pattern (repeatable, ordered)")
	flags.Var(&filterFlag{chain: chain, include: true}, "include",
		"include entries matching pattern (repeatable, ordered)")
	flags.StringVar(&minSizeStr, "min-size", "",
		"skip files smaller than SIZE (e.g. 1K, 10M)")
	flags.StringVar(&maxSizeStr, "max-size", "",
		"skip files larger than SIZE (e.g. 1G)")
	flags.StringVar(&bwLimitStr, "bwlimit", "",
		"cap copy throughput (bytes/sec, e.g. 10M)")
	flags.StringVar(&logFile, "log-file", "",
		"also write JSON logs to this file")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	flags.BoolVarP(&quiet, "quiet", "q", false, "errors only")
	flags.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("treecp failed", "error", err)
		return 1
	}
	return 0
}

// runVerify compares the copied tree against the source and reports
// mismatches.
func runVerify(ctx context.Context, src, dst string, contentsOnly bool, procs int, chain *filter.Chain) error {
	// Unless the copy excluded the top level, the tree landed nested
	// under the source's base name.
	dstRoot := dst
	if !contentsOnly {
		dstRoot = filepath.Join(dst, filepath.Base(filepath.Clean(src)))
	}

	if procs <= 0 {
		procs = min(runtime.NumCPU(), 8)
	}

	result := verify.Run(ctx, verify.Config{
		SrcRoot: filepath.Clean(src),
		DstRoot: dstRoot,
		Workers: procs,
		Filter:  chain,
	})

	slog.Info("verification complete",
		"verified", result.Verified, "failed", result.Failed)

	if result.Failed > 0 {
		for _, m := range result.Errors {
			slog.Error("checksum mismatch", "path", m.Path,
				"source", m.SrcHash, "target", m.DstHash)
		}
		return fmt.Errorf("verification failed for %d file(s)", result.Failed)
	}
	return nil
}
