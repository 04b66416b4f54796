// Package app implements the histextract and histstore command lines.
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/vjranagit/histextract/internal/config"
	"github.com/vjranagit/histextract/internal/logging"
	"github.com/vjranagit/histextract/pkg/pipeline"
	"github.com/vjranagit/histextract/pkg/storage"
)

// Version is the release of both binaries
const Version = "0.3.0"

const extractUsage = `Usage: histextract [flags] <result> <workdir>

Extracts reference point histories from <result> and writes combined
per-channel CSV files to <workdir>/<subdir>. <result> is a result store
directory or a history export file (.jsonl or .jsonl.zst).

Flags:
`

// Extract runs histextract. It returns the process exit code: 0 on
// success or when the result has no reference points, 1 when the run
// fails and 2 on bad usage.
func Extract(argv []string, stdout, stderr io.Writer) int {
	cfg := config.DefaultConfig()

	fs := flag.NewFlagSet("histextract", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), extractUsage)
		fs.PrintDefaults()
	}
	fs.StringVar(&cfg.Extract.Instance, "instance", cfg.Extract.Instance, "part instance holding the reference points")
	fs.StringVar(&cfg.Extract.OutputSubdir, "subdir", cfg.Extract.OutputSubdir, "output directory name under <workdir>")
	fs.BoolVar(&cfg.Extract.KeepTemp, "keep-temp", cfg.Extract.KeepTemp, "keep the per-step CSV files")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *showVersion {
		fmt.Fprintf(stdout, "histextract version %s\n", Version)
		return 0
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(stderr, "histextract: expected <result> and <workdir>")
		fs.Usage()
		return 2
	}
	result, workdir := fs.Arg(0), fs.Arg(1)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "histextract: %v\n", err)
		return 2
	}

	log, err := logging.New(cfg.Log.Level, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "histextract: %v\n", err)
		return 2
	}

	if err := runExtract(cfg, result, workdir, log); err != nil {
		// the missing reference points were already reported by the run
		if errors.Is(err, pipeline.ErrNoReferencePoints) {
			return 0
		}
		fmt.Fprintf(stderr, "histextract: %v\n", err)
		return 1
	}
	return 0
}

func runExtract(cfg *config.Config, result, workdir string, log *logrus.Entry) error {
	opts := cfg.ToPipelineOptions(workdir)
	log.WithFields(logrus.Fields{
		"result":   result,
		"instance": opts.Instance,
		"output":   opts.OutputDir,
	}).Infof("Opening result: %s", result)

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	src, err := storage.OpenSource(result, cfg.ToStorageConfig(result))
	if err != nil {
		return err
	}

	report, err := pipeline.Run(src, opts, log)
	if err != nil {
		return err
	}

	if store, ok := src.(*storage.Store); ok {
		stats := store.CacheStats()
		log.WithFields(logrus.Fields{
			"hits":     stats.Hits,
			"misses":   stats.Misses,
			"hit_rate": fmt.Sprintf("%.2f", stats.HitRate()),
		}).Debug("Region cache")
	}

	log.WithFields(logrus.Fields{
		"steps":   report.Steps,
		"outputs": len(report.Outputs),
		"temp":    len(report.TempFiles),
		"removed": report.Removed,
	}).Info("Extraction complete")
	return nil
}

const storeUsage = `Usage:
  histstore import <export> <store-dir>   load a history export into a result store
  histstore export <store-dir> <export>   write a result store as a history export
  histstore info <store-dir>              summarise a result store

Export files ending in .zst are zstd compressed.
`

// Store runs histstore with the given context
func Store(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	if len(argv) == 0 {
		fmt.Fprint(stderr, storeUsage)
		return 2
	}

	cmd, args := argv[0], argv[1:]
	switch cmd {
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, storeUsage)
		return 0
	case "-version", "--version", "version":
		fmt.Fprintf(stdout, "histstore version %s\n", Version)
		return 0
	}

	want := 2
	if cmd == "info" {
		want = 1
	}
	if cmd != "import" && cmd != "export" && cmd != "info" {
		fmt.Fprintf(stderr, "histstore: unknown command %q\n", cmd)
		fmt.Fprint(stderr, storeUsage)
		return 2
	}
	if len(args) != want {
		fmt.Fprintf(stderr, "histstore %s: wrong number of arguments\n", cmd)
		fmt.Fprint(stderr, storeUsage)
		return 2
	}

	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "histstore: %v\n", err)
		return 2
	}
	log, err := logging.New(cfg.Log.Level, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "histstore: %v\n", err)
		return 2
	}
	log = log.WithField("command", cmd)

	switch cmd {
	case "import":
		err = importExport(ctx, cfg, args[0], args[1], log)
	case "export":
		err = exportStore(ctx, cfg, args[0], args[1], log)
	case "info":
		err = storeInfo(cfg, args[0], stdout)
	}
	if err != nil {
		fmt.Fprintf(stderr, "histstore %s: %v\n", cmd, err)
		return 1
	}
	return 0
}
