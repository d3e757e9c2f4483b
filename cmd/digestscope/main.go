package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/umputun/digestscope/pkg/config"
	"github.com/umputun/digestscope/pkg/content"
	"github.com/umputun/digestscope/pkg/dedup"
	"github.com/umputun/digestscope/pkg/llm"
	"github.com/umputun/digestscope/pkg/output"
	"github.com/umputun/digestscope/pkg/repository"
	"github.com/umputun/digestscope/pkg/scheduler"
	"github.com/umputun/digestscope/pkg/scoring"
	"github.com/umputun/digestscope/pkg/selection"
	"github.com/umputun/digestscope/pkg/source"
	"github.com/umputun/digestscope/server"
)

// Opts with all CLI options
type Opts struct {
	Config string `short:"f" long:"config" env:"CONFIG" default:"config.yml" description:"config file path"`
	Once   bool   `long:"once" description:"run a single digest cycle and exit"`
	DryRun bool   `long:"dry" description:"run the cycle without writing digests or recording runs"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	setupLog(opts.Debug, opts.NoColor, cfg.LLM.APIKey)
	lgr.Printf("[INFO] starting digestscope version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		lgr.Printf("[INFO] termination signal received")
		cancel()
	}()

	if err := run(ctx, cfg, opts); err != nil {
		lgr.Printf("[ERROR] %v", err)
		os.Exit(1)
	}

	lgr.Printf("[INFO] shutdown complete")
}

// run wires the pipeline and either executes one cycle or starts the
// scheduler with the HTTP server
func run(ctx context.Context, cfg *config.Config, opts Opts) error {
	repos, err := repository.NewRepositories(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := repos.Close(); err != nil {
			lgr.Printf("[WARN] failed to close database: %v", err)
		}
	}()

	processor := scheduler.NewProcessor(makeProcessorConfig(cfg, repos, opts.DryRun))

	if opts.Once {
		res, err := processor.Cycle(ctx)
		if err != nil {
			return fmt.Errorf("digest cycle: %w", err)
		}
		lgr.Printf("[INFO] cycle done: status=%s found=%d new=%d included=%d",
			res.Status, res.ItemsFound, res.ItemsNew, res.ItemsIncluded)
		return nil
	}

	sched := scheduler.NewScheduler(processor, cfg.Schedule.Interval)
	sched.Start(ctx)
	defer sched.Stop()

	srv := server.New(cfg, struct {
		*repository.ItemRepository
		*repository.RunRepository
	}{repos.Item, repos.Run}, sched, revision, opts.Debug)

	return srv.Run(ctx)
}

// makeProcessorConfig assembles the cycle dependencies from configuration
func makeProcessorConfig(cfg *config.Config, repos *repository.Repositories, dryRun bool) scheduler.ProcessorConfig {
	pc := scheduler.ProcessorConfig{
		Collectors: makeCollectors(cfg),
		Dedup:      dedup.NewClassifier(repos.Item, cfg.Dedup.TitleSimilarity),
		Scorer:     scoring.NewScorer(cfg.Scoring, repos.Item),
		Writer:     output.NewWriter(cfg.Output.Dir),
		Recorder:   repos.Run,
		History:    repos.Item,

		Constraints: selection.Constraints{
			TargetCount:      cfg.Research.TargetItems,
			MaxPerSource:     cfg.Select.MaxPerSource,
			CategoryMinimums: cfg.Select.CategoryMinimums,
		},
		MinItems:        cfg.Research.MinItems,
		TargetItems:     cfg.Research.TargetItems,
		LookbackDays:    cfg.Research.LookbackDays,
		SupplementLimit: cfg.Research.SupplementLimit,
		SourceTimeout:   cfg.Schedule.SourceTimeout,
		MaxWorkers:      cfg.Schedule.MaxWorkers,
		DryRun:          dryRun,
	}

	if cfg.Extraction.Enabled {
		pc.Extractor = content.NewHTTPExtractor(cfg.Extraction.Timeout, cfg.Extraction.UserAgent, cfg.Extraction.MinTextLength)
	}
	if cfg.LLM.Enabled {
		pc.Synthesizer = llm.NewSynthesizer(cfg.LLM)
	}
	return pc
}

// makeCollectors builds one collector per configured source
func makeCollectors(cfg *config.Config) []scheduler.Collector {
	var collectors []scheduler.Collector
	for _, feed := range cfg.Sources.Feeds {
		collectors = append(collectors, source.NewRSSCollector(feed, cfg.Schedule.SourceTimeout, "Digestscope/1.0"))
	}
	if cfg.Sources.HackerNews.Enabled {
		collectors = append(collectors, source.NewHNCollector(cfg.Sources.HackerNews, cfg.Schedule.SourceTimeout))
	}
	lgr.Printf("[INFO] configured %d collectors", len(collectors))
	return collectors
}

// loadConfig reads the config file, falling back to built-in defaults when
// the default file is absent
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "config file %s not found, using defaults\n", path)
		return config.Default(), nil
	}
	return config.Load(path)
}

func setupLog(dbg, noColor bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	if !noColor {
		colorizer := lgr.Mapper{
			ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
			WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
			InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
			DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
			CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
			TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
		}
		logOpts = append(logOpts, lgr.Map(colorizer))
	}

	for _, s := range secs {
		if s != "" {
			logOpts = append(logOpts, lgr.Secret(s))
		}
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
