// Package scheduler runs digest cycles: collect from all sources, drop
// duplicates, score, select a diverse shortlist, synthesize prose and record
// the run. A cycle degrades instead of failing wherever it can, a thin
// digest beats no digest.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"github.com/umputun/digestscope/pkg/domain"
	"github.com/umputun/digestscope/pkg/repository"
	"github.com/umputun/digestscope/pkg/selection"
)

// Collector pulls items from one upstream source
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]domain.Item, error)
}

// DedupFilter drops items already known to the store
type DedupFilter interface {
	FilterNew(ctx context.Context, items []domain.Item) ([]domain.Item, error)
}

// Scorer ranks a pool of items
type Scorer interface {
	ScoreAll(ctx context.Context, items []domain.Item) []domain.ScoredItem
}

// Extractor fetches full text for items that arrive without content
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Synthesizer turns the shortlist into digest prose
type Synthesizer interface {
	Synthesize(ctx context.Context, items []domain.ScoredItem) (string, error)
}

// DigestWriter persists a rendered digest and returns its path
type DigestWriter interface {
	Write(prose string, items []domain.ScoredItem) (string, error)
}

// RunRecorder persists the cycle outcome atomically
type RunRecorder interface {
	RecordRun(ctx context.Context, req repository.RecordRunRequest) (int64, error)
}

// HistoryProvider supplies recently stored items for supplementing a thin pool
type HistoryProvider interface {
	GetRecentItems(ctx context.Context, lookbackDays, limit int) ([]domain.Item, error)
}

// Processor executes one digest cycle end to end
type Processor struct {
	collectors  []Collector
	dedup       DedupFilter
	scorer      Scorer
	extractor   Extractor   // optional
	synthesizer Synthesizer // optional
	writer      DigestWriter
	recorder    RunRecorder
	history     HistoryProvider

	constraints     selection.Constraints
	minItems        int
	targetItems     int
	lookbackDays    int
	supplementLimit int
	sourceTimeout   time.Duration
	maxWorkers      int
	dryRun          bool
}

// ProcessorConfig holds all processor dependencies and policy
type ProcessorConfig struct {
	Collectors  []Collector
	Dedup       DedupFilter
	Scorer      Scorer
	Extractor   Extractor
	Synthesizer Synthesizer
	Writer      DigestWriter
	Recorder    RunRecorder
	History     HistoryProvider

	Constraints     selection.Constraints
	MinItems        int
	TargetItems     int
	LookbackDays    int
	SupplementLimit int
	SourceTimeout   time.Duration
	MaxWorkers      int
	DryRun          bool
}

// NewProcessor creates a cycle processor
func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.SourceTimeout == 0 {
		cfg.SourceTimeout = 2 * time.Minute
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 5
	}
	return &Processor{
		collectors:      cfg.Collectors,
		dedup:           cfg.Dedup,
		scorer:          cfg.Scorer,
		extractor:       cfg.Extractor,
		synthesizer:     cfg.Synthesizer,
		writer:          cfg.Writer,
		recorder:        cfg.Recorder,
		history:         cfg.History,
		constraints:     cfg.Constraints,
		minItems:        cfg.MinItems,
		targetItems:     cfg.TargetItems,
		lookbackDays:    cfg.LookbackDays,
		supplementLimit: cfg.SupplementLimit,
		sourceTimeout:   cfg.SourceTimeout,
		maxWorkers:      cfg.MaxWorkers,
		dryRun:          cfg.DryRun,
	}
}

// cycleState accumulates what a cycle has produced so far, so any exit
// point can record a consistent run row
type cycleState struct {
	started   time.Time
	collected []domain.Item
	newItems  []domain.Item
	included  []domain.ScoredItem
	problems  []string
	output    string
}

// Cycle runs one full digest cycle. It returns the recorded run summary,
// the error is non-nil only when the cycle failed outright.
func (p *Processor) Cycle(ctx context.Context) (domain.Run, error) {
	st := &cycleState{started: time.Now()}

	var sourceErrs []string
	st.collected, sourceErrs = p.collect(ctx)
	st.problems = append(st.problems, sourceErrs...)

	if len(st.collected) == 0 && len(sourceErrs) == len(p.collectors) && len(p.collectors) > 0 {
		return p.record(ctx, st, domain.RunFailed), fmt.Errorf("all %d sources failed", len(p.collectors))
	}
	lgr.Printf("[INFO] collected %d items from %d sources, %d failed",
		len(st.collected), len(p.collectors), len(sourceErrs))

	newItems, err := p.dedup.FilterNew(ctx, st.collected)
	if err != nil {
		st.problems = append(st.problems, "dedup: "+err.Error())
		return p.record(ctx, st, domain.RunFailed), fmt.Errorf("filter duplicates: %w", err)
	}
	st.newItems = newItems
	lgr.Printf("[INFO] %d new items after dedup (%d duplicates)", len(newItems), len(st.collected)-len(newItems))

	p.extractMissing(ctx, st.newItems)

	pool := st.newItems
	if len(pool) < p.targetItems && p.history != nil {
		supplemented := p.supplement(ctx, pool)
		if len(supplemented) > 0 {
			lgr.Printf("[INFO] supplementing thin pool with %d recent items", len(supplemented))
			pool = append(pool, supplemented...)
		}
	}

	if len(pool) < p.minItems {
		st.problems = append(st.problems, fmt.Sprintf("pool too thin: %d items, need %d", len(pool), p.minItems))
		lgr.Printf("[WARN] skipping digest, only %d items in pool (minimum %d)", len(pool), p.minItems)
		return p.record(ctx, st, domain.RunPartial), nil
	}

	scored := p.scorer.ScoreAll(ctx, pool)
	result := selection.Select(scored, p.constraints)
	st.included = result.Items
	st.problems = append(st.problems, result.Violations...)
	lgr.Printf("[INFO] selected %d of %d scored items", len(result.Items), len(scored))

	prose := ""
	if p.synthesizer != nil {
		if prose, err = p.synthesizer.Synthesize(ctx, result.Items); err != nil {
			// degraded digest, the item list still goes out
			lgr.Printf("[WARN] synthesis failed, writing plain digest: %v", err)
			st.problems = append(st.problems, "synthesis: "+err.Error())
			prose = ""
		}
	}

	if !p.dryRun {
		if st.output, err = p.writer.Write(prose, result.Items); err != nil {
			st.problems = append(st.problems, "write digest: "+err.Error())
			st.included = nil // nothing went out
			return p.record(ctx, st, domain.RunFailed), fmt.Errorf("write digest: %w", err)
		}
		lgr.Printf("[INFO] digest written to %s", st.output)
	}

	status := domain.RunSuccess
	if len(st.problems) > 0 {
		status = domain.RunPartial
	}
	return p.record(ctx, st, status), nil
}

// collect pulls all sources concurrently, each under its own timeout. A
// failed source is reported, never fatal.
func (p *Processor) collect(ctx context.Context) (items []domain.Item, errs []string) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)

	for _, collector := range p.collectors {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, p.sourceTimeout)
			defer cancel()

			collected, err := collector.Collect(cctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lgr.Printf("[ERROR] source %s failed: %v", collector.Name(), err)
				errs = append(errs, fmt.Sprintf("source %s: %v", collector.Name(), err))
				return nil
			}
			lgr.Printf("[DEBUG] source %s returned %d items", collector.Name(), len(collected))
			items = append(items, collected...)
			return nil
		})
	}

	_ = g.Wait() // workers never return errors, they report them
	return items, errs
}

// extractMissing fetches full text for new items that arrived without
// content. Extraction failures leave the snippet in place.
func (p *Processor) extractMissing(ctx context.Context, items []domain.Item) {
	if p.extractor == nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)

	for i := range items {
		if items[i].Content != "" {
			continue
		}
		g.Go(func() error {
			text, err := p.extractor.Extract(gctx, items[i].URL)
			if err != nil {
				lgr.Printf("[DEBUG] extraction failed for %s: %v", items[i].URL, err)
				return nil
			}
			items[i].Content = text
			items[i].Fingerprint = domain.ContentFingerprint(text)
			return nil
		})
	}
	_ = g.Wait()
}

// supplement pulls recent history to pad a thin pool, skipping anything
// already in it
func (p *Processor) supplement(ctx context.Context, pool []domain.Item) []domain.Item {
	limit := p.supplementLimit
	if limit <= 0 {
		limit = 20
	}
	recent, err := p.history.GetRecentItems(ctx, p.lookbackDays, limit)
	if err != nil {
		lgr.Printf("[WARN] history supplement failed: %v", err)
		return nil
	}

	inPool := make(map[string]bool, len(pool))
	for _, item := range pool {
		inPool[item.URL] = true
	}

	var supplemented []domain.Item
	for _, item := range recent {
		if inPool[item.URL] {
			continue
		}
		supplemented = append(supplemented, item)
		if len(pool)+len(supplemented) >= p.targetItems+limit {
			break
		}
	}
	return supplemented
}

// record persists the run outcome. Recording failures are logged, the cycle
// result stands either way. Dry runs are not recorded.
func (p *Processor) record(ctx context.Context, st *cycleState, status domain.RunStatus) domain.Run {
	run := domain.Run{
		Timestamp:      st.started,
		Status:         status,
		ItemsFound:     len(st.collected),
		ItemsNew:       len(st.newItems),
		ItemsIncluded:  len(st.included),
		OutputPath:     st.output,
		RuntimeSeconds: time.Since(st.started).Seconds(),
		ErrorLog:       strings.Join(st.problems, "; "),
	}

	if p.dryRun {
		lgr.Printf("[INFO] dry run, not recording: status=%s found=%d new=%d included=%d",
			run.Status, run.ItemsFound, run.ItemsNew, run.ItemsIncluded)
		return run
	}

	included := make([]domain.Item, 0, len(st.included))
	for _, it := range st.included {
		included = append(included, it.Item)
	}

	id, err := p.recorder.RecordRun(ctx, repository.RecordRunRequest{
		Status:         run.Status,
		ItemsFound:     st.collected,
		ItemsNew:       st.newItems,
		ItemsIncluded:  included,
		OutputPath:     run.OutputPath,
		RuntimeSeconds: run.RuntimeSeconds,
		ErrorLog:       run.ErrorLog,
	})
	if err != nil {
		lgr.Printf("[ERROR] failed to record run: %v", err)
		return run
	}
	run.ID = id
	return run
}
