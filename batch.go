package newsreel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pevans/newsreel/harvest"
	"github.com/pevans/newsreel/scrape"
	"github.com/pevans/newsreel/store"
)

// Orchestrator runs whole batches: resolve each requested source,
// harvest it, then summarize and store every finished article. It
// never fails a batch for partial trouble; everything that goes wrong
// lands in the returned result's error list.
type Orchestrator struct {
	Registry   *scrape.Registry
	Harvester  *harvest.Harvester
	Summarizer Summarizer
	Storage    Storage
	Log        *zap.Logger
}

// NewOrchestrator wires collaborators into an Orchestrator. A nil
// logger disables logging; a nil summarizer skips enrichment.
func NewOrchestrator(reg *scrape.Registry, h *harvest.Harvester, sum Summarizer, st Storage, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		Registry:   reg,
		Harvester:  h,
		Summarizer: sum,
		Storage:    st,
		Log:        log,
	}
}

func (o *Orchestrator) log() *zap.Logger {
	if o.Log != nil {
		return o.Log
	}
	return zap.NewNop()
}

// sourceOutcome collects everything one source contributed. Outcomes
// live in a per-source slot while tasks run and are merged in request
// order only after every task has settled, so no counter is read or
// written concurrently.
type sourceOutcome struct {
	harvested int
	stored    int
	errs      []BatchError
}

type articleOutcome struct {
	stored bool
	errs   []BatchError
}

// RunBatch harvests the named sources and returns a complete result
// summary. Names resolve through the registry, with bare http(s) URLs
// falling back to the generic config; anything else contributes an
// error entry and no articles. perSourceLimit caps articles per source
// (non-positive means no cap). concurrency bounds both how many
// sources harvest at once and how many articles are summarized and
// stored at once; the two pools are independent, so an article task
// never waits on the source slot its own source holds.
func (o *Orchestrator) RunBatch(ctx context.Context, sources []string, perSourceLimit, concurrency int) BatchResult {
	start := time.Now()

	result := BatchResult{SourcesAttempted: len(sources)}
	if len(sources) == 0 {
		result.SuccessRatio = 1
		result.Success = true
		result.Elapsed = time.Since(start)
		return result
	}

	if concurrency < 1 {
		concurrency = 1
	}

	// One batch-wide pool for article work keeps a prolific source
	// from starving the rest.
	articleSlots := make(chan struct{}, concurrency)

	outcomes := make([]sourceOutcome, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, name := range sources {
		g.Go(func() error {
			outcomes[i] = o.runSource(gctx, name, perSourceLimit, articleSlots)
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range outcomes {
		result.ArticlesHarvested += out.harvested
		result.ArticlesStored += out.stored
		result.Errors = append(result.Errors, out.errs...)
	}

	result.Elapsed = time.Since(start)
	if result.ArticlesHarvested > 0 {
		result.SuccessRatio = float64(result.ArticlesStored) / float64(result.ArticlesHarvested)
	}
	result.Success = len(result.Errors) == 0

	o.log().Info("batch finished",
		zap.Int("sources", result.SourcesAttempted),
		zap.Int("harvested", result.ArticlesHarvested),
		zap.Int("stored", result.ArticlesStored),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("elapsed", result.Elapsed))
	return result
}

// runSource harvests one source and pushes its articles through
// enrichment and storage.
func (o *Orchestrator) runSource(ctx context.Context, name string, limit int, slots chan struct{}) sourceOutcome {
	var out sourceOutcome
	log := o.log().With(zap.String("source", name))

	cfg, err := o.Registry.Resolve(name)
	if err != nil {
		log.Warn("skipping unresolvable source", zap.Error(err))
		out.errs = append(out.errs, BatchError{Source: name, Message: err.Error()})
		return out
	}

	articles, herrs := o.Harvester.Harvest(ctx, cfg, limit)
	out.harvested = len(articles)
	for _, herr := range herrs {
		out.errs = append(out.errs, BatchError{
			Source:  herr.Source,
			URL:     herr.URL,
			Message: herr.Err.Error(),
		})
	}

	perArticle := make([]articleOutcome, len(articles))
	var wg sync.WaitGroup
	for i := range articles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			perArticle[i] = o.processArticle(ctx, cfg.Name, articles[i], slots)
		}()
	}
	wg.Wait()

	for _, p := range perArticle {
		if p.stored {
			out.stored++
		}
		out.errs = append(out.errs, p.errs...)
	}
	return out
}

// processArticle summarizes and stores one article under the shared
// article pool. A summarize failure is recorded but the article is
// still stored with whatever it has.
func (o *Orchestrator) processArticle(ctx context.Context, source string, art scrape.Article, slots chan struct{}) articleOutcome {
	var out articleOutcome

	select {
	case slots <- struct{}{}:
		defer func() { <-slots }()
	case <-ctx.Done():
		out.errs = append(out.errs, BatchError{Source: source, URL: art.URL, Message: ctx.Err().Error()})
		return out
	}

	log := o.log().With(zap.String("source", source), zap.String("url", art.URL))

	if o.Summarizer != nil {
		script, err := o.Summarizer.Summarize(ctx, art.Content)
		if err != nil {
			log.Warn("summarize failed", zap.Error(err))
			out.errs = append(out.errs, BatchError{
				Source:  source,
				URL:     art.URL,
				Message: fmt.Sprintf("failed to summarize: %v", err),
			})
		} else {
			art.Script = script
		}
	}

	if o.Storage == nil {
		out.errs = append(out.errs, BatchError{Source: source, URL: art.URL, Message: "no storage configured"})
		return out
	}
	if err := o.Storage.Put(store.EncodeID(art.URL), art); err != nil {
		log.Warn("store failed", zap.Error(err))
		out.errs = append(out.errs, BatchError{
			Source:  source,
			URL:     art.URL,
			Message: fmt.Sprintf("failed to store: %v", err),
		})
		return out
	}
	out.stored = true
	return out
}
