package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
)

// RebuildMarker records in-flight rebuild runs in the store so markers
// orphaned by a crashed run stay visible to the cleanup sweep.
type RebuildMarker interface {
	MarkRebuild(ctx context.Context, runID string) error
	UnmarkRebuild(ctx context.Context, runID string) error
}

// Rebuilder streams the entity source page by page and re-indexes every
// property. Page scans are rate limited so a full rebuild cannot starve the
// live site; documents within a page are written concurrently.
type Rebuilder struct {
	repo     domain.PropertyRepository
	index    domain.PropertyIndex
	marker   RebuildMarker
	limiter  *rate.Limiter
	pageSize int
	workers  int
}

func NewRebuilder(repo domain.PropertyRepository, index domain.PropertyIndex, marker RebuildMarker, pageSize, scanRPS, workers int) *Rebuilder {
	if pageSize <= 0 {
		pageSize = 100
	}
	if scanRPS <= 0 {
		scanRPS = 10
	}
	if workers <= 0 {
		workers = 5
	}
	return &Rebuilder{
		repo:     repo,
		index:    index,
		marker:   marker,
		limiter:  rate.NewLimiter(rate.Limit(scanRPS), 1),
		pageSize: pageSize,
		workers:  workers,
	}
}

// Run walks the full entity source. Per-document failures are counted and
// logged but do not abort the run; a failed page scan does.
func (r *Rebuilder) Run(ctx context.Context) (domain.RebuildReport, error) {
	runID := uuid.NewString()
	started := time.Now()

	if r.marker != nil {
		// best effort: a rebuild without its marker still works, the marker
		// only makes crashed runs visible to cleanup
		if err := r.marker.MarkRebuild(ctx, runID); err != nil {
			log.Warn().Err(err).Str("run_id", runID).Msg("rebuild marker write failed")
		}
		defer func() {
			if err := r.marker.UnmarkRebuild(context.Background(), runID); err != nil {
				log.Warn().Err(err).Str("run_id", runID).Msg("rebuild marker cleanup failed")
			}
		}()
	}
	log.Info().Str("run_id", runID).Int("page_size", r.pageSize).Int("workers", r.workers).Msg("index rebuild started")

	var processed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	var scanErr error
	total := 0
	for page := 1; ; page++ {
		if err := r.limiter.Wait(gctx); err != nil {
			scanErr = err
			break
		}
		aggs, t, err := r.repo.GetPaged(gctx, page, r.pageSize)
		if err != nil {
			scanErr = err
			break
		}
		total = t
		if len(aggs) == 0 {
			break
		}
		for _, agg := range aggs {
			agg := agg // per-iteration copy: required while go.mod is below 1.22
			g.Go(func() error {
				doc, units, err := BuildPropertyDoc(agg, time.Now().UTC())
				if err != nil {
					failed.Add(1)
					log.Warn().Err(err).Str("property_id", agg.ID).Msg("rebuild: document build failed")
					return nil
				}
				if err := r.index.IndexProperty(gctx, doc, units); err != nil {
					failed.Add(1)
					log.Warn().Err(err).Str("property_id", agg.ID).Msg("rebuild: index write failed")
					return nil
				}
				processed.Add(1)
				return nil
			})
		}
		if len(aggs) < r.pageSize {
			break
		}
	}
	_ = g.Wait()

	report := domain.RebuildReport{
		RunID:     runID,
		Total:     total,
		Processed: int(processed.Load()),
		Failed:    int(failed.Load()),
		Duration:  time.Since(started),
	}
	if attempted := report.Processed + report.Failed; attempted > 0 {
		report.SuccessRate = float64(report.Processed) / float64(attempted) * 100
	}
	log.Info().
		Str("run_id", runID).
		Int("total", report.Total).
		Int("processed", report.Processed).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("index rebuild finished")
	return report, scanErr
}
