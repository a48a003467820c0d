package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/resilience"
)

// NightlyQuoter prices a unit's stay window. The index store implements it;
// kept as a narrow interface so the facade does not depend on the store type.
type NightlyQuoter interface {
	EffectiveNightly(ctx context.Context, unitID string, checkIn, checkOut time.Time) (float64, string, error)
}

// Service is the platform-facing facade: event handlers that keep the index
// in sync with the entity source, the cached search entry point, and the
// operational surface (statistics, rebuild, maintenance).
//
// The store connection is established lazily on first use and the failure is
// not sticky: a store that comes up late is picked up by the next call.
type Service struct {
	repo   domain.PropertyRepository
	index  domain.PropertyIndex
	search domain.PropertySearcher
	maint  domain.IndexMaintainer
	quoter NightlyQuoter
	cache  domain.Cache
	exec   *resilience.Executor
	health *resilience.HealthMonitor

	rebuilder *Rebuilder

	searchTTL  time.Duration
	resetStats bool
	disabled   bool

	init   singleflight.Group
	flight singleflight.Group
	ready  atomic.Bool
}

// ServiceOptions wires the facade. Repo, Index and Searcher are required;
// everything else degrades gracefully when absent.
type ServiceOptions struct {
	Repo     domain.PropertyRepository
	Index    domain.PropertyIndex
	Searcher domain.PropertySearcher
	Maint    domain.IndexMaintainer
	Quoter   NightlyQuoter
	Cache    domain.Cache
	Exec     *resilience.Executor
	Health   *resilience.HealthMonitor
	Rebuild  *Rebuilder

	SearchTTL         time.Duration
	ResetStatsOnStart bool
	Disabled          bool
}

func NewService(opts ServiceOptions) *Service {
	if opts.SearchTTL <= 0 {
		opts.SearchTTL = 5 * time.Minute
	}
	return &Service{
		repo:       opts.Repo,
		index:      opts.Index,
		search:     opts.Searcher,
		maint:      opts.Maint,
		quoter:     opts.Quoter,
		cache:      opts.Cache,
		exec:       opts.Exec,
		health:     opts.Health,
		rebuilder:  opts.Rebuild,
		searchTTL:  opts.SearchTTL,
		resetStats: opts.ResetStatsOnStart,
		disabled:   opts.Disabled,
	}
}

// ensureReady performs the one-time store handshake: reachability probe,
// script registration, bootstrap markers, health monitoring. Concurrent
// callers share one attempt; a failed attempt is retried by the next caller.
func (s *Service) ensureReady(ctx context.Context) error {
	if s.disabled {
		return domain.ErrStoreDisabled
	}
	if s.ready.Load() {
		return nil
	}
	_, err, _ := s.init.Do("init", func() (any, error) {
		if s.ready.Load() {
			return nil, nil
		}
		if err := s.index.Ping(ctx); err != nil {
			return nil, fmt.Errorf("index store unreachable: %w", err)
		}
		if s.maint != nil {
			// Non-fatal: every scripted path has a client-side fallback.
			if err := s.maint.RegisterScripts(ctx); err != nil {
				log.Warn().Err(err).Msg("script registration failed, server-side procedures unavailable")
			}
		}
		if err := s.index.Bootstrap(ctx); err != nil {
			return nil, err
		}
		if s.resetStats && s.exec != nil {
			s.exec.Stats().Reset()
		}
		if s.health != nil {
			// The monitor outlives the triggering request.
			s.health.Start(context.Background())
		}
		s.ready.Store(true)
		log.Info().Msg("index service ready")
		return nil, nil
	})
	return err
}

// Close stops background monitoring. Safe to call before first use.
func (s *Service) Close() {
	if s.health != nil {
		s.health.Stop()
	}
}

/********** ingestion event handlers **********/

func (s *Service) OnPropertyCreated(ctx context.Context, propertyID string) error {
	return s.reindexProperty(ctx, propertyID, true)
}

func (s *Service) OnPropertyUpdated(ctx context.Context, propertyID string) error {
	return s.reindexProperty(ctx, propertyID, false)
}

// reindexProperty re-reads the aggregate and writes it through. A missing
// aggregate means the event raced a delete: the index is brought back in
// line with the source instead of erroring.
func (s *Service) reindexProperty(ctx context.Context, propertyID string, withUnits bool) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	agg, err := s.repo.GetByID(ctx, propertyID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn().Str("property_id", propertyID).Msg("event for unknown property, removing from index")
		s.dropDocCache(ctx, propertyID)
		return s.index.RemoveProperty(ctx, propertyID)
	}
	if err != nil {
		return err
	}
	doc, units, err := BuildPropertyDoc(agg, time.Now().UTC())
	if err != nil {
		return err
	}
	s.dropDocCache(ctx, propertyID)
	if withUnits {
		return s.index.IndexProperty(ctx, doc, units)
	}
	return s.index.UpdateProperty(ctx, doc)
}

func (s *Service) OnPropertyDeleted(ctx context.Context, propertyID string) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	s.dropDocCache(ctx, propertyID)
	return s.index.RemoveProperty(ctx, propertyID)
}

func (s *Service) OnUnitCreated(ctx context.Context, unitID, propertyID string) error {
	return s.reindexUnit(ctx, unitID, propertyID)
}

func (s *Service) OnUnitUpdated(ctx context.Context, unitID, propertyID string) error {
	return s.reindexUnit(ctx, unitID, propertyID)
}

// reindexUnit writes one unit document and refreshes the parent's derived
// price and capacity figures in the same pass.
func (s *Service) reindexUnit(ctx context.Context, unitID, propertyID string) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	agg, err := s.repo.GetByID(ctx, propertyID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn().Str("property_id", propertyID).Msg("unit event for unknown property, removing from index")
		s.dropDocCache(ctx, propertyID)
		return s.index.RemoveProperty(ctx, propertyID)
	}
	if err != nil {
		return err
	}
	var rec *domain.UnitRecord
	for i := range agg.Units {
		if agg.Units[i].ID == unitID {
			rec = &agg.Units[i]
			break
		}
	}
	if rec == nil {
		// unit vanished between the event and the read
		if err := s.index.RemoveUnit(ctx, unitID, propertyID); err != nil {
			return err
		}
	} else {
		unit, err := BuildUnitDoc(propertyID, *rec)
		if err != nil {
			return err
		}
		if err := s.index.IndexUnit(ctx, unit); err != nil {
			return err
		}
	}
	return s.refreshParent(ctx, agg)
}

func (s *Service) OnUnitDeleted(ctx context.Context, unitID, propertyID string) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	if err := s.index.RemoveUnit(ctx, unitID, propertyID); err != nil {
		return err
	}
	agg, err := s.repo.GetByID(ctx, propertyID)
	if errors.Is(err, domain.ErrNotFound) {
		s.dropDocCache(ctx, propertyID)
		return s.index.RemoveProperty(ctx, propertyID)
	}
	if err != nil {
		return err
	}
	return s.refreshParent(ctx, agg)
}

func (s *Service) refreshParent(ctx context.Context, agg domain.PropertyAggregate) error {
	doc, _, err := BuildPropertyDoc(agg, time.Now().UTC())
	if err != nil {
		return err
	}
	s.dropDocCache(ctx, agg.ID)
	return s.index.UpdateProperty(ctx, doc)
}

func (s *Service) OnAvailabilityChanged(ctx context.Context, unitID, propertyID string, ranges []domain.AvailabilityRange) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	if err := s.index.ReplaceAvailability(ctx, unitID, ranges); err != nil {
		return fmt.Errorf("availability for unit %s of property %s: %w", unitID, propertyID, err)
	}
	return nil
}

func (s *Service) OnPricingRuleChanged(ctx context.Context, unitID, propertyID string, rules []domain.PricingRule) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	if err := s.index.ReplacePricingRules(ctx, unitID, rules); err != nil {
		return fmt.Errorf("pricing for unit %s of property %s: %w", unitID, propertyID, err)
	}
	return nil
}

// OnDynamicFieldChanged applies one custom-attribute mutation. isAdd selects
// between setting the value and clearing the field.
func (s *Service) OnDynamicFieldChanged(ctx context.Context, propertyID, field, value string, isAdd bool) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	s.dropDocCache(ctx, propertyID)
	if isAdd {
		return s.index.SetDynamicField(ctx, propertyID, field, value)
	}
	return s.index.RemoveDynamicField(ctx, propertyID, field)
}

func (s *Service) UpdateStatistics(ctx context.Context, propertyID string, viewDelta, bookingDelta int64, rating *float64) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	s.dropDocCache(ctx, propertyID)
	return s.index.UpdateStatistics(ctx, propertyID, viewDelta, bookingDelta, rating)
}

/********** query surface **********/

// Search serves one result page, read-through cached. Store trouble never
// surfaces as an error here: callers get an empty degraded page and the
// details go to the log.
func (s *Service) Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResult, error) {
	req.Normalize()
	if err := s.ensureReady(ctx); err != nil {
		if !errors.Is(err, domain.ErrStoreDisabled) {
			log.Warn().Err(err).Msg("search degraded: store not ready")
		}
		return domain.EmptyResult(req, true), nil
	}

	epochs, err := s.index.SearchEpochs(ctx, req.City)
	if err != nil {
		log.Warn().Err(err).Msg("search degraded: epochs unavailable")
		return domain.EmptyResult(req, true), nil
	}
	key := searchCacheKey(req, epochs)
	if s.cache != nil {
		var cached domain.SearchResult
		if ok, _ := s.cache.Get(ctx, key, &cached); ok {
			return cached, nil
		}
	}

	// Concurrent misses on the same key share one store round trip.
	v, err, _ := s.flight.Do(key, func() (any, error) {
		res, err := s.search.Search(ctx, req)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			_ = s.cache.Set(ctx, key, res, s.searchTTL)
		}
		return res, nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("search degraded: store failure")
		return domain.EmptyResult(req, true), nil
	}
	return v.(domain.SearchResult), nil
}

// GetProperty returns the indexed document, read-through cached.
func (s *Service) GetProperty(ctx context.Context, propertyID string) (domain.PropertyDoc, error) {
	if err := s.ensureReady(ctx); err != nil {
		return domain.PropertyDoc{}, err
	}
	key := docCacheKey(propertyID)
	if s.cache != nil {
		var doc domain.PropertyDoc
		if ok, _ := s.cache.Get(ctx, key, &doc); ok {
			return doc, nil
		}
	}
	doc, err := s.index.GetPropertyDoc(ctx, propertyID)
	if err != nil {
		return domain.PropertyDoc{}, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, doc, s.searchTTL)
	}
	return doc, nil
}

func (s *Service) CheckAvailability(ctx context.Context, propertyID string, checkIn, checkOut time.Time, guests int) (bool, error) {
	if err := s.ensureReady(ctx); err != nil {
		return false, err
	}
	return s.search.CheckAvailability(ctx, propertyID, checkIn, checkOut, guests)
}

// QuoteStay resolves the average effective nightly price of a unit over a
// window, in the unit's own currency.
func (s *Service) QuoteStay(ctx context.Context, unitID string, checkIn, checkOut time.Time) (float64, string, error) {
	if err := s.ensureReady(ctx); err != nil {
		return 0, "", err
	}
	if s.quoter == nil {
		return 0, "", errors.New("stay pricing unavailable")
	}
	return s.quoter.EffectiveNightly(ctx, unitID, checkIn, checkOut)
}

func (s *Service) PropertiesByDynamicField(ctx context.Context, field, value string) ([]string, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}
	return s.index.PropertiesByDynamicField(ctx, field, value)
}

/********** operational surface **********/

// GetStatistics assembles the runtime snapshot. It works without a completed
// handshake so the endpoint stays useful while the store is down.
func (s *Service) GetStatistics(ctx context.Context) domain.Statistics {
	st := domain.Statistics{
		Health:      domain.HealthUnhealthy,
		CollectedAt: time.Now().UTC(),
	}
	if s.exec != nil {
		st.Operations = s.exec.Stats().Snapshot()
		st.Breakers = s.exec.BreakerStates()
	}
	if s.cache != nil {
		st.Cache = s.cache.Counters()
	}
	if s.health != nil {
		st.Health = s.health.Status()
	}
	if s.disabled {
		return st
	}
	if n, err := s.index.IndexedCount(ctx); err == nil {
		st.IndexedCount = n
		st.StoreReachable = true
	}
	return st
}

// RebuildIndex re-indexes the complete entity source.
func (s *Service) RebuildIndex(ctx context.Context) (domain.RebuildReport, error) {
	if err := s.ensureReady(ctx); err != nil {
		return domain.RebuildReport{}, err
	}
	if s.rebuilder == nil {
		return domain.RebuildReport{}, errors.New("rebuild unavailable")
	}
	return s.rebuilder.Run(ctx)
}

// OptimizeStore sweeps expired data and repairs auxiliary index drift.
func (s *Service) OptimizeStore(ctx context.Context) (domain.CleanupReport, error) {
	if err := s.ensureReady(ctx); err != nil {
		return domain.CleanupReport{}, err
	}
	if s.maint == nil {
		return domain.CleanupReport{}, errors.New("store maintenance unavailable")
	}
	rep, err := s.maint.RunCleanup(ctx)
	if err != nil {
		return domain.CleanupReport{}, err
	}
	n, err := s.maint.RunReindex(ctx)
	if err != nil {
		return rep, err
	}
	log.Info().Int64("documents", n).Msg("auxiliary indexes rebuilt")
	return rep, nil
}

/********** cache keys **********/

func docCacheKey(propertyID string) string { return "cache:doc:" + propertyID }

// searchCacheKey folds the canonical request and the epoch pair into one
// fixed-width key. Epoch bumps rotate every dependent page at once, so no
// per-key invalidation is ever needed.
func searchCacheKey(req domain.SearchRequest, epochs string) string {
	if len(req.AmenityIDs) > 1 {
		ids := append([]string(nil), req.AmenityIDs...)
		sort.Strings(ids)
		req.AmenityIDs = ids
	}
	b, _ := json.Marshal(req)
	sum := sha1.Sum(append(b, []byte("|"+epochs)...))
	return "cache:search:" + hex.EncodeToString(sum[:])
}

func (s *Service) dropDocCache(ctx context.Context, propertyID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Remove(ctx, docCacheKey(propertyID))
}
