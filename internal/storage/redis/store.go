// Package redisindex keeps the denormalized property view in Redis: primary
// hash documents plus every auxiliary index (membership sets, sorted sets,
// geo sets), mutated atomically so no reader ever observes a half-applied
// state.
package redisindex

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/resilience"
)

const (
	// DefaultWorkers bounds concurrent index mutations.
	DefaultWorkers = 5
	// DefaultMaxResults caps the candidate set a single search may carry
	// out of the store.
	DefaultMaxResults = 1000
)

// Options tune the store; zero values fall back to defaults.
type Options struct {
	Workers       int
	Retries       int
	MaxResults    int
	ServerScripts bool
}

// Store is the index store manager. Every mutation is one MULTI/EXEC
// transaction wrapped by the resilience executor and gated by a bounded
// semaphore; same-id serialization is the caller's responsibility.
type Store struct {
	c     *redis.Client
	exec  *resilience.Executor
	rates domain.RateProvider
	gate  *semaphore.Weighted

	retries       int
	maxResults    int
	serverScripts bool
}

var (
	_ domain.PropertyIndex    = (*Store)(nil)
	_ domain.PropertySearcher = (*Store)(nil)
)

func NewStore(c *redis.Client, exec *resilience.Executor, rates domain.RateProvider, opts Options) *Store {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	return &Store{
		c:             c,
		exec:          exec,
		rates:         rates,
		gate:          semaphore.NewWeighted(int64(opts.Workers)),
		retries:       opts.Retries,
		maxResults:    opts.MaxResults,
		serverScripts: opts.ServerScripts,
	}
}

// Client exposes the underlying connection for collaborators that share the
// pool (cache tier, FX mirror).
func (s *Store) Client() *redis.Client { return s.c }

func (s *Store) Ping(ctx context.Context) error {
	return s.exec.Do(ctx, "ping", func(ctx context.Context) error {
		return s.c.Ping(ctx).Err()
	})
}

// Bootstrap seeds the epoch counters and stamps the stats hash. Safe to run
// on every start.
func (s *Store) Bootstrap(ctx context.Context) error {
	return s.exec.Do(ctx, "bootstrap", func(ctx context.Context) error {
		if err := s.c.SetNX(ctx, keyEpochAll, 1, 0).Err(); err != nil {
			return fmt.Errorf("bootstrap epoch: %w", err)
		}
		if err := s.c.HSet(ctx, keyStats, "bootstrapped_at", tstr(time.Now())).Err(); err != nil {
			return fmt.Errorf("bootstrap stamp: %w", err)
		}
		return nil
	})
}

// mutate runs fn as one gated, breaker-wrapped store operation.
func (s *Store) mutate(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.gate.Release(1)
	return s.exec.Do(ctx, op, fn)
}

// readOp wraps idempotent reads with the executor plus bounded retries.
func (s *Store) readOp(ctx context.Context, op string, fn func(context.Context) error) error {
	return s.exec.Do(ctx, op, func(ctx context.Context) error {
		return resilience.Retry(ctx, s.retries, fn)
	})
}

// geoPoint is one geo-set position write.
type geoPoint struct {
	key      string
	lng, lat float64
}

// indexPlan captures every auxiliary membership a document's current fields
// imply. Invisible documents imply none: they keep their primary hash but
// never appear in search structures.
type indexPlan struct {
	sets  []string
	zsets map[string]float64
	geo   []geoPoint
}

func docPlan(d domain.PropertyDoc) indexPlan {
	pl := indexPlan{zsets: map[string]float64{}}
	if !d.Visible() {
		return pl
	}
	if d.City != "" {
		pl.sets = append(pl.sets, keyCity(d.City))
	}
	if d.TypeID != "" {
		pl.sets = append(pl.sets, keyType(d.TypeID))
	}
	for _, a := range d.AmenityIDs {
		pl.sets = append(pl.sets, keyAmenity(a))
	}
	for _, sv := range d.ServiceIDs {
		pl.sets = append(pl.sets, keyService(sv))
	}
	for f, v := range d.DynamicFields {
		pl.sets = append(pl.sets, keyDynamic(f, v))
	}
	if d.IsFeatured {
		pl.sets = append(pl.sets, keyFeatured)
	}
	pl.zsets[keyIdxPrice] = d.MinPrice
	pl.zsets[keyIdxRating] = d.AverageRating
	pl.zsets[keyIdxCreated] = float64(d.CreatedAt.Unix())
	pl.zsets[keyIdxBookings] = float64(d.BookingCount)
	pl.zsets[keyIdxPop] = d.PopularityScore
	if d.Latitude != 0 || d.Longitude != 0 {
		pl.geo = append(pl.geo, geoPoint{keyGeoAll, d.Longitude, d.Latitude})
		if d.City != "" {
			pl.geo = append(pl.geo, geoPoint{keyGeoCity(d.City), d.Longitude, d.Latitude})
		}
	}
	return pl
}

func applyPlan(ctx context.Context, p redis.Pipeliner, id string, pl indexPlan) {
	for _, k := range pl.sets {
		p.SAdd(ctx, k, id)
	}
	for k, score := range pl.zsets {
		p.ZAdd(ctx, k, redis.Z{Score: score, Member: id})
	}
	for _, g := range pl.geo {
		p.GeoAdd(ctx, g.key, &redis.GeoLocation{Name: id, Longitude: g.lng, Latitude: g.lat})
	}
}

func bumpEpochs(ctx context.Context, p redis.Pipeliner, cities ...string) {
	p.Incr(ctx, keyEpochAll)
	seen := map[string]bool{}
	for _, c := range cities {
		if c == "" {
			continue
		}
		k := keyEpochCity(c)
		if !seen[k] {
			seen[k] = true
			p.Incr(ctx, k)
		}
	}
}

// IndexProperty writes the primary document, its units and every auxiliary
// index in one transaction. Partial failure leaves no index trace.
func (s *Store) IndexProperty(ctx context.Context, doc domain.PropertyDoc, units []domain.UnitDoc) error {
	err := s.mutate(ctx, "index_property", func(ctx context.Context) error {
		pl := docPlan(doc)
		_, err := s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, keyProperty(doc.ID))
			p.HSet(ctx, keyProperty(doc.ID), propertyFields(doc))
			p.SAdd(ctx, keyAll, doc.ID)
			applyPlan(ctx, p, doc.ID, pl)
			p.Del(ctx, keyPropertyUnits(doc.ID))
			for _, u := range units {
				p.Del(ctx, keyUnit(u.ID))
				p.HSet(ctx, keyUnit(u.ID), unitFields(u))
				p.SAdd(ctx, keyPropertyUnits(doc.ID), u.ID)
			}
			bumpEpochs(ctx, p, doc.City)
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("index property %s: %w", doc.ID, err)
	}
	s.publish(ctx, "property.indexed", doc.ID, "")
	return nil
}

// UpdateProperty diffs against the stored document: only memberships that
// changed are touched, while every sorted-set score and geo position is
// refreshed unconditionally.
func (s *Store) UpdateProperty(ctx context.Context, doc domain.PropertyDoc) error {
	err := s.mutate(ctx, "update_property", func(ctx context.Context) error {
		stored, err := s.c.HGetAll(ctx, keyProperty(doc.ID)).Result()
		if err != nil {
			return err
		}
		newPlan := docPlan(doc)
		var oldPlan indexPlan
		oldCity := ""
		if len(stored) > 0 {
			old, perr := parseProperty(stored)
			if perr != nil {
				// corrupt prior record: rewrite everything we can derive
				// and let the reindex procedure repair the rest
				log.Warn().Err(perr).Str("property_id", doc.ID).Msg("stored document corrupt, rewriting")
			} else {
				oldPlan = docPlan(old)
				oldCity = old.City
			}
		}
		removedSets, addedSets := diffStrings(oldPlan.sets, newPlan.sets)
		_, err = s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, keyProperty(doc.ID))
			p.HSet(ctx, keyProperty(doc.ID), propertyFields(doc))
			p.SAdd(ctx, keyAll, doc.ID)
			for _, k := range removedSets {
				p.SRem(ctx, k, doc.ID)
			}
			for _, k := range addedSets {
				p.SAdd(ctx, k, doc.ID)
			}
			// scores and positions refresh on every update
			for k := range oldPlan.zsets {
				if _, keep := newPlan.zsets[k]; !keep {
					p.ZRem(ctx, k, doc.ID)
				}
			}
			for k, score := range newPlan.zsets {
				p.ZAdd(ctx, k, redis.Z{Score: score, Member: doc.ID})
			}
			newGeo := map[string]bool{}
			for _, g := range newPlan.geo {
				newGeo[g.key] = true
			}
			for _, g := range oldPlan.geo {
				if !newGeo[g.key] {
					p.ZRem(ctx, g.key, doc.ID)
				}
			}
			for _, g := range newPlan.geo {
				p.GeoAdd(ctx, g.key, &redis.GeoLocation{Name: doc.ID, Longitude: g.lng, Latitude: g.lat})
			}
			bumpEpochs(ctx, p, oldCity, doc.City)
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("update property %s: %w", doc.ID, err)
	}
	s.publish(ctx, "property.updated", doc.ID, "")
	return nil
}

// RemoveProperty deletes the document, its units and every membership the
// prior document could appear in. Calling it again is a no-op.
func (s *Store) RemoveProperty(ctx context.Context, id string) error {
	removed := false
	err := s.mutate(ctx, "remove_property", func(ctx context.Context) error {
		stored, err := s.c.HGetAll(ctx, keyProperty(id)).Result()
		if err != nil {
			return err
		}
		if len(stored) == 0 {
			return nil
		}
		var old domain.PropertyDoc
		if old, err = parseProperty(stored); err != nil {
			log.Warn().Err(err).Str("property_id", id).Msg("stored document corrupt, removing reachable keys")
			old = domain.PropertyDoc{ID: id}
		}
		unitIDs, err := s.c.SMembers(ctx, keyPropertyUnits(id)).Result()
		if err != nil {
			return err
		}
		_, err = s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, keyProperty(id))
			p.SRem(ctx, keyAll, id)
			if old.City != "" {
				p.SRem(ctx, keyCity(old.City), id)
				p.ZRem(ctx, keyGeoCity(old.City), id)
			}
			if old.TypeID != "" {
				p.SRem(ctx, keyType(old.TypeID), id)
			}
			for _, a := range old.AmenityIDs {
				p.SRem(ctx, keyAmenity(a), id)
			}
			for _, sv := range old.ServiceIDs {
				p.SRem(ctx, keyService(sv), id)
			}
			for f, v := range old.DynamicFields {
				p.SRem(ctx, keyDynamic(f, v), id)
			}
			p.SRem(ctx, keyFeatured, id)
			for _, k := range []string{keyIdxPrice, keyIdxRating, keyIdxCreated, keyIdxBookings, keyIdxPop} {
				p.ZRem(ctx, k, id)
			}
			p.ZRem(ctx, keyGeoAll, id)
			for _, uid := range unitIDs {
				p.Del(ctx, keyUnit(uid), keyAvailability(uid), keyPricing(uid))
			}
			p.Del(ctx, keyPropertyUnits(id))
			bumpEpochs(ctx, p, old.City)
			return nil
		})
		if err == nil {
			removed = true
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("remove property %s: %w", id, err)
	}
	if removed {
		s.publish(ctx, "property.removed", id, "")
	}
	return nil
}

// IndexUnit writes one unit document under an existing property.
func (s *Store) IndexUnit(ctx context.Context, unit domain.UnitDoc) error {
	err := s.mutate(ctx, "index_unit", func(ctx context.Context) error {
		exists, err := s.c.Exists(ctx, keyProperty(unit.PropertyID)).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return domain.ErrNotFound
		}
		if prev, err := s.c.HGet(ctx, keyUnit(unit.ID), "property_id").Result(); err == nil && prev != unit.PropertyID {
			return domain.ErrUnitMismatch
		} else if err != nil && err != redis.Nil {
			return err
		}
		city, err := s.c.HGet(ctx, keyProperty(unit.PropertyID), "city").Result()
		if err != nil && err != redis.Nil {
			return err
		}
		_, err = s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, keyUnit(unit.ID))
			p.HSet(ctx, keyUnit(unit.ID), unitFields(unit))
			p.SAdd(ctx, keyPropertyUnits(unit.PropertyID), unit.ID)
			bumpEpochs(ctx, p, city)
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("index unit %s: %w", unit.ID, err)
	}
	s.publish(ctx, "unit.indexed", unit.PropertyID, unit.ID)
	return nil
}

// RemoveUnit deletes the unit document plus its availability and pricing
// records. A unit stored under a different property raises an integrity
// error; a missing unit is a no-op.
func (s *Store) RemoveUnit(ctx context.Context, unitID, propertyID string) error {
	removed := false
	err := s.mutate(ctx, "remove_unit", func(ctx context.Context) error {
		owner, err := s.c.HGet(ctx, keyUnit(unitID), "property_id").Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		if owner != propertyID {
			return domain.ErrUnitMismatch
		}
		city, err := s.c.HGet(ctx, keyProperty(propertyID), "city").Result()
		if err != nil && err != redis.Nil {
			return err
		}
		_, err = s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, keyUnit(unitID), keyAvailability(unitID), keyPricing(unitID))
			p.SRem(ctx, keyPropertyUnits(propertyID), unitID)
			bumpEpochs(ctx, p, city)
			return nil
		})
		if err == nil {
			removed = true
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("remove unit %s: %w", unitID, err)
	}
	if removed {
		s.publish(ctx, "unit.removed", propertyID, unitID)
	}
	return nil
}

// SetDynamicField updates one exact-match attribute, moving the property
// between dynamic index sets when the value changes.
func (s *Store) SetDynamicField(ctx context.Context, propertyID, field, value string) error {
	err := s.mutate(ctx, "set_dynamic_field", func(ctx context.Context) error {
		doc, err := s.getDoc(ctx, propertyID)
		if err != nil {
			return err
		}
		old := doc.DynamicFields[field]
		next := make(map[string]string, len(doc.DynamicFields)+1)
		for k, v := range doc.DynamicFields {
			next[k] = v
		}
		next[field] = value
		_, err = s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, keyProperty(propertyID), "dynamic_fields", jmap(next))
			if doc.Visible() {
				if old != "" && old != value {
					p.SRem(ctx, keyDynamic(field, old), propertyID)
				}
				p.SAdd(ctx, keyDynamic(field, value), propertyID)
			}
			bumpEpochs(ctx, p, doc.City)
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("set dynamic field %s.%s: %w", propertyID, field, err)
	}
	s.publish(ctx, "property.updated", propertyID, "")
	return nil
}

// RemoveDynamicField drops one attribute and its index membership.
func (s *Store) RemoveDynamicField(ctx context.Context, propertyID, field string) error {
	changed := false
	err := s.mutate(ctx, "remove_dynamic_field", func(ctx context.Context) error {
		doc, err := s.getDoc(ctx, propertyID)
		if err != nil {
			return err
		}
		old, ok := doc.DynamicFields[field]
		if !ok {
			return nil
		}
		next := make(map[string]string, len(doc.DynamicFields))
		for k, v := range doc.DynamicFields {
			if k != field {
				next[k] = v
			}
		}
		_, err = s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, keyProperty(propertyID), "dynamic_fields", jmap(next))
			p.SRem(ctx, keyDynamic(field, old), propertyID)
			bumpEpochs(ctx, p, doc.City)
			return nil
		})
		if err == nil {
			changed = true
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("remove dynamic field %s.%s: %w", propertyID, field, err)
	}
	if changed {
		s.publish(ctx, "property.updated", propertyID, "")
	}
	return nil
}

// PropertiesByDynamicField is the exact-match lookup over the dynamic index,
// independent of the primary documents.
func (s *Store) PropertiesByDynamicField(ctx context.Context, field, value string) ([]string, error) {
	var ids []string
	err := s.readOp(ctx, "dynamic_lookup", func(ctx context.Context) error {
		var err error
		ids, err = s.c.SMembers(ctx, keyDynamic(field, value)).Result()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("dynamic lookup %s=%s: %w", field, value, err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) getDoc(ctx context.Context, id string) (domain.PropertyDoc, error) {
	m, err := s.c.HGetAll(ctx, keyProperty(id)).Result()
	if err != nil {
		return domain.PropertyDoc{}, err
	}
	if len(m) == 0 {
		return domain.PropertyDoc{}, domain.ErrNotFound
	}
	return parseProperty(m)
}

// GetPropertyDoc reads the primary document.
func (s *Store) GetPropertyDoc(ctx context.Context, id string) (domain.PropertyDoc, error) {
	var doc domain.PropertyDoc
	err := s.readOp(ctx, "get_property", func(ctx context.Context) error {
		var err error
		doc, err = s.getDoc(ctx, id)
		return err
	})
	return doc, err
}

// GetUnitDoc reads one unit document.
func (s *Store) GetUnitDoc(ctx context.Context, id string) (domain.UnitDoc, error) {
	var unit domain.UnitDoc
	err := s.readOp(ctx, "get_unit", func(ctx context.Context) error {
		m, err := s.c.HGetAll(ctx, keyUnit(id)).Result()
		if err != nil {
			return err
		}
		if len(m) == 0 {
			return domain.ErrNotFound
		}
		unit, err = parseUnit(m)
		return err
	})
	return unit, err
}

// UpdateStatistics bumps engagement counters and recomputes popularity. The
// server-side procedure keeps it one atomic step; without it the client
// equivalent splits counter bumps and score refresh into two transactions.
func (s *Store) UpdateStatistics(ctx context.Context, id string, viewDelta, bookingDelta int64, rating *float64) error {
	err := s.mutate(ctx, "update_statistics", func(ctx context.Context) error {
		if s.serverScripts {
			err := s.runStatsScript(ctx, id, viewDelta, bookingDelta, rating)
			if err == nil || err == domain.ErrNotFound {
				return err
			}
			log.Warn().Err(err).Str("property_id", id).Msg("stats script failed, falling back to client update")
		}
		return s.updateStatisticsClient(ctx, id, viewDelta, bookingDelta, rating)
	})
	if err != nil {
		return fmt.Errorf("update statistics %s: %w", id, err)
	}
	s.publish(ctx, "property.stats", id, "")
	return nil
}

func (s *Store) updateStatisticsClient(ctx context.Context, id string, viewDelta, bookingDelta int64, rating *float64) error {
	doc, err := s.getDoc(ctx, id)
	if err != nil {
		return err
	}
	var views, bookings *redis.IntCmd
	_, err = s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		views = p.HIncrBy(ctx, keyProperty(id), "view_count", viewDelta)
		bookings = p.HIncrBy(ctx, keyProperty(id), "booking_count", bookingDelta)
		if rating != nil {
			p.HSet(ctx, keyProperty(id), "average_rating", fstr(*rating))
		}
		bumpEpochs(ctx, p, doc.City)
		return nil
	})
	if err != nil {
		return err
	}
	newRating := doc.AverageRating
	if rating != nil {
		newRating = *rating
	}
	pop := domain.PopularityScore(newRating, doc.ReviewCount, bookings.Val(), views.Val())
	_, err = s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, keyProperty(id), "popularity_score", fstr(pop))
		if doc.Visible() {
			p.ZAdd(ctx, keyIdxPop, redis.Z{Score: pop, Member: id})
			p.ZAdd(ctx, keyIdxBookings, redis.Z{Score: float64(bookings.Val()), Member: id})
			if rating != nil {
				p.ZAdd(ctx, keyIdxRating, redis.Z{Score: newRating, Member: id})
			}
		}
		return nil
	})
	return err
}

// BumpSearchEpoch invalidates cached search pages for the city and globally.
func (s *Store) BumpSearchEpoch(ctx context.Context, city string) error {
	return s.mutate(ctx, "bump_epoch", func(ctx context.Context) error {
		_, err := s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
			bumpEpochs(ctx, p, city)
			return nil
		})
		return err
	})
}

// SearchEpochs returns the current epoch pair for a city, folded into search
// cache keys so mutation bumps invalidate dependent pages.
func (s *Store) SearchEpochs(ctx context.Context, city string) (string, error) {
	var out string
	err := s.readOp(ctx, "epochs", func(ctx context.Context) error {
		keys := []string{keyEpochAll}
		if city != "" {
			keys = append(keys, keyEpochCity(city))
		}
		vals, err := s.c.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		all, cty := "0", "0"
		if v, ok := vals[0].(string); ok {
			all = v
		}
		if len(vals) > 1 {
			if v, ok := vals[1].(string); ok {
				cty = v
			}
		}
		out = all + ":" + cty
		return nil
	})
	return out, err
}

// IndexedCount reports the size of the canonical id set.
func (s *Store) IndexedCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.readOp(ctx, "indexed_count", func(ctx context.Context) error {
		var err error
		n, err = s.c.SCard(ctx, keyAll).Result()
		return err
	})
	return n, err
}

// MarkRebuild records an in-progress rebuild run under the transient prefix.
// Markers orphaned by a crashed run are swept by RunCleanup.
func (s *Store) MarkRebuild(ctx context.Context, runID string) error {
	return s.c.Set(ctx, keyRebuildMarker(runID), tstr(time.Now().UTC()), 0).Err()
}

// UnmarkRebuild clears the marker of a finished rebuild run.
func (s *Store) UnmarkRebuild(ctx context.Context, runID string) error {
	return s.c.Del(ctx, keyRebuildMarker(runID)).Err()
}

type eventEnvelope struct {
	ID         string    `json:"id"`
	Event      string    `json:"event"`
	PropertyID string    `json:"property_id"`
	UnitID     string    `json:"unit_id,omitempty"`
	At         time.Time `json:"at"`
}

// publish announces a successful mutation on the events channel. Best
// effort: listeners are advisory, failures only log.
func (s *Store) publish(ctx context.Context, event, propertyID, unitID string) {
	b, err := json.Marshal(eventEnvelope{
		ID:         uuid.NewString(),
		Event:      event,
		PropertyID: propertyID,
		UnitID:     unitID,
		At:         time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := s.c.Publish(ctx, eventsChannel, b).Err(); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("event publish failed")
	}
}

// diffStrings splits old/new membership lists into removals and additions.
func diffStrings(old, new []string) (removed, added []string) {
	oldSet := make(map[string]bool, len(old))
	for _, k := range old {
		oldSet[k] = true
	}
	newSet := make(map[string]bool, len(new))
	for _, k := range new {
		newSet[k] = true
	}
	for _, k := range old {
		if !newSet[k] {
			removed = append(removed, k)
		}
	}
	for _, k := range new {
		if !oldSet[k] {
			added = append(added, k)
		}
	}
	return removed, added
}
