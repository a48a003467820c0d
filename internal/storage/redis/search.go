package redisindex

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/adapters/observability"
	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
)

// sortZset maps a sort key to the backing sorted set and its direction.
func sortZset(key domain.SortKey) (string, bool) {
	switch key {
	case domain.SortPriceAsc:
		return keyIdxPrice, false
	case domain.SortPriceDesc:
		return keyIdxPrice, true
	case domain.SortRating:
		return keyIdxRating, true
	case domain.SortNewest:
		return keyIdxCreated, true
	case domain.SortOldest:
		return keyIdxCreated, false
	case domain.SortBookings:
		return keyIdxBookings, true
	default:
		return keyIdxPop, true
	}
}

// Search runs the multi-criteria pipeline: set intersection, sorted-set
// narrowing, geo radius, document fetch, residual filters, ranking and
// paging. An empty page is a normal result, never an error.
func (s *Store) Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResult, error) {
	req.Normalize()
	var res domain.SearchResult
	err := s.readOp(ctx, "search", func(ctx context.Context) error {
		var err error
		res, err = s.search(ctx, req)
		return err
	})
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("search: %w", err)
	}
	observability.ObserveSearch(res.TotalCount)
	return res, nil
}

func (s *Store) search(ctx context.Context, req domain.SearchRequest) (domain.SearchResult, error) {
	if s.serverScripts && scriptEligible(req) {
		total, ids, err := s.runSearchScript(ctx, req, searchMemberKeys(req))
		if err == nil {
			docs, err := s.fetchDocs(ctx, ids)
			if err != nil {
				return domain.SearchResult{}, err
			}
			if docs == nil {
				docs = []domain.PropertyDoc{}
			}
			return domain.SearchResult{
				Items:      docs,
				TotalCount: total,
				Page:       req.Page,
				PageSize:   req.PageSize,
				TotalPages: totalPages(total, req.PageSize),
			}, nil
		}
		log.Warn().Err(err).Msg("search script failed, falling back to client pipeline")
	}
	return s.searchClient(ctx, req)
}

// scriptEligible reports whether the request can be answered entirely from
// index structures. Residual filters need document fields, and price bounds
// in a foreign currency cannot be compared against native zset scores.
func scriptEligible(req domain.SearchRequest) bool {
	if req.Text != "" || req.Guests > 0 || req.HasStayWindow() || req.HasGeo() {
		return false
	}
	priceBounds := req.MinPrice > 0 || req.MaxPrice > 0
	return !(priceBounds && req.Currency != "")
}

// searchMemberKeys builds the intersection key list: the city set when given,
// otherwise the canonical id set, plus one set per structured filter.
func searchMemberKeys(req domain.SearchRequest) []string {
	base := keyAll
	if req.City != "" {
		base = keyCity(req.City)
	}
	keys := []string{base}
	if req.TypeID != "" {
		keys = append(keys, keyType(req.TypeID))
	}
	for _, a := range req.AmenityIDs {
		keys = append(keys, keyAmenity(a))
	}
	for f, v := range req.DynamicFilters {
		keys = append(keys, keyDynamic(f, v))
	}
	return keys
}

func (s *Store) searchClient(ctx context.Context, req domain.SearchRequest) (domain.SearchResult, error) {
	ids, err := s.intersectCandidates(ctx, req)
	if err != nil {
		return domain.SearchResult{}, err
	}
	// ascending id order keeps the candidate cap deterministic
	sort.Strings(ids)
	priceBounds := req.MinPrice > 0 || req.MaxPrice > 0
	if priceBounds && req.Currency == "" && !req.HasStayWindow() {
		if ids, err = s.filterByScore(ctx, ids, keyIdxPrice, req.MinPrice, req.MaxPrice); err != nil {
			return domain.SearchResult{}, err
		}
	}
	if req.MinRating > 0 {
		if ids, err = s.filterByScore(ctx, ids, keyIdxRating, req.MinRating, 0); err != nil {
			return domain.SearchResult{}, err
		}
	}
	if len(ids) > s.maxResults {
		ids = ids[:s.maxResults]
	}
	if req.HasGeo() {
		if ids, err = s.filterByRadius(ctx, req, ids); err != nil {
			return domain.SearchResult{}, err
		}
	}
	docs, err := s.fetchDocs(ctx, ids)
	if err != nil {
		return domain.SearchResult{}, err
	}
	docs, err = s.residualFilter(ctx, req, docs)
	if err != nil {
		return domain.SearchResult{}, err
	}
	sortDocs(docs, req.Sort)
	return pageOf(docs, req), nil
}

func (s *Store) intersectCandidates(ctx context.Context, req domain.SearchRequest) ([]string, error) {
	keys := searchMemberKeys(req)
	if len(keys) == 1 {
		return s.c.SMembers(ctx, keys[0]).Result()
	}
	return s.c.SInter(ctx, keys...).Result()
}

// filterByScore keeps candidates whose zset score falls inside the given
// bounds; zero bounds are open. Ids missing from the zset are dropped.
func (s *Store) filterByScore(ctx context.Context, ids []string, key string, min, max float64) ([]string, error) {
	if len(ids) == 0 {
		return ids, nil
	}
	cmds := make([]*redis.FloatCmd, len(ids))
	_, err := s.c.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.ZScore(ctx, key, id)
		}
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, err
	}
	out := ids[:0]
	for i, id := range ids {
		score, err := cmds[i].Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		if min > 0 && score < min {
			continue
		}
		if max > 0 && score > max {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *Store) filterByRadius(ctx context.Context, req domain.SearchRequest, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return ids, nil
	}
	key := keyGeoAll
	if req.City != "" {
		key = keyGeoCity(req.City)
	}
	locs, err := s.c.GeoRadius(ctx, key, req.Longitude, req.Latitude, &redis.GeoRadiusQuery{
		Radius: req.RadiusKm,
		Unit:   "km",
	}).Result()
	if err != nil {
		return nil, err
	}
	within := make(map[string]bool, len(locs))
	for _, l := range locs {
		within[l.Name] = true
	}
	out := ids[:0]
	for _, id := range ids {
		if within[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// fetchDocs loads the primary documents for the given ids. Missing records
// (deleted mid-pipeline), corrupt records and hidden documents are skipped.
func (s *Store) fetchDocs(ctx context.Context, ids []string) ([]domain.PropertyDoc, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := s.c.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, keyProperty(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	docs := make([]domain.PropertyDoc, 0, len(ids))
	for i, id := range ids {
		m := cmds[i].Val()
		if len(m) == 0 {
			continue
		}
		doc, err := parseProperty(m)
		if err != nil {
			log.Warn().Err(err).Str("property_id", id).Msg("skipping corrupt document")
			continue
		}
		if !doc.Visible() {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// residualFilter applies the criteria that need document fields: text terms,
// guest capacity, cross-currency price bounds and the stay window.
func (s *Store) residualFilter(ctx context.Context, req domain.SearchRequest, docs []domain.PropertyDoc) ([]domain.PropertyDoc, error) {
	terms := strings.Fields(strings.ToLower(req.Text))
	priceBounds := req.MinPrice > 0 || req.MaxPrice > 0
	convertPrice := priceBounds && req.Currency != "" && !req.HasStayWindow()
	out := docs[:0]
	for _, d := range docs {
		if len(terms) > 0 && !matchesText(d, terms) {
			continue
		}
		if req.Guests > 0 && !req.HasStayWindow() && d.MaxCapacity < req.Guests {
			continue
		}
		if convertPrice && !s.amountInRange(ctx, d.MinPrice, d.Currency, req) {
			continue
		}
		if req.HasStayWindow() {
			ok, err := s.stayWindowOK(ctx, d, req)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, d)
	}
	return out, nil
}

// matchesText requires every term to appear in the lowercased name or
// description.
func matchesText(d domain.PropertyDoc, terms []string) bool {
	hay := d.NameLower + " " + strings.ToLower(d.Description)
	for _, t := range terms {
		if !strings.Contains(hay, t) {
			return false
		}
	}
	return true
}

// amountInRange checks price bounds after converting the amount into the
// requested currency. An unknown rate keeps the original amount.
func (s *Store) amountInRange(ctx context.Context, amount float64, currency string, req domain.SearchRequest) bool {
	if req.Currency != "" && currency != "" && !strings.EqualFold(currency, req.Currency) {
		if rate, ok := s.rates.Rate(ctx, currency, req.Currency); ok {
			amount *= rate
		}
	}
	if req.MinPrice > 0 && amount < req.MinPrice {
		return false
	}
	if req.MaxPrice > 0 && amount > req.MaxPrice {
		return false
	}
	return true
}

// stayWindowOK keeps a property when at least one unit is free for the whole
// window, and, with price bounds, when one such unit's effective nightly
// price falls inside them.
func (s *Store) stayWindowOK(ctx context.Context, d domain.PropertyDoc, req domain.SearchRequest) (bool, error) {
	units, err := s.availableUnits(ctx, d.ID, req.CheckIn, req.CheckOut, req.Guests)
	if err != nil {
		return false, err
	}
	if len(units) == 0 {
		return false, nil
	}
	if req.MinPrice <= 0 && req.MaxPrice <= 0 {
		return true, nil
	}
	for _, u := range units {
		nightly, currency, err := s.effectiveNightly(ctx, u, req.CheckIn, req.CheckOut)
		if err != nil {
			return false, err
		}
		if s.amountInRange(ctx, nightly, currency, req) {
			return true, nil
		}
	}
	return false, nil
}

// sortDocs mirrors the sorted-set ordering client-side, with the same
// ascending-id tie-break.
func sortDocs(docs []domain.PropertyDoc, key domain.SortKey) {
	score := docScore(key)
	_, desc := sortZset(key)
	sort.Slice(docs, func(i, j int) bool {
		si, sj := score(docs[i]), score(docs[j])
		if si == sj {
			return docs[i].ID < docs[j].ID
		}
		if desc {
			return si > sj
		}
		return si < sj
	})
}

func docScore(key domain.SortKey) func(domain.PropertyDoc) float64 {
	switch key {
	case domain.SortPriceAsc, domain.SortPriceDesc:
		return func(d domain.PropertyDoc) float64 { return d.MinPrice }
	case domain.SortRating:
		return func(d domain.PropertyDoc) float64 { return d.AverageRating }
	case domain.SortNewest, domain.SortOldest:
		return func(d domain.PropertyDoc) float64 { return float64(d.CreatedAt.Unix()) }
	case domain.SortBookings:
		return func(d domain.PropertyDoc) float64 { return float64(d.BookingCount) }
	default:
		return func(d domain.PropertyDoc) float64 { return d.PopularityScore }
	}
}

func pageOf(docs []domain.PropertyDoc, req domain.SearchRequest) domain.SearchResult {
	total := len(docs)
	start := (req.Page - 1) * req.PageSize
	if start > total {
		start = total
	}
	end := start + req.PageSize
	if end > total {
		end = total
	}
	items := make([]domain.PropertyDoc, end-start)
	copy(items, docs[start:end])
	return domain.SearchResult{
		Items:      items,
		TotalCount: total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: totalPages(total, req.PageSize),
	}
}

func totalPages(total, size int) int {
	if size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// CheckAvailability answers whether any active unit of the property can host
// the stay window with the requested guest count.
func (s *Store) CheckAvailability(ctx context.Context, propertyID string, checkIn, checkOut time.Time, guests int) (bool, error) {
	if !checkIn.Before(checkOut) {
		return false, fmt.Errorf("check availability %s: window end must follow start", propertyID)
	}
	var available bool
	err := s.readOp(ctx, "check_availability", func(ctx context.Context) error {
		var err error
		if s.serverScripts {
			available, err = s.runAvailabilityScript(ctx, propertyID, checkIn, checkOut, guests)
			if err == nil || err == domain.ErrNotFound {
				return err
			}
			log.Warn().Err(err).Str("property_id", propertyID).Msg("availability script failed, falling back to client check")
		}
		available, err = s.checkAvailabilityClient(ctx, propertyID, checkIn, checkOut, guests)
		return err
	})
	return available, err
}
