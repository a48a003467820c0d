package redisindex

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
)

// Server-side procedures. Each is content-addressed by its SHA1; the
// registry hash records name -> sha so startup can detect drift between the
// source here and what a previous deployment registered.

// searchScript runs the index-only part of the search pipeline in the store:
// member-set intersection, price/rating bounds, sort by zset score with id
// tie-break, candidate cap and pagination. Only requests with no residual
// filters (text, stay window, geo, guests) are eligible. Ids missing from
// the sort zset are dropped: only visible documents carry scores, so the
// canonical id set never leaks hidden documents into results.
//
// KEYS: [1]=sort zset, [2]=price zset, [3]=rating zset, [4..]=member sets
// ARGV: [1]=min price, [2]=max price, [3]=min rating, [4]=desc flag,
// [5]=offset, [6]=page size, [7]=candidate cap
// Reply: array {total, id, id, ...}
var searchScript = redis.NewScript(`
local ids = redis.call('SINTER', unpack(KEYS, 4, #KEYS))
local minp = tonumber(ARGV[1]) or 0
local maxp = tonumber(ARGV[2]) or 0
local minr = tonumber(ARGV[3]) or 0
local out = {}
local scores = {}
for _, id in ipairs(ids) do
  local ok = true
  local sc = tonumber(redis.call('ZSCORE', KEYS[1], id))
  if not sc then ok = false end
  if ok and (minp > 0 or maxp > 0) then
    local p = tonumber(redis.call('ZSCORE', KEYS[2], id))
    if not p then
      ok = false
    else
      if minp > 0 and p < minp then ok = false end
      if maxp > 0 and p > maxp then ok = false end
    end
  end
  if ok and minr > 0 then
    local r = tonumber(redis.call('ZSCORE', KEYS[3], id))
    if not r or r < minr then ok = false end
  end
  if ok then
    out[#out+1] = id
    scores[id] = sc
  end
end
local desc = ARGV[4] == '1'
table.sort(out, function(a, b)
  if scores[a] == scores[b] then return a < b end
  if desc then return scores[a] > scores[b] end
  return scores[a] < scores[b]
end)
local cap = tonumber(ARGV[7]) or 0
local total = #out
if cap > 0 and total > cap then total = cap end
local offset = tonumber(ARGV[5]) or 0
local count = tonumber(ARGV[6]) or 0
local reply = {total}
local last = offset + count
if last > total then last = total end
for i = offset + 1, last do reply[#reply+1] = out[i] end
return reply
`)

// availabilityScript answers the stay-window check without leaving the
// store. Range hash fields start with "startUnix:endUnix:" so overlap tests
// never decode the JSON values.
//
// KEYS: [1]=property hash, [2]=property units set
// ARGV: [1]=check-in unix, [2]=check-out unix, [3]=guests
// Reply: -1 property missing, 1 available, 0 not available
var availabilityScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local cin = tonumber(ARGV[1])
local cout = tonumber(ARGV[2])
local guests = tonumber(ARGV[3]) or 0
local units = redis.call('SMEMBERS', KEYS[2])
for _, uid in ipairs(units) do
  local active = redis.call('HGET', 'unit:'..uid, 'is_active')
  local cap = tonumber(redis.call('HGET', 'unit:'..uid, 'max_capacity')) or 0
  if active == '1' and cap >= guests then
    local blocked = false
    for _, f in ipairs(redis.call('HKEYS', 'avail:'..uid)) do
      local s, e = string.match(f, '^(%d+):(%d+):')
      if s and tonumber(s) < cout and tonumber(e) > cin then
        blocked = true
        break
      end
    end
    if not blocked then return 1 end
  end
end
return 0
`)

// statsScript bumps view/booking counters, optionally replaces the rating,
// recomputes popularity with the weights passed in, refreshes the affected
// zset scores for visible documents and bumps the search epochs.
//
// KEYS: [1]=property hash, [2]=popularity zset, [3]=bookings zset,
// [4]=rating zset
// ARGV: [1]=view delta, [2]=booking delta, [3]=rating ('' keeps current),
// [4..7]=weights rating/reviews/bookings/views
// Reply: 0 property missing, 1 updated
var statsScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
local id = redis.call('HGET', KEYS[1], 'id')
local views = redis.call('HINCRBY', KEYS[1], 'view_count', ARGV[1])
local bookings = redis.call('HINCRBY', KEYS[1], 'booking_count', ARGV[2])
local rating
if ARGV[3] ~= '' then
  rating = tonumber(ARGV[3]) or 0
  redis.call('HSET', KEYS[1], 'average_rating', ARGV[3])
else
  rating = tonumber(redis.call('HGET', KEYS[1], 'average_rating')) or 0
end
local reviews = tonumber(redis.call('HGET', KEYS[1], 'review_count')) or 0
local function damp(n)
  if n <= 0 then return 0 end
  return 10 * math.log(1 + n)
end
local pop = tonumber(ARGV[4]) * rating * 20
  + tonumber(ARGV[5]) * damp(reviews)
  + tonumber(ARGV[6]) * damp(bookings)
  + tonumber(ARGV[7]) * damp(views)
redis.call('HSET', KEYS[1], 'popularity_score', tostring(pop))
if redis.call('ZSCORE', KEYS[2], id) then
  redis.call('ZADD', KEYS[2], pop, id)
  redis.call('ZADD', KEYS[3], bookings, id)
  if ARGV[3] ~= '' then redis.call('ZADD', KEYS[4], rating, id) end
end
redis.call('INCR', 'epoch:search:all')
local city = redis.call('HGET', KEYS[1], 'city')
if city then redis.call('INCR', 'epoch:search:city:'..string.lower(city)) end
return 1
`)

// reindexScript rebuilds every auxiliary index from the primary hashes
// reachable from the canonical id set. It repairs index drift without
// touching the entity source.
//
// KEYS: [1]=properties:all
// Reply: number of documents reindexed
var reindexScript = redis.NewScript(`
local families = {'city:*', 'type:*', 'amenity:*', 'service:*', 'dyn:*', 'index:*', 'geo:*'}
for _, pat in ipairs(families) do
  for _, k in ipairs(redis.call('KEYS', pat)) do redis.call('DEL', k) end
end
redis.call('DEL', 'featured')
local n = 0
for _, id in ipairs(redis.call('SMEMBERS', KEYS[1])) do
  local h = redis.call('HGETALL', 'property:'..id)
  local f = {}
  for i = 1, #h, 2 do f[h[i]] = h[i+1] end
  if f['id'] then
    n = n + 1
    if f['is_active'] == '1' and f['is_approved'] == '1' then
      if f['city'] and f['city'] ~= '' then
        redis.call('SADD', 'city:'..string.lower(f['city']), id)
      end
      if f['type_id'] and f['type_id'] ~= '' then
        redis.call('SADD', 'type:'..f['type_id'], id)
      end
      for _, a in ipairs(cjson.decode(f['amenity_ids'] or '[]')) do
        redis.call('SADD', 'amenity:'..a, id)
      end
      for _, sv in ipairs(cjson.decode(f['service_ids'] or '[]')) do
        redis.call('SADD', 'service:'..sv, id)
      end
      for field, value in pairs(cjson.decode(f['dynamic_fields'] or '{}')) do
        redis.call('SADD', 'dyn:'..field..':'..value, id)
      end
      if f['is_featured'] == '1' then redis.call('SADD', 'featured', id) end
      redis.call('ZADD', 'index:price', tonumber(f['min_price']) or 0, id)
      redis.call('ZADD', 'index:rating', tonumber(f['average_rating']) or 0, id)
      redis.call('ZADD', 'index:created', tonumber(f['created_unix']) or 0, id)
      redis.call('ZADD', 'index:bookings', tonumber(f['booking_count']) or 0, id)
      redis.call('ZADD', 'index:popularity', tonumber(f['popularity_score']) or 0, id)
      local lat = tonumber(f['latitude']) or 0
      local lng = tonumber(f['longitude']) or 0
      if lat ~= 0 or lng ~= 0 then
        redis.call('GEOADD', 'geo:properties', lng, lat, id)
        if f['city'] and f['city'] ~= '' then
          redis.call('GEOADD', 'geo:city:'..string.lower(f['city']), lng, lat, id)
        end
      end
    end
  end
end
redis.call('INCR', 'epoch:search:all')
return n
`)

// cleanupScript sweeps expired availability ranges, orphaned tmp keys and
// cache entries that lost their TTL.
//
// ARGV: [1]=now unix
// Reply: array {expired ranges, orphaned tmp keys, ttl-less cache entries}
var cleanupScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local expired = 0
for _, k in ipairs(redis.call('KEYS', 'avail:*')) do
  for _, f in ipairs(redis.call('HKEYS', k)) do
    local _, e = string.match(f, '^(%d+):(%d+):')
    if e and tonumber(e) <= now then
      redis.call('HDEL', k, f)
      expired = expired + 1
    end
  end
end
local orphans = 0
for _, k in ipairs(redis.call('KEYS', 'tmp:*')) do
  redis.call('DEL', k)
  orphans = orphans + 1
end
local stale = 0
for _, k in ipairs(redis.call('KEYS', 'cache:*')) do
  if redis.call('PTTL', k) == -1 then
    redis.call('DEL', k)
    stale = stale + 1
  end
end
return {expired, orphans, stale}
`)

func scriptTable() map[string]*redis.Script {
	return map[string]*redis.Script{
		"search":       searchScript,
		"availability": availabilityScript,
		"stats_update": statsScript,
		"reindex":      reindexScript,
		"cleanup":      cleanupScript,
	}
}

// RegisterScripts loads every procedure into the store and records the
// current sha per name. A sha recorded by a previous deployment that no
// longer matches is re-registered with a warning.
func (s *Store) RegisterScripts(ctx context.Context) error {
	stored, err := s.c.HGetAll(ctx, keyScriptsReg).Result()
	if err != nil {
		return fmt.Errorf("script registry read: %w", err)
	}
	fields := make(map[string]string, len(scriptTable()))
	for name, script := range scriptTable() {
		if prev, ok := stored[name]; ok && prev != script.Hash() {
			log.Warn().
				Str("script", name).
				Str("registered", prev).
				Str("current", script.Hash()).
				Msg("script drift detected, re-registering")
		}
		if err := script.Load(ctx, s.c).Err(); err != nil {
			return fmt.Errorf("load script %s: %w", name, err)
		}
		fields[name] = script.Hash()
	}
	if err := s.c.HSet(ctx, keyScriptsReg, fields).Err(); err != nil {
		return fmt.Errorf("script registry write: %w", err)
	}
	return nil
}

// runSearchScript executes the eligible pipeline server-side.
func (s *Store) runSearchScript(ctx context.Context, req domain.SearchRequest, memberKeys []string) (int, []string, error) {
	sortKey, desc := sortZset(req.Sort)
	keys := append([]string{sortKey, keyIdxPrice, keyIdxRating}, memberKeys...)
	offset := (req.Page - 1) * req.PageSize
	raw, err := searchScript.Run(ctx, s.c, keys,
		fstr(req.MinPrice), fstr(req.MaxPrice), fstr(req.MinRating),
		bstr(desc), offset, req.PageSize, s.maxResults).Result()
	if err != nil {
		return 0, nil, err
	}
	arr, ok := raw.([]interface{})
	if !ok || len(arr) == 0 {
		return 0, nil, fmt.Errorf("search script: unexpected reply %T", raw)
	}
	total, ok := arr[0].(int64)
	if !ok {
		return 0, nil, fmt.Errorf("search script: unexpected total %T", arr[0])
	}
	ids := make([]string, 0, len(arr)-1)
	for _, v := range arr[1:] {
		id, ok := v.(string)
		if !ok {
			return 0, nil, fmt.Errorf("search script: unexpected id %T", v)
		}
		ids = append(ids, id)
	}
	return int(total), ids, nil
}

// runAvailabilityScript answers the stay-window check server-side.
func (s *Store) runAvailabilityScript(ctx context.Context, propertyID string, checkIn, checkOut time.Time, guests int) (bool, error) {
	raw, err := availabilityScript.Run(ctx, s.c,
		[]string{keyProperty(propertyID), keyPropertyUnits(propertyID)},
		checkIn.Unix(), checkOut.Unix(), guests).Int64()
	if err != nil {
		return false, err
	}
	if raw < 0 {
		return false, domain.ErrNotFound
	}
	return raw == 1, nil
}

// runStatsScript applies the statistics update atomically in the store.
func (s *Store) runStatsScript(ctx context.Context, id string, viewDelta, bookingDelta int64, rating *float64) error {
	ratingArg := ""
	if rating != nil {
		ratingArg = fstr(*rating)
	}
	raw, err := statsScript.Run(ctx, s.c,
		[]string{keyProperty(id), keyIdxPop, keyIdxBookings, keyIdxRating},
		viewDelta, bookingDelta, ratingArg,
		fstr(domain.WeightRating), fstr(domain.WeightReviews),
		fstr(domain.WeightBookings), fstr(domain.WeightViews)).Int64()
	if err != nil {
		return err
	}
	if raw == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RunReindex rebuilds the auxiliary indexes from the primary hashes.
func (s *Store) RunReindex(ctx context.Context) (int64, error) {
	return reindexScript.Run(ctx, s.c, []string{keyAll}).Int64()
}

// RunCleanup sweeps expired and orphaned keys.
func (s *Store) RunCleanup(ctx context.Context) (domain.CleanupReport, error) {
	raw, err := cleanupScript.Run(ctx, s.c, nil, time.Now().Unix()).Result()
	if err != nil {
		return domain.CleanupReport{}, err
	}
	arr, ok := raw.([]interface{})
	if !ok || len(arr) != 3 {
		return domain.CleanupReport{}, fmt.Errorf("cleanup script: unexpected reply %T", raw)
	}
	nums := make([]int64, 3)
	for i, v := range arr {
		n, ok := v.(int64)
		if !ok {
			return domain.CleanupReport{}, fmt.Errorf("cleanup script: unexpected counter %T", v)
		}
		nums[i] = n
	}
	return domain.CleanupReport{ExpiredRanges: nums[0], OrphanedKeys: nums[1], UnexpiredCache: nums[2]}, nil
}
