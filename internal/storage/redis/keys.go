package redisindex

import "strings"

// Key schema. Every key the subsystem touches is built here so the layout
// stays greppable in one place.
//
//	property:{id}            hash    primary property document
//	unit:{id}                hash    unit document
//	property:{id}:units      set     unit ids of a property
//	properties:all           set     every indexed property id
//	city:{city}              set     visible properties per lowercased city
//	type:{typeId}            set     visible properties per property type
//	amenity:{amenityId}      set     visible properties per amenity
//	service:{serviceId}      set     visible properties per service
//	featured                 set     visible featured properties
//	dyn:{field}:{value}      set     exact-match dynamic field index
//	index:price              zset    score = min price
//	index:rating             zset    score = average rating
//	index:created            zset    score = created-at unix seconds
//	index:bookings           zset    score = booking count
//	index:popularity         zset    score = popularity score
//	geo:properties           geo     all visible properties
//	geo:city:{city}          geo     visible properties per city
//	avail:{unitId}           hash    field start:end:status, value JSON range
//	pricing:{unitId}         hash    field kind:start:end:tier, value JSON rule
//	epoch:search:all         string  global search cache epoch
//	epoch:search:city:{city} string  per-city search cache epoch
//	stats:index              hash    subsystem markers (bootstrap, rebuild, cleanup)
//	scripts:registry         hash    script name -> registered sha1
//	cache:*                  string  cache tier entries (owned by adapters/cache)
//	tmp:*                    any     transient work markers, swept by cleanup
//	events:index             pubsub  mutation event envelopes
const (
	keyAll         = "properties:all"
	keyFeatured    = "featured"
	keyGeoAll      = "geo:properties"
	keyIdxPrice    = "index:price"
	keyIdxRating   = "index:rating"
	keyIdxCreated  = "index:created"
	keyIdxBookings = "index:bookings"
	keyIdxPop      = "index:popularity"
	keyEpochAll    = "epoch:search:all"
	keyStats       = "stats:index"
	keyScriptsReg  = "scripts:registry"
	eventsChannel  = "events:index"
)

func keyProperty(id string) string { return "property:" + id }
func keyUnit(id string) string { return "unit:" + id }
func keyPropertyUnits(id string) string { return "property:" + id + ":units" }
func keyCity(city string) string { return "city:" + strings.ToLower(city) }
func keyType(id string) string { return "type:" + id }
func keyAmenity(id string) string { return "amenity:" + id }
func keyService(id string) string { return "service:" + id }
func keyGeoCity(city string) string { return "geo:city:" + strings.ToLower(city) }
func keyAvailability(unitID string) string { return "avail:" + unitID }
func keyPricing(unitID string) string { return "pricing:" + unitID }

func keyDynamic(field, value string) string { return "dyn:" + field + ":" + value }

func keyRebuildMarker(runID string) string { return "tmp:rebuild:" + runID }

func keyEpochCity(city string) string { return "epoch:search:city:" + strings.ToLower(city) }
