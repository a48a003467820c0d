package mysql

// The relational schema belongs to the booking platform; this package only
// reads it. Every query lives here so the SQL surface stays greppable in one
// place.

const countPropertiesSQL = `SELECT COUNT(*) FROM properties`

const propertyColumns = `
  p.id,
  p.name,
  p.description,
  p.city,
  p.address,
  p.lat,
  p.lon,
  p.type_id,
  p.type_name,
  p.star_rating,
  p.average_rating,
  p.review_count,
  p.booking_count,
  p.view_count,
  p.is_active,
  p.is_approved,
  p.is_featured,
  p.amenity_ids,
  p.amenity_names,
  p.service_ids,
  p.image_urls,
  p.dynamic_fields,
  p.created_at,
  p.updated_at
`

const getPropertySQL = `SELECT` + propertyColumns + `FROM properties p
WHERE p.id = ?
`

const listPropertiesSQL = `SELECT` + propertyColumns + `FROM properties p
ORDER BY p.id
LIMIT ? OFFSET ?
`

// Units are loaded per id batch; the caller completes the IN clause with one
// placeholder per id.
const listUnitsPrefix = `
SELECT
  u.id,
  u.property_id,
  u.name,
  u.unit_type_id,
  u.unit_type_name,
  u.max_capacity,
  u.base_price,
  u.currency,
  u.is_active,
  u.is_available,
  u.created_at,
  u.updated_at
FROM units u
WHERE u.property_id IN `

const listUnitsSuffix = `
ORDER BY u.property_id, u.id`
