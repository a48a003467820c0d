package redisindex

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
)

// Hash codec. Documents are stored as explicit field maps: scalars as
// strings, list and map fields JSON-encoded inside single hash fields.
// Empty collections round-trip to nil so stored and parsed documents
// compare equal.

func propertyFields(d domain.PropertyDoc) map[string]string {
	return map[string]string{
		"id":               d.ID,
		"name":             d.Name,
		"name_lower":       d.NameLower,
		"description":      d.Description,
		"city":             d.City,
		"address":          d.Address,
		"latitude":         fstr(d.Latitude),
		"longitude":        fstr(d.Longitude),
		"type_id":          d.TypeID,
		"type_name":        d.TypeName,
		"star_rating":      strconv.Itoa(d.StarRating),
		"min_price":        fstr(d.MinPrice),
		"max_price":        fstr(d.MaxPrice),
		"avg_price":        fstr(d.AvgPrice),
		"currency":         d.Currency,
		"average_rating":   fstr(d.AverageRating),
		"review_count":     strconv.FormatInt(d.ReviewCount, 10),
		"booking_count":    strconv.FormatInt(d.BookingCount, 10),
		"view_count":       strconv.FormatInt(d.ViewCount, 10),
		"max_capacity":     strconv.Itoa(d.MaxCapacity),
		"unit_count":       strconv.Itoa(d.UnitCount),
		"amenity_ids":      jlist(d.AmenityIDs),
		"amenity_names":    jlist(d.AmenityNames),
		"service_ids":      jlist(d.ServiceIDs),
		"image_urls":       jlist(d.ImageURLs),
		"dynamic_fields":   jmap(d.DynamicFields),
		"is_active":        bstr(d.IsActive),
		"is_approved":      bstr(d.IsApproved),
		"is_featured":      bstr(d.IsFeatured),
		"popularity_score": fstr(d.PopularityScore),
		"created_at":       tstr(d.CreatedAt),
		// created_unix duplicates created_at in seconds for server-side
		// procedures that cannot parse RFC3339
		"created_unix": strconv.FormatInt(d.CreatedAt.Unix(), 10),
		"updated_at":   tstr(d.UpdatedAt),
		"indexed_at":   tstr(d.IndexedAt),
	}
}

func parseProperty(m map[string]string) (domain.PropertyDoc, error) {
	if m["id"] == "" {
		return domain.PropertyDoc{}, domain.ErrNotFound
	}
	var d domain.PropertyDoc
	var err error
	d.ID = m["id"]
	d.Name = m["name"]
	d.NameLower = m["name_lower"]
	d.Description = m["description"]
	d.City = m["city"]
	d.Address = m["address"]
	p := fieldParser{m: m}
	d.Latitude = p.f("latitude")
	d.Longitude = p.f("longitude")
	d.TypeID = m["type_id"]
	d.TypeName = m["type_name"]
	d.StarRating = p.i("star_rating")
	d.MinPrice = p.f("min_price")
	d.MaxPrice = p.f("max_price")
	d.AvgPrice = p.f("avg_price")
	d.Currency = m["currency"]
	d.AverageRating = p.f("average_rating")
	d.ReviewCount = p.i64("review_count")
	d.BookingCount = p.i64("booking_count")
	d.ViewCount = p.i64("view_count")
	d.MaxCapacity = p.i("max_capacity")
	d.UnitCount = p.i("unit_count")
	if d.AmenityIDs, err = plist(m["amenity_ids"]); err != nil {
		return d, fmt.Errorf("amenity_ids: %w", err)
	}
	if d.AmenityNames, err = plist(m["amenity_names"]); err != nil {
		return d, fmt.Errorf("amenity_names: %w", err)
	}
	if d.ServiceIDs, err = plist(m["service_ids"]); err != nil {
		return d, fmt.Errorf("service_ids: %w", err)
	}
	if d.ImageURLs, err = plist(m["image_urls"]); err != nil {
		return d, fmt.Errorf("image_urls: %w", err)
	}
	if d.DynamicFields, err = pmap(m["dynamic_fields"]); err != nil {
		return d, fmt.Errorf("dynamic_fields: %w", err)
	}
	d.IsActive = m["is_active"] == "1"
	d.IsApproved = m["is_approved"] == "1"
	d.IsFeatured = m["is_featured"] == "1"
	d.PopularityScore = p.f("popularity_score")
	if d.CreatedAt, err = ptime(m["created_at"]); err != nil {
		return d, fmt.Errorf("created_at: %w", err)
	}
	if d.UpdatedAt, err = ptime(m["updated_at"]); err != nil {
		return d, fmt.Errorf("updated_at: %w", err)
	}
	if d.IndexedAt, err = ptime(m["indexed_at"]); err != nil {
		return d, fmt.Errorf("indexed_at: %w", err)
	}
	if p.err != nil {
		return d, p.err
	}
	return d, nil
}

func unitFields(u domain.UnitDoc) map[string]string {
	return map[string]string{
		"id":             u.ID,
		"property_id":    u.PropertyID,
		"name":           u.Name,
		"unit_type_id":   u.UnitTypeID,
		"unit_type_name": u.UnitTypeName,
		"max_capacity":   strconv.Itoa(u.MaxCapacity),
		"base_price":     fstr(u.BasePrice),
		"currency":       u.Currency,
		"is_active":      bstr(u.IsActive),
		"is_available":   bstr(u.IsAvailable),
		"created_at":     tstr(u.CreatedAt),
		"updated_at":     tstr(u.UpdatedAt),
	}
}

func parseUnit(m map[string]string) (domain.UnitDoc, error) {
	if m["id"] == "" {
		return domain.UnitDoc{}, domain.ErrNotFound
	}
	var u domain.UnitDoc
	var err error
	p := fieldParser{m: m}
	u.ID = m["id"]
	u.PropertyID = m["property_id"]
	u.Name = m["name"]
	u.UnitTypeID = m["unit_type_id"]
	u.UnitTypeName = m["unit_type_name"]
	u.MaxCapacity = p.i("max_capacity")
	u.BasePrice = p.f("base_price")
	u.Currency = m["currency"]
	u.IsActive = m["is_active"] == "1"
	u.IsAvailable = m["is_available"] == "1"
	if u.CreatedAt, err = ptime(m["created_at"]); err != nil {
		return u, fmt.Errorf("created_at: %w", err)
	}
	if u.UpdatedAt, err = ptime(m["updated_at"]); err != nil {
		return u, fmt.Errorf("updated_at: %w", err)
	}
	if p.err != nil {
		return u, p.err
	}
	return u, nil
}

// rangeField is the hash field name for one availability range. The unix
// bounds lead so server-side scripts can test overlap without decoding the
// JSON value.
func rangeField(r domain.AvailabilityRange) string {
	return fmt.Sprintf("%d:%d:%s", r.Start.Unix(), r.End.Unix(), r.Status)
}

// rangeFieldBounds recovers the window from a range field name; the client
// overlap check uses it the same way the server-side procedure does.
func rangeFieldBounds(f string) (start, end time.Time, ok bool) {
	parts := strings.SplitN(f, ":", 3)
	if len(parts) != 3 {
		return time.Time{}, time.Time{}, false
	}
	su, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	eu, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return time.Unix(su, 0).UTC(), time.Unix(eu, 0).UTC(), true
}

type rangeRecord struct {
	UnitID    string             `json:"unit_id"`
	Start     int64              `json:"start"`
	End       int64              `json:"end"`
	Status    domain.RangeStatus `json:"status"`
	BookingID string             `json:"booking_id,omitempty"`
}

func rangeValue(r domain.AvailabilityRange) (string, error) {
	b, err := json.Marshal(rangeRecord{
		UnitID:    r.UnitID,
		Start:     r.Start.Unix(),
		End:       r.End.Unix(),
		Status:    r.Status,
		BookingID: r.BookingID,
	})
	return string(b), err
}

func parseRange(v string) (domain.AvailabilityRange, error) {
	var rec rangeRecord
	if err := json.Unmarshal([]byte(v), &rec); err != nil {
		return domain.AvailabilityRange{}, err
	}
	return domain.AvailabilityRange{
		UnitID:    rec.UnitID,
		Start:     time.Unix(rec.Start, 0).UTC(),
		End:       time.Unix(rec.End, 0).UTC(),
		Status:    rec.Status,
		BookingID: rec.BookingID,
	}, nil
}

func ruleField(r domain.PricingRule) string {
	return fmt.Sprintf("%s:%d:%d:%s", r.Kind, r.Start.Unix(), r.End.Unix(), r.Tier)
}

type ruleRecord struct {
	UnitID          string          `json:"unit_id"`
	Kind            domain.RuleKind `json:"kind"`
	Start           int64           `json:"start"`
	End             int64           `json:"end"`
	Amount          float64         `json:"amount"`
	Currency        string          `json:"currency,omitempty"`
	Tier            string          `json:"tier,omitempty"`
	PercentageDelta float64         `json:"percentage_delta,omitempty"`
	MinPrice        float64         `json:"min_price,omitempty"`
	MaxPrice        float64         `json:"max_price,omitempty"`
}

func ruleValue(r domain.PricingRule) (string, error) {
	b, err := json.Marshal(ruleRecord{
		UnitID:          r.UnitID,
		Kind:            r.Kind,
		Start:           r.Start.Unix(),
		End:             r.End.Unix(),
		Amount:          r.Amount,
		Currency:        r.Currency,
		Tier:            r.Tier,
		PercentageDelta: r.PercentageDelta,
		MinPrice:        r.MinPrice,
		MaxPrice:        r.MaxPrice,
	})
	return string(b), err
}

func parseRule(v string) (domain.PricingRule, error) {
	var rec ruleRecord
	if err := json.Unmarshal([]byte(v), &rec); err != nil {
		return domain.PricingRule{}, err
	}
	return domain.PricingRule{
		UnitID:          rec.UnitID,
		Kind:            rec.Kind,
		Start:           time.Unix(rec.Start, 0).UTC(),
		End:             time.Unix(rec.End, 0).UTC(),
		Amount:          rec.Amount,
		Currency:        rec.Currency,
		Tier:            rec.Tier,
		PercentageDelta: rec.PercentageDelta,
		MinPrice:        rec.MinPrice,
		MaxPrice:        rec.MaxPrice,
	}, nil
}

// scalar helpers

func fstr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func bstr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func tstr(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func ptime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func jlist(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func plist(s string) ([]string, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func jmap(v map[string]string) string {
	if len(v) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func pmap(s string) (map[string]string, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// fieldParser accumulates the first numeric parse failure instead of
// threading an error through every assignment.
type fieldParser struct {
	m   map[string]string
	err error
}

func (p *fieldParser) f(field string) float64 {
	s := p.m[field]
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", field, err)
	}
	return v
}

func (p *fieldParser) i(field string) int {
	s := p.m[field]
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", field, err)
	}
	return v
}

func (p *fieldParser) i64(field string) int64 {
	s := p.m[field]
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", field, err)
	}
	return v
}
