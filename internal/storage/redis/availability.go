package redisindex

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
)

// ReplaceAvailability swaps a unit's whole availability timeline in one
// transaction. The timeline may land before its unit document; the write
// still succeeds so ingestion order does not matter.
func (s *Store) ReplaceAvailability(ctx context.Context, unitID string, ranges []domain.AvailabilityRange) error {
	propertyID := ""
	err := s.mutate(ctx, "replace_availability", func(ctx context.Context) error {
		var city string
		var err error
		propertyID, city, err = s.unitOwner(ctx, unitID)
		if err != nil {
			return err
		}
		fields := make(map[string]string, len(ranges))
		for _, r := range ranges {
			if !r.Start.Before(r.End) {
				log.Warn().
					Str("unit_id", unitID).
					Time("start", r.Start).
					Time("end", r.End).
					Msg("dropping empty availability range")
				continue
			}
			r.UnitID = unitID
			v, err := rangeValue(r)
			if err != nil {
				return fmt.Errorf("encode range: %w", err)
			}
			fields[rangeField(r)] = v
		}
		_, err = s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, keyAvailability(unitID))
			if len(fields) > 0 {
				p.HSet(ctx, keyAvailability(unitID), fields)
			}
			bumpEpochs(ctx, p, city)
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("replace availability %s: %w", unitID, err)
	}
	s.publish(ctx, "availability.updated", propertyID, unitID)
	return nil
}

// unitOwner resolves the owning property and its city from the stored unit
// document; both come back empty when the unit is not indexed yet.
func (s *Store) unitOwner(ctx context.Context, unitID string) (propertyID, city string, err error) {
	propertyID, err = s.c.HGet(ctx, keyUnit(unitID), "property_id").Result()
	if err == redis.Nil {
		return "", "", nil
	}
	if err != nil {
		return "", "", err
	}
	city, err = s.c.HGet(ctx, keyProperty(propertyID), "city").Result()
	if err == redis.Nil {
		return propertyID, "", nil
	}
	if err != nil {
		return "", "", err
	}
	return propertyID, city, nil
}

// AvailabilityRanges returns a unit's stored timeline ordered by start.
func (s *Store) AvailabilityRanges(ctx context.Context, unitID string) ([]domain.AvailabilityRange, error) {
	var ranges []domain.AvailabilityRange
	err := s.readOp(ctx, "availability_ranges", func(ctx context.Context) error {
		vals, err := s.c.HVals(ctx, keyAvailability(unitID)).Result()
		if err != nil {
			return err
		}
		ranges = ranges[:0]
		for _, v := range vals {
			r, err := parseRange(v)
			if err != nil {
				log.Warn().Err(err).Str("unit_id", unitID).Msg("skipping corrupt availability range")
				continue
			}
			ranges = append(ranges, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("availability ranges %s: %w", unitID, err)
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start.Before(ranges[j].Start) })
	return ranges, nil
}

// availableUnits lists the property's active units that can host the guest
// count and have no range overlapping the half-open stay window. Overlap is
// decided from the range field names alone, matching the server-side check.
func (s *Store) availableUnits(ctx context.Context, propertyID string, checkIn, checkOut time.Time, guests int) ([]domain.UnitDoc, error) {
	unitIDs, err := s.c.SMembers(ctx, keyPropertyUnits(propertyID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(unitIDs)
	var free []domain.UnitDoc
	for _, uid := range unitIDs {
		m, err := s.c.HGetAll(ctx, keyUnit(uid)).Result()
		if err != nil {
			return nil, err
		}
		if len(m) == 0 {
			continue
		}
		u, err := parseUnit(m)
		if err != nil {
			log.Warn().Err(err).Str("unit_id", uid).Msg("skipping corrupt unit document")
			continue
		}
		if !u.IsActive {
			continue
		}
		if guests > 0 && u.MaxCapacity < guests {
			continue
		}
		fields, err := s.c.HKeys(ctx, keyAvailability(uid)).Result()
		if err != nil {
			return nil, err
		}
		blocked := false
		for _, f := range fields {
			start, end, ok := rangeFieldBounds(f)
			if !ok {
				continue
			}
			if start.Before(checkOut) && end.After(checkIn) {
				blocked = true
				break
			}
		}
		if !blocked {
			free = append(free, u)
		}
	}
	return free, nil
}

func (s *Store) checkAvailabilityClient(ctx context.Context, propertyID string, checkIn, checkOut time.Time, guests int) (bool, error) {
	exists, err := s.c.Exists(ctx, keyProperty(propertyID)).Result()
	if err != nil {
		return false, err
	}
	if exists == 0 {
		return false, domain.ErrNotFound
	}
	units, err := s.availableUnits(ctx, propertyID, checkIn, checkOut, guests)
	if err != nil {
		return false, err
	}
	return len(units) > 0, nil
}
