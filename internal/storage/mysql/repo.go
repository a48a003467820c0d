package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
)

// Repo reads property aggregates from the platform's relational store. It
// never writes: the tables are owned by the booking platform, this subsystem
// only projects them into the index.
type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) GetByID(ctx context.Context, id string) (domain.PropertyAggregate, error) {
	agg, err := scanProperty(r.db.QueryRowContext(ctx, getPropertySQL, id))
	if err == sql.ErrNoRows {
		return domain.PropertyAggregate{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PropertyAggregate{}, err
	}
	units, err := r.unitsFor(ctx, []string{id})
	if err != nil {
		return domain.PropertyAggregate{}, err
	}
	agg.Units = units[agg.ID]
	return agg, nil
}

// GetPaged returns one page of aggregates ordered by id plus the total row
// count, so rebuild progress can be reported against a stable denominator.
func (r *Repo) GetPaged(ctx context.Context, page, size int) ([]domain.PropertyAggregate, int, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 100
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countPropertiesSQL).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, listPropertiesSQL, size, (page-1)*size)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var aggs []domain.PropertyAggregate
	var ids []string
	for rows.Next() {
		agg, err := scanProperty(rows)
		if err != nil {
			// one unreadable row must not sink the whole batch
			log.Warn().Err(err).Msg("skipping corrupt property row")
			continue
		}
		aggs = append(aggs, agg)
		ids = append(ids, agg.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	units, err := r.unitsFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range aggs {
		aggs[i].Units = units[aggs[i].ID]
	}
	return aggs, total, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanProperty(row rowScanner) (domain.PropertyAggregate, error) {
	var agg domain.PropertyAggregate
	var (
		description, city, address sql.NullString
		lat, lon                   sql.NullFloat64
		typeID, typeName           sql.NullString
		starRating                 sql.NullInt64
		amenityIDs, amenityNames   []byte
		serviceIDs, imageURLs      []byte
		dynFields                  []byte
		createdAt, updatedAt       sql.NullTime
	)
	if err := row.Scan(
		&agg.ID,
		&agg.Name,
		&description,
		&city,
		&address,
		&lat, &lon,
		&typeID, &typeName,
		&starRating,
		&agg.AverageRating,
		&agg.ReviewCount,
		&agg.BookingCount,
		&agg.ViewCount,
		&agg.IsActive,
		&agg.IsApproved,
		&agg.IsFeatured,
		&amenityIDs, &amenityNames,
		&serviceIDs, &imageURLs,
		&dynFields,
		&createdAt, &updatedAt,
	); err != nil {
		return domain.PropertyAggregate{}, err
	}

	agg.Description = description.String
	agg.City = city.String
	agg.Address = address.String
	if lat.Valid && lon.Valid {
		agg.Latitude, agg.Longitude = lat.Float64, lon.Float64
	}
	agg.TypeID = typeID.String
	agg.TypeName = typeName.String
	agg.StarRating = int(starRating.Int64)

	_ = json.Unmarshal(amenityIDs, &agg.AmenityIDs)
	_ = json.Unmarshal(amenityNames, &agg.AmenityNames)
	_ = json.Unmarshal(serviceIDs, &agg.ServiceIDs)
	_ = json.Unmarshal(imageURLs, &agg.ImageURLs)
	_ = json.Unmarshal(dynFields, &agg.DynamicFields)

	if createdAt.Valid {
		agg.CreatedAt = createdAt.Time.UTC()
	}
	if updatedAt.Valid {
		agg.UpdatedAt = updatedAt.Time.UTC()
	}
	return agg, nil
}

func (r *Repo) unitsFor(ctx context.Context, ids []string) (map[string][]domain.UnitRecord, error) {
	out := make(map[string][]domain.UnitRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, listUnitsPrefix+"("+strings.Join(ph, ",")+")"+listUnitsSuffix, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var u domain.UnitRecord
		var unitTypeID, unitTypeName sql.NullString
		var createdAt, updatedAt sql.NullTime
		if err := rows.Scan(
			&u.ID,
			&u.PropertyID,
			&u.Name,
			&unitTypeID,
			&unitTypeName,
			&u.MaxCapacity,
			&u.BasePrice,
			&u.Currency,
			&u.IsActive,
			&u.IsAvailable,
			&createdAt,
			&updatedAt,
		); err != nil {
			log.Warn().Err(err).Msg("skipping corrupt unit row")
			continue
		}
		u.UnitTypeID = unitTypeID.String
		u.UnitTypeName = unitTypeName.String
		if createdAt.Valid {
			u.CreatedAt = createdAt.Time.UTC()
		}
		if updatedAt.Valid {
			u.UpdatedAt = updatedAt.Time.UTC()
		}
		out[u.PropertyID] = append(out[u.PropertyID], u)
	}
	return out, rows.Err()
}
