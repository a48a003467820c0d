//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
	mysqlrepo "github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/storage/mysql"
)

func migrationsDir(t *testing.T) string {
	t.Helper()
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		return dir
	}
	return filepath.Join("..", "..", "..", "migrations")
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := migrationsDir(t)

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir %s: %v", dir, err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)

	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	stmts := []string{
		`INSERT INTO properties
		   (id, name, description, city, address, lat, lon, type_id, type_name, star_rating,
		    average_rating, review_count, booking_count, view_count,
		    is_active, is_approved, is_featured,
		    amenity_ids, amenity_names, service_ids, image_urls, dynamic_fields)
		 VALUES
		   ('p1', 'Sanaa Heights Hotel', 'Rooftop terrace above the old city souq.', 'Sanaa', 'Old City 12',
		    15.3694, 44.1910, 'hotel', 'Hotel', 4,
		    4.2, 57, 31, 412,
		    1, 1, 1,
		    '["wifi","parking"]', '["Wi-Fi","Parking"]', '["breakfast"]', '["https://img/p1.jpg"]', '{"view":"sea"}')`,
		`INSERT INTO properties
		   (id, name, city, is_active, is_approved)
		 VALUES
		   ('p2', 'Aden Bay Resort', 'Aden', 1, 0)`,
		`INSERT INTO units
		   (id, property_id, name, unit_type_id, unit_type_name, max_capacity, base_price, currency, is_active, is_available)
		 VALUES
		   ('u1', 'p1', 'Deluxe Double', 'double', 'Double Room', 3, 120, 'USD', 1, 1),
		   ('u2', 'p1', 'Family Suite', 'suite', 'Suite', 6, 300, 'USD', 1, 1)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestRepo_MySQL_AggregateReads(t *testing.T) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}

	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=bookn",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:%s@tcp(127.0.0.1:%s)/%s?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		"root", hostPort, "bookn")

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)
	seed(t, db)

	repo := mysqlrepo.New(db)
	ctx := context.Background()

	agg, err := repo.GetByID(ctx, "p1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if agg.Name != "Sanaa Heights Hotel" || agg.City != "Sanaa" || agg.StarRating != 4 {
		t.Fatalf("aggregate off: %+v", agg)
	}
	if !agg.IsActive || !agg.IsApproved || !agg.IsFeatured {
		t.Fatalf("flags off: %+v", agg)
	}
	if agg.Latitude != 15.3694 || agg.Longitude != 44.1910 {
		t.Fatalf("coords off: %v %v", agg.Latitude, agg.Longitude)
	}
	if len(agg.AmenityIDs) != 2 || agg.AmenityIDs[0] != "wifi" {
		t.Fatalf("amenities off: %v", agg.AmenityIDs)
	}
	if agg.DynamicFields["view"] != "sea" {
		t.Fatalf("dynamic fields off: %v", agg.DynamicFields)
	}
	if len(agg.Units) != 2 || agg.Units[0].ID != "u1" || agg.Units[1].BasePrice != 300 {
		t.Fatalf("units off: %+v", agg.Units)
	}
	if agg.CreatedAt.IsZero() || agg.Units[0].CreatedAt.IsZero() {
		t.Fatalf("timestamps not scanned")
	}

	if _, err := repo.GetByID(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// paged scan: one row per page, stable id order, constant total
	page1, total, err := repo.GetPaged(ctx, 1, 1)
	if err != nil {
		t.Fatalf("GetPaged: %v", err)
	}
	if total != 2 || len(page1) != 1 || page1[0].ID != "p1" {
		t.Fatalf("page 1 off: total=%d %+v", total, page1)
	}
	if len(page1[0].Units) != 2 {
		t.Fatalf("page 1 units off: %+v", page1[0].Units)
	}
	page2, total, err := repo.GetPaged(ctx, 2, 1)
	if err != nil {
		t.Fatalf("GetPaged: %v", err)
	}
	if total != 2 || len(page2) != 1 || page2[0].ID != "p2" {
		t.Fatalf("page 2 off: total=%d %+v", total, page2)
	}
	if len(page2[0].Units) != 0 {
		t.Fatalf("p2 should have no units: %+v", page2[0].Units)
	}
	page3, _, err := repo.GetPaged(ctx, 3, 1)
	if err != nil {
		t.Fatalf("GetPaged: %v", err)
	}
	if len(page3) != 0 {
		t.Fatalf("page past the end should be empty: %+v", page3)
	}
}
