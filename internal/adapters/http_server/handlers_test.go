package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/adapters/fx"
	httpserver "github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/adapters/http_server"
	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/app"
	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/resilience"
	redisindex "github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/storage/redis"
)

// ---- fakes ----

type memRepo struct{ aggs map[string]domain.PropertyAggregate }

func (m *memRepo) GetByID(ctx context.Context, id string) (domain.PropertyAggregate, error) {
	agg, ok := m.aggs[id]
	if !ok {
		return domain.PropertyAggregate{}, domain.ErrNotFound
	}
	return agg, nil
}

func (m *memRepo) GetPaged(ctx context.Context, page, size int) ([]domain.PropertyAggregate, int, error) {
	if page > 1 {
		return nil, len(m.aggs), nil
	}
	out := make([]domain.PropertyAggregate, 0, len(m.aggs))
	for _, a := range m.aggs {
		out = append(out, a)
	}
	return out, len(m.aggs), nil
}

func seedAggregate(id, city string) domain.PropertyAggregate {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return domain.PropertyAggregate{
		ID:         id,
		Name:       "Heights Hotel " + id,
		City:       city,
		TypeID:     "hotel",
		TypeName:   "Hotel",
		StarRating: 4,
		IsActive:   true,
		IsApproved: true,
		Units: []domain.UnitRecord{{
			ID: "u-" + id, PropertyID: id, Name: "Deluxe Double",
			MaxCapacity: 2, BasePrice: 100, Currency: "USD",
			IsActive: true, IsAvailable: true,
			CreatedAt: created, UpdatedAt: created,
		}},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// newTestServer wires the real facade over a miniredis-backed store, then
// serves it through the production router.
func newTestServer(t *testing.T, aggs map[string]domain.PropertyAggregate) (*httptest.Server, *app.Service) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { c.Close() })

	exec := resilience.NewExecutor(2*time.Second, 3, 30*time.Second)
	rates := fx.NewStatic("USD", map[string]float64{"USD": 1, "SAR": 3.75})
	store := redisindex.NewStore(c, exec, rates, redisindex.Options{})
	repo := &memRepo{aggs: aggs}

	svc := app.NewService(app.ServiceOptions{
		Repo:     repo,
		Index:    store,
		Searcher: store,
		Maint:    store,
		Quoter:   store,
		Exec:     exec,
		Health:   resilience.NewHealthMonitor(time.Minute, store.Ping, exec.AnyOpen),
		Rebuild:  app.NewRebuilder(repo, store, store, 50, 100, 2),
	})
	t.Cleanup(svc.Close)

	srv := httpserver.New()
	srv.MountHandlers(&httpserver.Handlers{Svc: svc})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts, svc
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, raw
}

// ---- tests ----

func TestSearchEndpoint(t *testing.T) {
	ts, svc := newTestServer(t, map[string]domain.PropertyAggregate{"p1": seedAggregate("p1", "Sanaa")})
	if err := svc.OnPropertyCreated(context.Background(), "p1"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, raw := doJSON(t, http.MethodPost, ts.URL+"/v1/search", domain.SearchRequest{City: "Sanaa"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, raw)
	}
	var page domain.SearchResult
	if err := json.Unmarshal(raw, &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.TotalCount != 1 || len(page.Items) != 1 || page.Items[0].ID != "p1" {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Degraded {
		t.Fatalf("live page marked degraded")
	}
}

func TestSearchRejectsBadBody(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	res, err := http.Post(ts.URL+"/v1/search", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/problem+json") {
		t.Fatalf("content type %q", ct)
	}
}

func TestGetPropertyETagRoundTrip(t *testing.T) {
	ts, svc := newTestServer(t, map[string]domain.PropertyAggregate{"p1": seedAggregate("p1", "Sanaa")})
	if err := svc.OnPropertyCreated(context.Background(), "p1"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, raw := doJSON(t, http.MethodGet, ts.URL+"/v1/properties/p1", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, raw)
	}
	etag := res.Header.Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}
	var doc domain.PropertyDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.ID != "p1" || doc.MinPrice != 100 {
		t.Fatalf("unexpected doc: %+v", doc)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/properties/p1", nil)
	req.Header.Set("If-None-Match", etag)
	res2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("conditional GET: %v", err)
	}
	defer res2.Body.Close()
	if res2.StatusCode != http.StatusNotModified {
		t.Fatalf("status %d, want 304", res2.StatusCode)
	}
	if res2.Header.Get("ETag") != etag {
		t.Fatalf("ETag missing on 304")
	}
}

func TestGetPropertyNotFound(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	res, raw := doJSON(t, http.MethodGet, ts.URL+"/v1/properties/ghost", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d: %s", res.StatusCode, raw)
	}
	var p struct {
		Title  string `json:"title"`
		Status int    `json:"status"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	if p.Title != "Not Found" || p.Status != http.StatusNotFound {
		t.Fatalf("unexpected problem: %+v", p)
	}
}

func TestAvailabilityEndpoint(t *testing.T) {
	ts, svc := newTestServer(t, map[string]domain.PropertyAggregate{"p1": seedAggregate("p1", "Sanaa")})
	ctx := context.Background()
	if err := svc.OnPropertyCreated(ctx, "p1"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ranges := []domain.AvailabilityRange{{
		UnitID: "u-p1",
		Start:  time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		Status: domain.RangeBooked,
	}}
	if err := svc.OnAvailabilityChanged(ctx, "u-p1", "p1", ranges); err != nil {
		t.Fatalf("availability: %v", err)
	}

	get := func(q string) availability {
		t.Helper()
		res, raw := doJSON(t, http.MethodGet, ts.URL+"/v1/properties/p1/availability?"+q, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", res.StatusCode, raw)
		}
		var out availability
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return out
	}

	if out := get("check_in=2026-06-10&check_out=2026-06-12&guests=2"); out.Available {
		t.Fatalf("booked window reported available")
	}
	if out := get("check_in=2026-07-01&check_out=2026-07-05&guests=2"); !out.Available {
		t.Fatalf("free window reported unavailable")
	}
	// only unit sleeps two
	if out := get("check_in=2026-07-01&check_out=2026-07-05&guests=5"); out.Available {
		t.Fatalf("capacity ignored")
	}
}

type availability struct {
	PropertyID string `json:"property_id"`
	Available  bool   `json:"available"`
	Guests     int    `json:"guests"`
}

func TestAvailabilityValidation(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	for _, q := range []string{
		"",
		"check_in=2026-06-10",
		"check_in=not-a-date&check_out=2026-06-12",
		"check_in=2026-06-12&check_out=2026-06-10",
		"check_in=2026-06-10&check_out=2026-06-12&guests=0",
	} {
		res, _ := doJSON(t, http.MethodGet, ts.URL+"/v1/properties/p1/availability?"+q, nil)
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("query %q: status %d, want 400", q, res.StatusCode)
		}
	}
}

func TestQuoteEndpoint(t *testing.T) {
	ts, svc := newTestServer(t, map[string]domain.PropertyAggregate{"p1": seedAggregate("p1", "Sanaa")})
	if err := svc.OnPropertyCreated(context.Background(), "p1"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, raw := doJSON(t, http.MethodGet, ts.URL+"/v1/units/u-p1/quote?check_in=2026-06-01&check_out=2026-06-03", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, raw)
	}
	var q struct {
		UnitID   string  `json:"unit_id"`
		Nightly  float64 `json:"nightly_price"`
		Currency string  `json:"currency"`
	}
	if err := json.Unmarshal(raw, &q); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if q.UnitID != "u-p1" || q.Nightly != 100 || q.Currency != "USD" {
		t.Fatalf("unexpected quote: %+v", q)
	}

	if res, _ := doJSON(t, http.MethodGet, ts.URL+"/v1/units/ghost/quote?check_in=2026-06-01&check_out=2026-06-03", nil); res.StatusCode != http.StatusNotFound {
		t.Fatalf("ghost unit: status %d, want 404", res.StatusCode)
	}
	if res, _ := doJSON(t, http.MethodGet, ts.URL+"/v1/units/u-p1/quote?check_in=2026-06-01", nil); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing check_out: status %d, want 400", res.StatusCode)
	}
}

func TestHealthzReportsVerdict(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	res, raw := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, raw)
	}
	var h struct {
		Status         string `json:"status"`
		StoreReachable bool   `json:"store_reachable"`
	}
	if err := json.Unmarshal(raw, &h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Status != string(domain.HealthHealthy) || !h.StoreReachable {
		t.Fatalf("unexpected health: %+v", h)
	}
}

func TestAdminRebuildAndOptimize(t *testing.T) {
	ts, _ := newTestServer(t, map[string]domain.PropertyAggregate{
		"p1": seedAggregate("p1", "Sanaa"),
		"p2": seedAggregate("p2", "Aden"),
	})

	res, raw := doJSON(t, http.MethodPost, ts.URL+"/v1/admin/rebuild", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("rebuild status %d: %s", res.StatusCode, raw)
	}
	var rep domain.RebuildReport
	if err := json.Unmarshal(raw, &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.Total != 2 || rep.Processed != 2 || rep.Failed != 0 || rep.SuccessRate != 100 {
		t.Fatalf("unexpected report: %+v", rep)
	}

	res, raw = doJSON(t, http.MethodPost, ts.URL+"/v1/admin/optimize", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("optimize status %d: %s", res.StatusCode, raw)
	}
	var clean domain.CleanupReport
	if err := json.Unmarshal(raw, &clean); err != nil {
		t.Fatalf("decode cleanup: %v", err)
	}

	res, raw = doJSON(t, http.MethodGet, ts.URL+"/v1/statistics", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("statistics status %d: %s", res.StatusCode, raw)
	}
	var st domain.Statistics
	if err := json.Unmarshal(raw, &st); err != nil {
		t.Fatalf("decode statistics: %v", err)
	}
	if st.IndexedCount != 2 || !st.StoreReachable {
		t.Fatalf("unexpected statistics: %+v", st)
	}

	res, raw = doJSON(t, http.MethodPost, ts.URL+"/v1/search", domain.SearchRequest{})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("search status %d: %s", res.StatusCode, raw)
	}
	var page domain.SearchResult
	if err := json.Unmarshal(raw, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.TotalCount != 2 {
		t.Fatalf("rebuilt index incomplete: %+v", page)
	}
}
