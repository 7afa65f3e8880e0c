//go:build integration

package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "landdev/internal/adapters/http_server"
	redisad "landdev/internal/adapters/redis"
	"landdev/internal/app"
	"landdev/internal/shared"
	mysqlrepo "landdev/internal/storage/mysql"
)

const secret = "e2e-secret"

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	// Start isolated MySQL container
	pool, err := dockertest.NewPool("")
	require.NoError(t, err, "dockertest")
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=landdev",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err, "run mysql")
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/landdev?parseTime=true&charset=utf8mb4,utf8&loc=UTC",
		resource.GetPort("3306/tcp"))

	var db *sql.DB
	require.NoError(t, pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}), "connect mysql")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, mysqlrepo.Migrate(context.Background(), db), "migrate")
	return db
}

// startAPI wires the real router, services, MySQL and an in-memory redis.
func startAPI(t *testing.T, db *sql.DB) *httptest.Server {
	t.Helper()
	reg, err := shared.LoadRegistry()
	require.NoError(t, err, "registry")
	mr := miniredis.RunT(t)
	cache := redisad.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = cache.Close() })

	repo := mysqlrepo.New(db, 5*time.Second)
	srv := httpserver.New(nil)
	srv.MountHandlers(&httpserver.Handlers{
		Q:      app.NewQueryService(repo, repo, cache, reg, time.Minute),
		R:      app.NewRecordService(repo, cache, reg, false),
		I:      app.NewIngestionService(nil, repo, cache, 4),
		M:      app.NewMaintenanceService(repo, cache),
		Secret: secret,
	})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func call(t *testing.T, method, url, body string, hdr map[string]string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "%s %s", method, url)
	defer res.Body.Close()
	var env envelope
	require.NoError(t, json.NewDecoder(res.Body).Decode(&env), "decode")
	return res.StatusCode, env
}

func countReviews(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM reviews`).Scan(&n))
	return n
}

type listedReview struct {
	ReviewText string `json:"review_text"`
	ReviewDate string `json:"review_date"`
}

func listReviews(t *testing.T, url string) []listedReview {
	t.Helper()
	status, env := call(t, http.MethodGet, url, "", nil)
	require.Equal(t, http.StatusOK, status)
	var out []listedReview
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

// ---------- the tests ----------
func TestHTTP_EndToEnd_PartialUpdate(t *testing.T) {
	db := startMySQL(t)
	ts := startAPI(t, db)

	status, env := call(t, http.MethodPost, ts.URL+"/api/projects", `{"projectName":"Oakwood","city":"Dallas"}`, nil)
	require.Equal(t, http.StatusCreated, status, "create project: %+v", env.Error)
	var project struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &project))

	status, env = call(t, http.MethodPost, ts.URL+"/api/deal-pipeline",
		fmt.Sprintf(`{"projectId":%d,"stage":"Prospective","landPrice":"100,000","acreage":2,"bank":"First"}`, project.ID), nil)
	require.Equal(t, http.StatusCreated, status, "create deal: %+v", env.Error)
	var deal map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &deal))
	dealURL := fmt.Sprintf("%s/api/deal-pipeline/%v", ts.URL, deal["id"])

	status, env = call(t, http.MethodPatch, dealURL, `{"city":"Austin","acreage":4,"bank":null}`, nil)
	require.Equal(t, http.StatusOK, status, "patch: %+v", env.Error)
	var got map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "Austin", got["city"])
	assert.Equal(t, "Prospective", got["stage"])
	assert.Nil(t, got["bank"])
	assert.InDelta(t, 100000.0/(4*43560), got["pricePerSqFt"], 0.0001)

	// the core write is visible through the core entity too
	_, env = call(t, http.MethodGet, fmt.Sprintf("%s/api/projects/%d", ts.URL, project.ID), "", nil)
	assert.Contains(t, string(env.Data), `"city":"Austin"`)

	status, _ = call(t, http.MethodPatch, dealURL, `{"stage":"Maybe"}`, nil)
	assert.Equal(t, http.StatusBadRequest, status, "bad enum")
	status, _ = call(t, http.MethodPatch, dealURL, `{"preConManagerId":424242}`, nil)
	assert.Equal(t, http.StatusBadRequest, status, "unknown reference")
}

func TestHTTP_EndToEnd_ReviewsAndDedupe(t *testing.T) {
	db := startMySQL(t)
	ts := startAPI(t, db)

	body := `{"reviews":[
		{"property_name":"Oakwood","reviewer_name":" John Smith ","review_text":"first","scraped_at":1704067200000},
		{"property_name":"Oakwood","reviewer_name":"John Smith","review_text":"second","scraped_at":1706745600},
		{"property_name":"Oakwood","reviewer_name":"John Smith","review_text":"second","scraped_at":1706745600},
		{"property_name":"Oakwood","reviewer_name":"Ann","review_text":"nice","review_date":"1969-12-31","review_year":2022,"review_month":6},
		{"property_name":"Oakwood","reviewer_name":"Ann","review_text":"nice","review_date":"1969-12-31","review_year":2022,"review_month":6}
	]}`
	status, env := call(t, http.MethodPost, ts.URL+"/api/reviews/bulk", body, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"inserted":3,"skipped":2,"total":5}`, string(env.Data))

	// anonymous reviews are skipped when ingested again
	anon := `[{"property_name":"Maple","review_text":"quiet street"}]`
	_, env = call(t, http.MethodPost, ts.URL+"/api/reviews/bulk", anon, nil)
	assert.JSONEq(t, `{"inserted":1,"skipped":0,"total":1}`, string(env.Data))
	_, env = call(t, http.MethodPost, ts.URL+"/api/reviews/bulk", anon, nil)
	assert.JSONEq(t, `{"inserted":0,"skipped":1,"total":1}`, string(env.Data))

	// warm a list at an arbitrary limit
	oakURL := ts.URL + "/api/reviews?property=Oakwood&limit=7"
	require.Len(t, listReviews(t, oakURL), 3)

	before := countReviews(t, db)
	status, _ = call(t, http.MethodPost, ts.URL+"/api/reviews/dedupe", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, before, countReviews(t, db), "unauthenticated dedupe must not delete")

	status, _ = call(t, http.MethodPost, ts.URL+"/api/reviews/dedupe?dryRun=true", "", map[string]string{httpserver.MaintenanceHeader: secret})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, before, countReviews(t, db), "dry run must not delete")

	status, env = call(t, http.MethodPost, ts.URL+"/api/reviews/dedupe", "", map[string]string{httpserver.MaintenanceHeader: secret})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"deleted":1,"dryRun":false}`, string(env.Data))

	// the cached list follows the deletion
	left := listReviews(t, oakURL)
	require.Len(t, left, 2)
	for _, r := range left {
		assert.NotEqual(t, "first", r.ReviewText, "older scrape should have been removed")
		if r.ReviewText == "nice" {
			assert.True(t, strings.HasPrefix(r.ReviewDate, "2022-06-15"), "mid-month placeholder, got %q", r.ReviewDate)
		}
	}
}
