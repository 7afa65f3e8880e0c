//go:build integration

package mysql_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landdev/internal/domain"
	mysqlrepo "landdev/internal/storage/mysql"
)

// ---------- small helpers ----------
func pstr(s string) *string { return &s }

func ptime(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	// Start isolated MySQL; let Docker pick a free host port.
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
	// a second run is a no-op
	require.NoError(t, mysqlrepo.Migrate(context.Background(), db), "migrate again")
	return db
}

func countReviews(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM reviews`).Scan(&n))
	return n
}

// ---------- the tests ----------
func TestRepo_MySQL_CascadeUpdate(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db, 5*time.Second)
	ctx := context.Background()

	projects := entity(t, "projects")
	uc := entity(t, "under-contracts")

	pid, err := repo.Insert(ctx, projects, []domain.Assignment{assign(t, projects, "projectName", "Oakwood")})
	require.NoError(t, err)
	id, err := repo.Insert(ctx, uc, []domain.Assignment{
		assign(t, uc, "projectId", pid),
		assign(t, uc, "landPrice", 100000.0),
		assign(t, uc, "acreage", 2.0),
		assign(t, uc, "sellerName", "Acme Land"),
	})
	require.NoError(t, err)

	require.NoError(t, repo.UpdateFields(ctx, uc, id, domain.Changes{
		Primary: []domain.Assignment{assign(t, uc, "landPrice", 200000.0)},
		Core:    []domain.Assignment{assign(t, uc, "city", "Austin")},
	}))

	rec, err := repo.GetByID(ctx, uc, id)
	require.NoError(t, err)
	assert.Equal(t, "Austin", rec["city"])
	assert.Equal(t, "Oakwood", rec["projectName"])
	assert.Equal(t, "Acme Land", rec["sellerName"])
	assert.InDelta(t, 200000.0/(2*43560), rec["pricePerSqFt"], 0.0001)

	// relinking and renaming in one update renames the new project
	pid2, err := repo.Insert(ctx, projects, []domain.Assignment{assign(t, projects, "projectName", "Maple")})
	require.NoError(t, err)
	require.NoError(t, repo.UpdateFields(ctx, uc, id, domain.Changes{
		Primary: []domain.Assignment{assign(t, uc, "projectId", pid2)},
		Core:    []domain.Assignment{assign(t, uc, "projectName", "Maple II")},
	}))
	old, err := repo.GetByID(ctx, projects, pid)
	require.NoError(t, err)
	assert.Equal(t, "Oakwood", old["projectName"])
	rec, err = repo.GetByID(ctx, uc, id)
	require.NoError(t, err)
	assert.Equal(t, "Maple II", rec["projectName"])

	// an unknown foreign key is a client error
	_, err = repo.Insert(ctx, uc, []domain.Assignment{assign(t, uc, "projectId", int64(999999))})
	assert.ErrorIs(t, err, domain.ErrForeignKey)
}

func TestRepo_MySQL_ReviewsInsertAndDedupe(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db, 5*time.Second)
	ctx := context.Background()

	rows := []domain.StoredReview{
		{PropertyName: "Oakwood", ReviewerName: pstr(" John Smith "), ReviewText: pstr("old text"), ScrapedAt: ptime("2024-01-01T00:00:00Z")},
		{PropertyName: "Oakwood", ReviewerName: pstr("john smith"), ReviewText: pstr("new text"), ScrapedAt: ptime("2024-02-01T00:00:00Z")},
		{PropertyName: "Oakwood", ReviewerName: nil, ReviewText: pstr("anon 1")},
		{PropertyName: "Oakwood", ReviewerName: nil, ReviewText: pstr("anon 2")},
		{PropertyName: "Maple", ReviewerName: pstr("Ann"), ReviewText: pstr("ok")},
		{PropertyName: "Maple", ReviewerName: pstr("Cy"), ReviewText: nil},
		{PropertyName: "Birch", ReviewerName: pstr("Renée"), ReviewText: pstr("lovely")},
		{PropertyName: "Birch", ReviewerName: pstr("Renee"), ReviewText: pstr("lovely")},
	}
	for _, r := range rows {
		ok, err := repo.InsertIfAbsent(ctx, r)
		require.NoError(t, err)
		require.True(t, ok, "insert %+v", r)
	}

	// re-ingesting is a no-op, including rows with NULL reviewer or text
	for _, i := range []int{2, 4, 5} {
		ok, err := repo.InsertIfAbsent(ctx, rows[i])
		require.NoError(t, err)
		assert.False(t, ok, "row %d should be skipped", i)
	}
	require.Equal(t, 8, countReviews(t, db))

	n, err := repo.RankAndDeleteDuplicates(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 6, countReviews(t, db))

	oak := "Oakwood"
	left, err := repo.ListReviews(ctx, domain.ReviewQuery{Property: &oak, Limit: 50})
	require.NoError(t, err)
	for _, r := range left {
		if r.ReviewerName != nil {
			assert.Equal(t, "new text", *r.ReviewText, "latest scrape survives")
		}
	}

	// accented and plain names are different reviewers
	birch := "Birch"
	left, err = repo.ListReviews(ctx, domain.ReviewQuery{Property: &birch, Limit: 50})
	require.NoError(t, err)
	assert.Len(t, left, 2)
}
