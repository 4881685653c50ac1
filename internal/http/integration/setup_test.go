package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/geocoder89/forumhub/internal/auth"
	"github.com/geocoder89/forumhub/internal/cache"
	"github.com/geocoder89/forumhub/internal/db"
	apphttp "github.com/geocoder89/forumhub/internal/http"
	"github.com/geocoder89/forumhub/internal/http/handlers"
	"github.com/geocoder89/forumhub/internal/observability"
	"github.com/geocoder89/forumhub/internal/repo/postgres"
	"github.com/geocoder89/forumhub/internal/rpc"
	"github.com/geocoder89/forumhub/internal/security"
)

const testSecret = "integration-secret"

type testApp struct {
	router *gin.Engine
	pool   *pgxpool.Pool
	prom   *observability.Prom
}

// setupApp wires the real router against the database in TEST_DB_DSN.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx, dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{URL: dsn, AppName: "forumhub-test"})
	if err != nil {
		t.Fatalf("Failed to create pgx pool: %v", err)
	}
	t.Cleanup(pool.Close)

	resetDB(t, pool)

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	jobsRepo := postgres.NewJobsRepo(pool, prom)
	usersRepo := postgres.NewUsersRepo(pool, prom)
	postsRepo := postgres.NewPostsRepo(pool, prom, jobsRepo)
	commentsRepo := postgres.NewCommentsRepo(pool, prom)
	groupsRepo := postgres.NewGroupsRepo(pool, prom, jobsRepo)

	tokens, err := auth.NewManager(testSecret, 2*time.Hour)
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	creds := auth.NewCredentialService(usersRepo, security.NewHasher(4), []string{"moderator"})

	feed := cache.New(time.Minute)

	d := rpc.NewDispatcher(tokens, rpc.WithObserver(prom), rpc.WithLogger(logger))
	d.Register(handlers.NewUsersHandler(creds, tokens, usersRepo, postsRepo, nil, handlers.UsersOptions{Feed: feed}, logger).Procedures()...)
	d.Register(handlers.NewPostsHandler(postsRepo, commentsRepo, groupsRepo, feed, time.Minute, logger).Procedures()...)
	d.Register(handlers.NewCommentsHandler(commentsRepo, postsRepo, groupsRepo, logger).Procedures()...)
	d.Register(handlers.NewGroupsHandler(groupsRepo, usersRepo, postsRepo, logger).Procedures()...)
	d.Register(handlers.NewJobsHandler(jobsRepo, logger).Procedures()...)

	router := apphttp.NewRouter(apphttp.RouterConfig{
		Env:                    "test",
		AllowedOrigins:         []string{"http://localhost:3000"},
		RateLimitAuthPerMinute: 100,
	}, logger, d, handlers.NewHealthHandler(map[string]handlers.Pinger{"postgres": pool}), prom, reg)

	return &testApp{router: router, pool: pool, prom: prom}
}

func resetDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `
		TRUNCATE notice_deliveries, jobs, post_reports, comments, posts, group_invitations, group_members, groups, users
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (a *testApp) mutate(t *testing.T, procedure string, body any, cookies ...*http.Cookie) (envelope, *http.Response) {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/rpc/"+procedure, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return a.do(t, req, cookies...)
}

func (a *testApp) query(t *testing.T, procedure string, input any, cookies ...*http.Cookie) (envelope, *http.Response) {
	t.Helper()

	path := "/rpc/" + procedure
	if input != nil {
		raw, err := json.Marshal(input)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		path += "?input=" + url.QueryEscape(string(raw))
	}

	return a.do(t, httptest.NewRequest(http.MethodGet, path, nil), cookies...)
}

func (a *testApp) do(t *testing.T, req *http.Request, cookies ...*http.Cookie) (envelope, *http.Response) {
	t.Helper()

	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
	if env.Status != w.Code {
		t.Fatalf("envelope status %d does not match http %d", env.Status, w.Code)
	}
	return env, w.Result()
}

func tokenCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()

	for _, c := range resp.Cookies() {
		if c.Name == rpc.SessionCookieName {
			return c
		}
	}
	t.Fatalf("token cookie not found in response")
	return nil
}

// signUpAndIn registers username and returns its session cookie.
func (a *testApp) signUpAndIn(t *testing.T, username string) *http.Cookie {
	t.Helper()

	env, _ := a.mutate(t, "user.signUp", map[string]string{
		"name": "Tester " + username, "username": username, "password": "rahasia123",
	})
	if env.Status != http.StatusCreated {
		t.Fatalf("signUp %s: %d %s", username, env.Status, env.Message)
	}

	env, resp := a.mutate(t, "user.signIn", map[string]string{"username": username, "password": "rahasia123"})
	if env.Status != http.StatusOK {
		t.Fatalf("signIn %s: %d %s", username, env.Status, env.Message)
	}
	return tokenCookie(t, resp)
}
