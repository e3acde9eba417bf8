package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/jobctl/internal/auth"
	"github.com/makeasinger/jobctl/internal/client"
	"github.com/makeasinger/jobctl/internal/handler"
	"github.com/makeasinger/jobctl/internal/middleware"
	"github.com/makeasinger/jobctl/internal/model"
	"github.com/makeasinger/jobctl/internal/schema"
	"github.com/makeasinger/jobctl/internal/search"
	"github.com/makeasinger/jobctl/internal/service"
	"github.com/makeasinger/jobctl/internal/store"
)

const testJWTSecret = "test-secret-for-e2e"

// testDefaults seed every job the test app creates
var testDefaults = service.Defaults{Priority: 3, Attempts: 1}

// countingStore records how many times the job store is touched and can
// be told to fail writes.
type countingStore struct {
	store.JobStore
	calls   atomic.Int64
	saveErr error
}

func (s *countingStore) touch() { s.calls.Add(1) }

func (s *countingStore) Get(ctx context.Context, id string) (*model.Job, error) {
	s.touch()
	return s.JobStore.Get(ctx, id)
}

func (s *countingStore) Save(ctx context.Context, job *model.Job) error {
	s.touch()
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.JobStore.Save(ctx, job)
}

func (s *countingStore) Remove(ctx context.Context, id string) error {
	s.touch()
	return s.JobStore.Remove(ctx, id)
}

func (s *countingStore) Range(ctx context.Context, q store.RangeQuery) ([]*model.Job, error) {
	s.touch()
	return s.JobStore.Range(ctx, q)
}

func (s *countingStore) Count(ctx context.Context, state model.JobState) (int64, error) {
	s.touch()
	return s.JobStore.Count(ctx, state)
}

// testApp holds all components needed for testing
type testApp struct {
	app   *fiber.App
	store *countingStore
	redis *miniredis.Miniredis
}

// setupApp creates a Fiber app wired like main.go, backed by the in-memory
// job store and a miniredis instance for search and rate limiting.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	jobStore := &countingStore{JobStore: store.NewMemoryStore()}

	schemas := schema.New(validator.New())
	schemas.Register("email", schema.Rules{
		"to":      "required,email",
		"subject": "omitempty,max=200",
	})
	schemas.Register("report", schema.Rules{
		"format": "required,oneof=csv json",
	})

	jobService, err := service.NewJobService(service.Deps{
		Defaults:  testDefaults,
		Store:     jobStore,
		Index:     search.NewRedisIndex(redisClient, "q:search"),
		Validator: schemas,
		Files:     client.Router{Local: client.LocalFS{}},
	})
	if err != nil {
		t.Fatalf("failed to create job service: %v", err)
	}

	jobHandler := handler.NewJobHandler(jobService)
	authHandler := handler.NewAuthHandler(testJWTSecret)
	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New()

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"store":  "memory",
				"search": "redis",
				"r2":     false,
				"auth":   true,
			},
		})
	})
	app.Get("/auth/verify", authHandler.Verify)

	app.Get("/stats", jobHandler.Stats)
	app.Get("/job/types", jobHandler.Types)
	app.Get("/jobs/*", jobHandler.Range)
	app.Get("/job/:id", jobHandler.Get)
	app.Get("/job/:id/output", jobHandler.Output)
	app.Get("/job/:id/log", jobHandler.Log)
	app.Get("/search", jobHandler.Search)

	// Use a very high rate limit so tests don't get blocked
	protect := authMiddleware.Authenticate()
	app.Post("/job", protect, rateLimiter.CreateLimit(10000), jobHandler.Create)
	app.Delete("/job/:id", protect, jobHandler.Remove)
	app.Put("/job/:id/priority/:priority", protect, jobHandler.UpdatePriority)
	app.Put("/job/:id/state/:state", protect, jobHandler.UpdateState)

	return &testApp{app: app, store: jobStore, redis: mr}
}

// generateToken creates an HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	signed, err := auth.IssueToken(testJWTSecret, "test-user-123", "test@example.com", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// createJob posts a job and returns its id.
func createJob(t *testing.T, ta *testApp, body string) string {
	t.Helper()
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "http://example.com/job", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 creating job, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	id, _ := parseJSON(t, resp)["id"].(string)
	if id == "" {
		t.Fatal("expected job id in response")
	}
	return id
}

// setOutput marks a job complete with the given output, as a worker would.
func setOutput(t *testing.T, ta *testApp, id string, output interface{}) {
	t.Helper()
	ctx := context.Background()
	job, err := ta.store.JobStore.Get(ctx, id)
	if err != nil {
		t.Fatalf("failed to load job %s: %v", id, err)
	}
	job.State = model.JobStateComplete
	job.Output = output
	if err := ta.store.JobStore.Save(ctx, job); err != nil {
		t.Fatalf("failed to save job %s: %v", id, err)
	}
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// parseJSONArray parses response body into a slice.
func parseJSONArray(t *testing.T, resp *http.Response) []interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result []interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON array: %v\nbody: %s", err, body)
	}
	return result
}

// errorCode extracts error.code from an error envelope.
func errorCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	code, _ := e["code"].(string)
	return code
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
