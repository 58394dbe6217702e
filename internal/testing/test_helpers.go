// test_helpers.go - full-stack suite over a temporary database and uploads dir
package testing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"trackhub/internal/api"
	"trackhub/internal/backend"
	"trackhub/internal/catalog"
	"trackhub/internal/data"
	"trackhub/internal/middleware"
	"trackhub/internal/server"
	"trackhub/internal/storage"
	"trackhub/internal/wizard"
)

// TestConfig holds configuration for test runs
type TestConfig struct {
	DBPath      string
	CatalogPath string
	UploadsDir  string
	TestDataDir string
	RateLimit   int
	Now         time.Time
}

// TestSuite runs the whole server stack behind httptest.
type TestSuite struct {
	Config  TestConfig
	Server  *httptest.Server
	Client  *http.Client
	App     *server.App
	Catalog *catalog.Service
	Drafts  *wizard.Store
	Images  *MockImageStore
	Service *backend.Service
	mu      sync.Mutex
	userSeq int
}

// APIEnvelope is the response shape every /api endpoint uses.
type APIEnvelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	Details   string          `json:"details"`
	RequestID string          `json:"request_id"`
}

// NewTestSuite creates a suite with a generous rate limit.
func NewTestSuite(t *testing.T) *TestSuite {
	return NewTestSuiteWithLimit(t, 10000)
}

func NewTestSuiteWithLimit(t *testing.T, rateLimit int) *TestSuite {
	t.Helper()
	testDir := t.TempDir()

	config := TestConfig{
		DBPath:      filepath.Join(testDir, "test.db"),
		CatalogPath: filepath.Join(testDir, "levels.json"),
		UploadsDir:  filepath.Join(testDir, "uploads"),
		TestDataDir: testDir,
		RateLimit:   rateLimit,
		Now:         time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC),
	}

	suite := &TestSuite{
		Config: config,
		Client: &http.Client{Timeout: 30 * time.Second},
	}

	if err := suite.InitDatabase(); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { data.CloseDB() })

	if err := createTestCatalog(config.CatalogPath); err != nil {
		t.Fatalf("Failed to create test catalog: %v", err)
	}
	suite.Catalog = catalog.NewService()
	if err := suite.Catalog.LoadFromFile(config.CatalogPath); err != nil {
		t.Fatalf("Failed to load test catalog: %v", err)
	}

	clock := func() time.Time { return config.Now }

	// An empty base URL yields server-relative image URLs.
	local, err := storage.NewLocalStore(config.UploadsDir, "", 1<<20)
	if err != nil {
		t.Fatalf("Failed to create uploads store: %v", err)
	}
	suite.Images = NewMockImageStore(local)

	suite.Service = backend.New(suite.Images, backend.Config{
		SessionTTL:          time.Hour,
		PlaceholderImageURL: "/static/event-placeholder.svg",
		Clock:               clock,
	})
	suite.Drafts = wizard.NewStore()
	limiter := middleware.NewRateLimiter(rateLimit, time.Minute)
	handler := api.NewHandler(suite.Service, suite.Catalog, suite.Drafts, limiter, api.Options{Clock: clock})

	suite.App = server.New(handler.Routes(), server.Options{
		UploadsDir:     config.UploadsDir,
		RequestTimeout: 10 * time.Second,
	})
	suite.Server = httptest.NewServer(suite.App.Handler())
	t.Cleanup(suite.Server.Close)

	return suite
}

// InitDatabase sets up the test database with the production schema
func (ts *TestSuite) InitDatabase() error {
	if err := data.InitDB(ts.Config.DBPath); err != nil {
		return fmt.Errorf("failed to init data package: %w", err)
	}
	if err := data.CreateTables(); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// ExecuteWithRetry executes a database operation with retry logic for BUSY errors
func (ts *TestSuite) ExecuteWithRetry(operation func() error, maxRetries int) error {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if err := operation(); err != nil {
			lastErr = err
			if isBusyError(err) {
				backoff := time.Duration(i+1) * 10 * time.Millisecond
				time.Sleep(backoff)
				continue
			}
			return err // Non-BUSY error, don't retry
		}
		return nil
	}
	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, lastErr)
}

// isBusyError checks if an error is a SQLite BUSY error
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked")
}

// UniqueUsername returns a username no other call in this suite has used.
func (ts *TestSuite) UniqueUsername(prefix string) string {
	ts.mu.Lock()
	ts.userSeq++
	n := ts.userSeq
	ts.mu.Unlock()
	return fmt.Sprintf("%s-%d", prefix, n)
}

// Register creates a profile through the API and returns its id and token.
func (ts *TestSuite) Register(t *testing.T, kind data.ProfileKind, username string) (string, string) {
	t.Helper()

	resp, err := ts.MakeAPIRequest(http.MethodGet, "/api/csrf-token", nil, "")
	ts.AssertNoError(t, err)
	var env APIEnvelope
	ts.AssertNoError(t, ts.ParseJSONResponse(resp, &env))
	var csrf struct {
		Token string `json:"csrf_token"`
	}
	ts.AssertNoError(t, json.Unmarshal(env.Data, &csrf))

	body, _ := json.Marshal(map[string]string{"kind": string(kind), "username": username})
	req, err := http.NewRequest(http.MethodPost, ts.Server.URL+"/api/profiles", bytes.NewReader(body))
	ts.AssertNoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", csrf.Token)

	resp, err = ts.Client.Do(req)
	ts.AssertNoError(t, err)
	ts.AssertStatusCode(t, resp, http.StatusCreated)
	env = APIEnvelope{}
	ts.AssertNoError(t, ts.ParseJSONResponse(resp, &env))

	var out struct {
		Profile data.Profile `json:"profile"`
		Token   string       `json:"token"`
	}
	ts.AssertNoError(t, json.Unmarshal(env.Data, &out))
	return out.Profile.ID, out.Token
}

// MakeAPIRequest makes an API request with an optional bearer token
func (ts *TestSuite) MakeAPIRequest(method, path string, body interface{}, token string) (*http.Response, error) {
	var reqBody *bytes.Buffer

	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(bodyBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return ts.Client.Do(req)
}

// Call makes a request and decodes the envelope, failing on transport errors.
func (ts *TestSuite) Call(t *testing.T, method, path string, body interface{}, token string) (int, APIEnvelope) {
	t.Helper()
	resp, err := ts.MakeAPIRequest(method, path, body, token)
	ts.AssertNoError(t, err)
	var env APIEnvelope
	if err := ts.ParseJSONResponse(resp, &env); err != nil {
		t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return resp.StatusCode, env
}

// ParseJSONResponse parses a JSON response into the provided interface
func (ts *TestSuite) ParseJSONResponse(resp *http.Response, dest interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(dest)
}

// AssertStatusCode checks if response has expected status code
func (ts *TestSuite) AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertNoError fails the test if error is not nil
func (ts *TestSuite) AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

// AssertError fails the test if error is nil
func (ts *TestSuite) AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("Expected error but got nil")
	}
}

// WaitForCondition waits for a condition to be true or timeout
func (ts *TestSuite) WaitForCondition(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}

// Decode unmarshals the envelope data into v.
func Decode[T any](t *testing.T, env APIEnvelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode data: %v (%s)", err, env.Data)
	}
	return v
}

// createTestCatalog writes a level catalog with one unavailable level
func createTestCatalog(path string) error {
	catalog := map[string]interface{}{
		"levels": []map[string]interface{}{
			{"id": 1, "name": "Novice", "available": true},
			{"id": 2, "name": "Intermediate", "available": true},
			{"id": 3, "name": "Advanced", "available": true},
			{"id": 4, "name": "Instructor", "available": false},
		},
	}

	b, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}
