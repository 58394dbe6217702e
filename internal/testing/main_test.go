package testing

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"trackhub/internal/data"
	"trackhub/internal/levels"
	"trackhub/internal/logger"
	"trackhub/internal/security"
	"trackhub/internal/wizard"
)

var runLoad = flag.Bool("load", false, "Run load tests")

func TestMain(m *testing.M) {
	flag.Parse()
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type createdDraft struct {
	ID    string       `json:"id"`
	Draft wizard.Draft `json:"draft"`
}

type submitted struct {
	ID      string         `json:"id"`
	Outcome wizard.Outcome `json:"outcome"`
}

type feed struct {
	Posts []data.Post `json:"posts"`
}

// createEvent runs the whole wizard over HTTP and returns the outcome.
func createEvent(t *testing.T, suite *TestSuite, token string, td TestEventData) wizard.Outcome {
	t.Helper()

	code, env := suite.Call(t, http.MethodPost, "/api/wizards", nil, token)
	if code != http.StatusCreated {
		t.Fatalf("create wizard: %d %s", code, env.Message)
	}
	draft := Decode[createdDraft](t, env)

	code, env = suite.Call(t, http.MethodPost, "/api/wizards/"+draft.ID+"/actions",
		map[string]interface{}{"actions": td.ToActions()}, token)
	if code != http.StatusOK {
		t.Fatalf("apply actions: %d %s (%s)", code, env.Message, env.Details)
	}

	code, env = suite.Call(t, http.MethodPost, "/api/wizards/"+draft.ID+"/submit", nil, token)
	if code != http.StatusCreated {
		t.Fatalf("submit: %d %s", code, env.Message)
	}
	return Decode[submitted](t, env).Outcome
}

// TestSystemIntegration runs the user journeys end to end
func TestSystemIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	t.Run("FullEventFlow", testFullEventFlow)
	t.Run("MembersOnlyFlow", testMembersOnlyFlow)
	t.Run("UploadFailureFlow", testUploadFailureFlow)
	t.Run("SessionRecovery", testSessionRecovery)
}

func testFullEventFlow(t *testing.T) {
	suite := NewTestSuite(t)
	userID, token := suite.Register(t, data.KindEnthusiast, "rider")

	td := suite.GenerateTestEvent("multi-day", "with-image", "named")
	out := createEvent(t, suite, token, td)
	t.Logf("✓ Event created (PostID: %s)", out.PostID)

	if len(out.Warnings) != 0 {
		t.Errorf("warnings = %v", out.Warnings)
	}
	if !strings.HasPrefix(out.ImageURL, "/uploads/") || !strings.HasSuffix(out.ImageURL, ".png") {
		t.Fatalf("ImageURL = %q", out.ImageURL)
	}

	// The uploaded image is served back by the same server.
	resp, err := suite.Client.Get(suite.Server.URL + out.ImageURL)
	suite.AssertNoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	suite.AssertStatusCode(t, resp, http.StatusOK)
	if string(body) != string(PNGBytes) {
		t.Errorf("served image differs from upload")
	}
	t.Logf("✓ Image served from %s", out.ImageURL)

	code, env := suite.Call(t, http.MethodGet, "/api/feed", nil, "")
	if code != http.StatusOK {
		t.Fatalf("feed: %d", code)
	}
	posts := Decode[feed](t, env).Posts
	if len(posts) != 1 {
		t.Fatalf("feed has %d posts", len(posts))
	}
	p := posts[0]
	if p.ID != out.PostID || p.UserID != userID || p.Type != data.PostTypeEvent {
		t.Errorf("post = %+v", p)
	}
	if p.EventName != td.ExpectedEventName() || p.Caption != td.Title || p.Location != td.Location {
		t.Errorf("post text = %q / %q / %q", p.EventName, p.Caption, p.Location)
	}
	if !p.IsMultiDay || p.EventDate == nil || p.EventEndDate == nil ||
		p.EventDate.String() != td.Start || p.EventEndDate.String() != td.End {
		t.Errorf("post dates = %v to %v (multi %v)", p.EventDate, p.EventEndDate, p.IsMultiDay)
	}
	if len(p.Levels) != len(td.Levels) {
		t.Fatalf("levels = %+v", p.Levels)
	}
	for i, l := range p.Levels {
		want := td.Levels[i]
		if l.LevelID != want.LevelID || l.Price != want.Price || l.Quantity != want.Quantity {
			t.Errorf("level %d = %+v, want %+v", i, l, want)
		}
	}
	t.Logf("✓ Feed shows the event with %d levels", len(p.Levels))
}

func testMembersOnlyFlow(t *testing.T) {
	suite := NewTestSuite(t)
	_, bizToken := suite.Register(t, data.KindBusiness, "circuit")
	_, fanToken := suite.Register(t, data.KindEnthusiast, "fan")

	code, env := suite.Call(t, http.MethodPost, "/api/memberships",
		map[string]interface{}{"name": "Gold", "price": 99}, bizToken)
	if code != http.StatusCreated {
		t.Fatalf("create membership: %d %s", code, env.Message)
	}
	gold := Decode[data.Membership](t, env)

	// Enthusiasts cannot own memberships.
	code, _ = suite.Call(t, http.MethodPost, "/api/memberships",
		map[string]interface{}{"name": "Nope"}, fanToken)
	if code != http.StatusForbidden {
		t.Errorf("enthusiast membership: status %d", code)
	}

	td := suite.GenerateTestEvent("members-only")
	td.MembershipID = gold.ID
	out := createEvent(t, suite, bizToken, td)
	if out.ImageURL != "/static/event-placeholder.svg" {
		t.Errorf("ImageURL = %q, want placeholder", out.ImageURL)
	}

	countFeed := func(token string) int {
		code, env := suite.Call(t, http.MethodGet, "/api/feed", nil, token)
		if code != http.StatusOK {
			t.Fatalf("feed: %d", code)
		}
		return len(Decode[feed](t, env).Posts)
	}

	if n := countFeed(fanToken); n != 0 {
		t.Errorf("non-member sees %d posts", n)
	}
	if n := countFeed(""); n != 0 {
		t.Errorf("anonymous sees %d posts", n)
	}
	if n := countFeed(bizToken); n != 1 {
		t.Errorf("author sees %d posts", n)
	}

	code, _ = suite.Call(t, http.MethodPost, "/api/memberships/"+gold.ID+"/subscribe", nil, fanToken)
	if code != http.StatusCreated {
		t.Fatalf("subscribe: %d", code)
	}
	if n := countFeed(fanToken); n != 1 {
		t.Errorf("member sees %d posts", n)
	}
}

func testUploadFailureFlow(t *testing.T) {
	suite := NewTestSuite(t)
	_, token := suite.Register(t, data.KindEnthusiast, "rider")

	suite.Images.SetFailureMode(true)
	out := createEvent(t, suite, token, suite.GenerateTestEvent("with-image"))

	if out.ImageURL != "/static/event-placeholder.svg" {
		t.Errorf("ImageURL = %q, want placeholder", out.ImageURL)
	}
	if len(out.Warnings) != 1 || !strings.Contains(out.Warnings[0], ErrSimulatedUpload.Error()) {
		t.Errorf("warnings = %v", out.Warnings)
	}
	if stats := suite.Images.GetStats(); stats["upload_attempts"] != 1 || stats["uploaded"] != 0 {
		t.Errorf("stats = %v", stats)
	}

	// The placeholder itself is served.
	resp, err := suite.Client.Get(suite.Server.URL + out.ImageURL)
	suite.AssertNoError(t, err)
	resp.Body.Close()
	suite.AssertStatusCode(t, resp, http.StatusOK)
}

func testSessionRecovery(t *testing.T) {
	suite := NewTestSuite(t)
	userID, token := suite.Register(t, data.KindEnthusiast, "rider")

	code, env := suite.Call(t, http.MethodPost, "/api/wizards", nil, token)
	if code != http.StatusCreated {
		t.Fatalf("create wizard: %d", code)
	}
	draft := Decode[createdDraft](t, env)
	code, _ = suite.Call(t, http.MethodPost, "/api/wizards/"+draft.ID+"/actions",
		map[string]interface{}{"actions": suite.GenerateTestEvent().ToActions()}, token)
	if code != http.StatusOK {
		t.Fatalf("actions: %d", code)
	}

	// Logging out mid-draft blocks submission but keeps the draft.
	code, _ = suite.Call(t, http.MethodDelete, "/api/sessions/current", nil, token)
	if code != http.StatusOK {
		t.Fatalf("logout: %d", code)
	}
	code, _ = suite.Call(t, http.MethodPost, "/api/wizards/"+draft.ID+"/submit", nil, token)
	if code != http.StatusUnauthorized {
		t.Fatalf("submit after logout: %d", code)
	}

	fresh, err := suite.Service.IssueSession(context.Background(), userID)
	suite.AssertNoError(t, err)

	code, env = suite.Call(t, http.MethodGet, "/api/wizards/"+draft.ID, nil, fresh)
	if code != http.StatusOK {
		t.Fatalf("draft lost after re-login: %d", code)
	}
	if d := Decode[createdDraft](t, env).Draft; d.State != wizard.EditingDetails {
		t.Errorf("state = %v", d.State)
	}

	code, _ = suite.Call(t, http.MethodPost, "/api/wizards/"+draft.ID+"/submit", nil, fresh)
	if code != http.StatusCreated {
		t.Errorf("submit with new session: %d", code)
	}
}

// TestLoadTesting runs concurrent wizard submissions
func TestLoadTesting(t *testing.T) {
	if !*runLoad {
		t.Skip("Load tests disabled. Use -load flag to enable.")
	}

	suite := NewTestSuite(t)
	const users = 10
	const eventsPerUser = 5

	tokens := make([]string, users)
	for i := range tokens {
		_, tokens[i] = suite.Register(t, data.KindEnthusiast, suite.UniqueUsername("load"))
	}

	start := time.Now()
	var wg sync.WaitGroup
	errs := make(chan error, users*eventsPerUser)
	for _, token := range tokens {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			for j := 0; j < eventsPerUser; j++ {
				if err := submitQuietly(suite, token, suite.GenerateTestEvent("with-image")); err != nil {
					errs <- err
				}
			}
		}(token)
	}
	wg.Wait()
	close(errs)

	failures := 0
	for err := range errs {
		failures++
		t.Logf("submission failed: %v", err)
	}
	elapsed := time.Since(start)
	t.Logf("✓ %d events in %v (%.1f/s), %d failures", users*eventsPerUser, elapsed,
		float64(users*eventsPerUser)/elapsed.Seconds(), failures)
	if failures > 0 {
		t.Errorf("%d submissions failed", failures)
	}
}

// submitQuietly is createEvent for goroutines, returning errors instead of
// failing the test.
func submitQuietly(suite *TestSuite, token string, td TestEventData) error {
	resp, err := suite.MakeAPIRequest(http.MethodPost, "/api/wizards", nil, token)
	if err != nil {
		return err
	}
	var env APIEnvelope
	if err := suite.ParseJSONResponse(resp, &env); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("create wizard: %d %s", resp.StatusCode, env.Message)
	}
	var draft createdDraft
	if err := json.Unmarshal(env.Data, &draft); err != nil {
		return err
	}

	steps := []struct {
		path string
		body interface{}
		want int
	}{
		{"/api/wizards/" + draft.ID + "/actions", map[string]interface{}{"actions": td.ToActions()}, http.StatusOK},
		{"/api/wizards/" + draft.ID + "/submit", nil, http.StatusCreated},
	}
	for _, s := range steps {
		resp, err := suite.MakeAPIRequest(http.MethodPost, s.path, s.body, token)
		if err != nil {
			return err
		}
		env = APIEnvelope{}
		if err := suite.ParseJSONResponse(resp, &env); err != nil {
			return err
		}
		if resp.StatusCode != s.want {
			return fmt.Errorf("%s: %d %s", s.path, resp.StatusCode, env.Message)
		}
	}
	return nil
}

func BenchmarkSessionTokenGeneration(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := security.GenerateSessionToken(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDraftActions(b *testing.B) {
	td := TestEventData{
		Title:    "Bench",
		Location: "Thunderhill",
		Levels:   []levels.Selection{{LevelID: 1, Price: "10", Quantity: 1}},
		Start:    "2026-10-20",
	}
	actions := td.ToActions()
	opts := wizard.Options{
		Catalog: levels.DefaultCatalog,
		Clock:   func() time.Time { return time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC) },
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := wizard.New(opts)
		for _, a := range actions {
			if err := m.Apply(a); err != nil {
				b.Fatal(err)
			}
		}
	}
}
