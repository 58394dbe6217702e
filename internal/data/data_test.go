package data

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trackhub/internal/calendar"
	"trackhub/internal/logger"
)

func init() {
	logger.SetOutput(io.Discard)
}

func setupDB(t *testing.T) {
	t.Helper()
	if err := InitDB(filepath.Join(t.TempDir(), "test.db")); err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { CloseDB() })
	if err := CreateTables(); err != nil {
		t.Fatalf("CreateTables: %v", err)
	}
}

func mustProfile(t *testing.T, kind ProfileKind, username string) *Profile {
	t.Helper()
	p := &Profile{Kind: kind, Username: username}
	if err := NewProfileRepository().Create(context.Background(), p); err != nil {
		t.Fatalf("create profile %s: %v", username, err)
	}
	return p
}

func mustMembership(t *testing.T, businessID, name string) *Membership {
	t.Helper()
	m := &Membership{BusinessID: businessID, Name: name, Price: 20}
	if err := NewMembershipRepository().Create(context.Background(), m); err != nil {
		t.Fatalf("create membership: %v", err)
	}
	return m
}

func date(s string) *calendar.Date {
	d, err := calendar.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func TestCreateTablesIsIdempotent(t *testing.T) {
	setupDB(t)
	if err := CreateTables(); err != nil {
		t.Fatalf("second CreateTables: %v", err)
	}
}

func TestProfiles(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	repo := NewProfileRepository()

	p := mustProfile(t, KindBusiness, "laguna")
	got, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Username != "laguna" || got.Kind != KindBusiness {
		t.Errorf("profile = %+v", got)
	}

	if err := repo.Create(ctx, &Profile{Kind: KindEnthusiast, Username: "laguna"}); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate username error = %v", err)
	}
	if err := repo.Create(ctx, &Profile{Kind: "robot", Username: "r2"}); err == nil {
		t.Error("invalid kind accepted")
	}
	if _, err := repo.GetByUsername(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing profile error = %v", err)
	}
}

func TestSessions(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	repo := NewSessionRepository()
	user := mustProfile(t, KindEnthusiast, "driver")
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	if _, err := repo.Create(ctx, "live", user.ID, now, time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Create(ctx, "old", user.ID, now.Add(-2*time.Hour), time.Hour); err != nil {
		t.Fatal(err)
	}

	s, err := repo.Lookup(ctx, "live", now)
	if err != nil || s.UserID != user.ID {
		t.Fatalf("Lookup(live) = %+v, %v", s, err)
	}
	if _, err := repo.Lookup(ctx, "old", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired session lookup error = %v", err)
	}

	n, err := repo.DeleteExpired(ctx, now, 25)
	if err != nil || n != 1 {
		t.Errorf("DeleteExpired = %d, %v", n, err)
	}
	if err := repo.Delete(ctx, "live"); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Lookup(ctx, "live", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted session lookup error = %v", err)
	}
}

func TestMemberships(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	repo := NewMembershipRepository()
	biz := mustProfile(t, KindBusiness, "track")
	fan := mustProfile(t, KindEnthusiast, "fan")
	now := time.Now()

	gold := mustMembership(t, biz.ID, "Gold")
	mustMembership(t, biz.ID, "Silver")

	list, err := repo.ListByBusiness(ctx, biz.ID)
	if err != nil || len(list) != 2 {
		t.Fatalf("ListByBusiness = %+v, %v", list, err)
	}
	if other, _ := repo.ListByBusiness(ctx, fan.ID); len(other) != 0 {
		t.Errorf("enthusiast has memberships: %+v", other)
	}

	if err := repo.Create(ctx, &Membership{BusinessID: fan.ID, Name: "Nope"}); err == nil {
		t.Error("enthusiast created a membership")
	}

	ok, _ := repo.IsSubscribed(ctx, fan.ID, gold.ID, now)
	if ok {
		t.Fatal("subscribed before subscribing")
	}
	if _, err := repo.Subscribe(ctx, fan.ID, gold.ID, now, nil); err != nil {
		t.Fatal(err)
	}
	if ok, _ := repo.IsSubscribed(ctx, fan.ID, gold.ID, now); !ok {
		t.Error("not subscribed after Subscribe")
	}

	past := now.Add(-time.Hour)
	if _, err := repo.Subscribe(ctx, fan.ID, gold.ID, now.Add(-48*time.Hour), &past); err != nil {
		t.Fatal(err)
	}
	if ok, _ := repo.IsSubscribed(ctx, fan.ID, gold.ID, now); ok {
		t.Error("expired subscription still active")
	}
	subs, err := repo.ListSubscriptions(ctx, fan.ID)
	if err != nil || len(subs) != 1 {
		t.Errorf("ListSubscriptions = %+v, %v", subs, err)
	}

	if _, err := repo.Subscribe(ctx, fan.ID, gold.ID, now, nil); err != nil {
		t.Fatal(err)
	}
	if err := repo.Cancel(ctx, fan.ID, gold.ID); err != nil {
		t.Fatal(err)
	}
	if ok, _ := repo.IsSubscribed(ctx, fan.ID, gold.ID, now); ok {
		t.Error("cancelled subscription still active")
	}
	if _, err := repo.Subscribe(ctx, fan.ID, "missing", now, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("subscribe to missing membership: %v", err)
	}
}

func TestEventRecordWithLevels(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	repo := NewPostRepository()
	biz := mustProfile(t, KindBusiness, "track")

	p := &Post{
		UserID:       biz.ID,
		Type:         PostTypeEvent,
		Caption:      "Track Day",
		EventName:    "Track Day",
		Location:     "Laguna Seca",
		EventDate:    date("2026-10-22"),
		EventEndDate: date("2026-10-24"),
		IsMultiDay:   true,
		ImageURL:     "http://localhost/uploads/a.png",
	}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	rows := []EventLevel{{LevelID: 2, Price: "40", Quantity: 1}, {LevelID: 1, Price: "25.00", Quantity: 2}}
	if err := repo.CreateLevels(ctx, p.ID, rows); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.EventDate.String() != "2026-10-22" || got.EventEndDate.String() != "2026-10-24" || !got.IsMultiDay {
		t.Errorf("dates = %v %v %v", got.EventDate, got.EventEndDate, got.IsMultiDay)
	}
	if got.MembershipID != "" {
		t.Errorf("membership = %q", got.MembershipID)
	}
	if len(got.Levels) != 2 || got.Levels[0].LevelID != 1 || got.Levels[0].Quantity != 2 {
		t.Errorf("levels = %+v", got.Levels)
	}
}

func TestCreateLevelsIsAtomic(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	repo := NewPostRepository()
	biz := mustProfile(t, KindBusiness, "track")

	p := &Post{UserID: biz.ID, Type: PostTypeEvent, Caption: "x", EventDate: date("2026-10-22")}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	rows := []EventLevel{{LevelID: 1, Price: "10", Quantity: 1}, {LevelID: 2, Price: "10", Quantity: 0}}
	if err := repo.CreateLevels(ctx, p.ID, rows); err == nil {
		t.Fatal("quantity 0 accepted")
	}

	got, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Levels) != 0 {
		t.Errorf("partial level rows written: %+v", got.Levels)
	}
}

func TestCreateRejectsInvertedDates(t *testing.T) {
	setupDB(t)
	biz := mustProfile(t, KindBusiness, "track")
	p := &Post{UserID: biz.ID, Type: PostTypeEvent, EventDate: date("2026-10-24"), EventEndDate: date("2026-10-22")}
	if err := NewPostRepository().Create(context.Background(), p); err == nil {
		t.Error("end before start accepted")
	}
}

func TestFeedGating(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	repo := NewPostRepository()
	biz := mustProfile(t, KindBusiness, "track")
	member := mustProfile(t, KindEnthusiast, "member")
	stranger := mustProfile(t, KindEnthusiast, "stranger")
	gold := mustMembership(t, biz.ID, "Gold")

	base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	public := &Post{UserID: biz.ID, Caption: "public", CreatedAt: base}
	gated := &Post{
		UserID: biz.ID, Type: PostTypeEvent, Caption: "members", EventDate: date("2026-11-01"),
		MembershipID: gold.ID, CreatedAt: base.Add(time.Minute),
	}
	for _, p := range []*Post{public, gated} {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.CreateLevels(ctx, gated.ID, []EventLevel{{LevelID: 1, Price: "5", Quantity: 1}}); err != nil {
		t.Fatal(err)
	}
	if _, err := NewMembershipRepository().Subscribe(ctx, member.ID, gold.ID, base, nil); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		viewer string
		want   []string
	}{
		{viewer: biz.ID, want: []string{"members", "public"}},
		{viewer: member.ID, want: []string{"members", "public"}},
		{viewer: stranger.ID, want: []string{"public"}},
		{viewer: "", want: []string{"public"}},
	}

	for _, tt := range tests {
		feed, err := repo.Feed(ctx, tt.viewer, base.Add(time.Hour), 10)
		if err != nil {
			t.Fatal(err)
		}
		var got []string
		for _, p := range feed {
			got = append(got, p.Caption)
		}
		if len(got) != len(tt.want) {
			t.Errorf("viewer %q feed = %v, want %v", tt.viewer, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("viewer %q feed = %v, want %v", tt.viewer, got, tt.want)
				break
			}
		}
		if len(feed) == 2 && len(feed[0].Levels) != 1 {
			t.Errorf("gated event levels = %+v", feed[0].Levels)
		}
	}
}

func TestMembershipUpdateAndDelete(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	repo := NewMembershipRepository()
	biz := mustProfile(t, KindBusiness, "track")
	fan := mustProfile(t, KindEnthusiast, "fan")
	gold := mustMembership(t, biz.ID, "Gold")
	silver := mustMembership(t, biz.ID, "Silver")

	gold.Name, gold.Price = "Platinum", 35
	if err := repo.Update(ctx, gold); err != nil {
		t.Fatal(err)
	}
	got, err := repo.GetByID(ctx, gold.ID)
	if err != nil || got.Name != "Platinum" || got.Price != 35 {
		t.Errorf("after update = %+v, %v", got, err)
	}
	if err := repo.Update(ctx, &Membership{ID: "missing", Name: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing: %v", err)
	}
	if err := repo.Update(ctx, &Membership{ID: gold.ID, Name: "  "}); err == nil {
		t.Error("blank name accepted")
	}

	if err := NewPostRepository().Create(ctx, &Post{UserID: biz.ID, Caption: "gated", MembershipID: gold.ID}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(ctx, gold.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("delete gating membership: %v", err)
	}

	if _, err := repo.Subscribe(ctx, fan.ID, silver.ID, time.Now(), nil); err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(ctx, silver.ID); err != nil {
		t.Fatal(err)
	}
	if subs, _ := repo.ListSubscriptions(ctx, fan.ID); len(subs) != 0 {
		t.Errorf("subscriptions survive their membership: %+v", subs)
	}
	if err := repo.Delete(ctx, silver.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestListMembers(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	repo := NewMembershipRepository()
	biz := mustProfile(t, KindBusiness, "track")
	early := mustProfile(t, KindEnthusiast, "early")
	late := mustProfile(t, KindEnthusiast, "late")
	gold := mustMembership(t, biz.ID, "Gold")

	base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	if _, err := repo.Subscribe(ctx, early.ID, gold.ID, base, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Subscribe(ctx, late.ID, gold.ID, base.Add(time.Hour), nil); err != nil {
		t.Fatal(err)
	}
	if err := repo.Cancel(ctx, early.ID, gold.ID); err != nil {
		t.Fatal(err)
	}

	members, err := repo.ListMembers(ctx, gold.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %+v", members)
	}
	if members[0].Username != "late" || !members[0].IsActive {
		t.Errorf("first member = %+v", members[0])
	}
	if members[1].Username != "early" || members[1].IsActive {
		t.Errorf("second member = %+v", members[1])
	}
}

func TestListByUserAndDelete(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	repo := NewPostRepository()
	biz := mustProfile(t, KindBusiness, "track")
	other := mustProfile(t, KindBusiness, "other")
	member := mustProfile(t, KindEnthusiast, "member")
	gold := mustMembership(t, biz.ID, "Gold")

	base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	posts := []*Post{
		{UserID: biz.ID, Caption: "public", CreatedAt: base},
		{UserID: biz.ID, Caption: "members", MembershipID: gold.ID, CreatedAt: base.Add(time.Minute)},
		{UserID: other.ID, Caption: "elsewhere", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, p := range posts {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	count := func(viewer string) int {
		t.Helper()
		list, err := repo.ListByUser(ctx, biz.ID, viewer, base.Add(time.Hour), 10)
		if err != nil {
			t.Fatal(err)
		}
		for _, p := range list {
			if p.UserID != biz.ID {
				t.Errorf("post by %s listed for %s", p.UserID, biz.ID)
			}
		}
		return len(list)
	}
	if n := count(""); n != 1 {
		t.Errorf("anonymous sees %d posts", n)
	}
	if n := count(member.ID); n != 1 {
		t.Errorf("non-member sees %d posts", n)
	}
	if _, err := NewMembershipRepository().Subscribe(ctx, member.ID, gold.ID, base, nil); err != nil {
		t.Fatal(err)
	}
	if n := count(member.ID); n != 2 {
		t.Errorf("member sees %d posts", n)
	}
	if n := count(biz.ID); n != 2 {
		t.Errorf("author sees %d posts", n)
	}

	if err := repo.Delete(ctx, posts[0].ID); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetByID(ctx, posts[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted post lookup: %v", err)
	}
	if err := repo.Delete(ctx, posts[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestQueriesWithoutDatabase(t *testing.T) {
	CloseDB()
	if _, err := NewProfileRepository().GetByID(context.Background(), "x"); err == nil {
		t.Error("query on closed database succeeded")
	}
}

func TestPragmasApplyToEveryConnection(t *testing.T) {
	setupDB(t)
	ctx := context.Background()

	conn, err := GetDB()
	if err != nil {
		t.Fatal(err)
	}

	// Hold both so the pool must hand out two distinct connections.
	c1, err := conn.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c1.Close()
	c2, err := conn.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	for i, c := range []*sql.Conn{c1, c2} {
		var fk, busy int
		if err := c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatal(err)
		}
		if err := c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy); err != nil {
			t.Fatal(err)
		}
		if fk != 1 || busy != 5000 {
			t.Errorf("conn %d: foreign_keys=%d busy_timeout=%d", i+1, fk, busy)
		}
	}

	_, err = c2.ExecContext(ctx,
		`INSERT INTO event_levels (id, post_id, level_id, price, quantity) VALUES ('l1', 'no-such-post', 1, '10', 1)`)
	if err == nil {
		t.Error("level row for a missing post was accepted")
	}
}

func TestWithPragmas(t *testing.T) {
	tests := []struct {
		dsn, prefix string
	}{
		{"/tmp/a.db", "/tmp/a.db?_pragma=foreign_keys(1)&"},
		{"file:a.db?mode=rwc", "file:a.db?mode=rwc&_pragma=foreign_keys(1)&"},
	}
	for _, tt := range tests {
		got := withPragmas(tt.dsn)
		if !strings.HasPrefix(got, tt.prefix) || !strings.Contains(got, "_pragma=busy_timeout(5000)") {
			t.Errorf("withPragmas(%q) = %q", tt.dsn, got)
		}
	}
}
