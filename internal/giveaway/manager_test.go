package giveaway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildpulse/internal/config"
	"guildpulse/internal/engagement"
	"guildpulse/internal/platform"
	"guildpulse/internal/storage"
)

type fakeTimer struct {
	fireAt  time.Time
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := t.stopped
	t.stopped = true
	return !was
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{fireAt: c.now.Add(d), f: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fireAt.After(c.now) {
			timer.stopped = true
			due = append(due, timer)
		}
	}
	c.mu.Unlock()
	for _, timer := range due {
		timer.f()
	}
}

type fakeClient struct {
	mu        sync.Mutex
	members   map[string]*platform.Member
	reactions map[string][]platform.User
	sent      []string
	embeds    map[string]*discordgo.MessageEmbed
	dms       map[string]int
	nextID    int

	reactionsErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		members:   make(map[string]*platform.Member),
		reactions: make(map[string][]platform.User),
		embeds:    make(map[string]*discordgo.MessageEmbed),
		dms:       make(map[string]int),
	}
}

func (c *fakeClient) SendMessage(channelID, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, content)
	return nil
}

func (c *fakeClient) SendEmbed(channelID string, embed *discordgo.MessageEmbed) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := fmt.Sprintf("msg-%d", c.nextID)
	c.embeds[id] = embed
	return id, nil
}

func (c *fakeClient) EditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.embeds[messageID] = embed
	return nil
}

func (c *fakeClient) AddReaction(channelID, messageID, emoji string) error { return nil }

func (c *fakeClient) ReactionUsers(channelID, messageID, emoji string) ([]platform.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reactionsErr != nil {
		return nil, c.reactionsErr
	}
	return c.reactions[messageID], nil
}

func (c *fakeClient) GuildMember(guildID, userID string) (*platform.Member, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	member, ok := c.members[userID]
	if !ok {
		return nil, platform.ErrNotFound
	}
	return member, nil
}

func (c *fakeClient) DMEmbed(userID string, embed *discordgo.MessageEmbed) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dms[userID]++
	return nil
}

func (c *fakeClient) AddRole(guildID, userID, roleID string) error    { return nil }
func (c *fakeClient) RemoveRole(guildID, userID, roleID string) error { return nil }
func (c *fakeClient) Ban(guildID, userID, reason string, deleteDays int) error {
	return nil
}
func (c *fakeClient) Unban(guildID, userID string) error { return nil }

func (c *fakeClient) lastSent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1]
}

func (c *fakeClient) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type fakeState struct {
	tiers    map[string]engagement.BoosterTier
	levels   map[string]int
	messages map[string]int
}

func newFakeState() *fakeState {
	return &fakeState{
		tiers:    make(map[string]engagement.BoosterTier),
		levels:   make(map[string]int),
		messages: make(map[string]int),
	}
}

func (s *fakeState) TierOf(member *platform.Member) engagement.BoosterTier {
	if member == nil {
		return engagement.TierNone
	}
	return s.tiers[member.ID]
}

func (s *fakeState) Level(ctx context.Context, guildID, userID string) int {
	if level, ok := s.levels[userID]; ok {
		return level
	}
	return 1
}

func (s *fakeState) MessageCount(ctx context.Context, guildID, userID string) int {
	return s.messages[userID]
}

type fixture struct {
	manager *Manager
	store   *storage.Store
	client  *fakeClient
	state   *fakeState
	clock   *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	client := newFakeClient()
	state := newFakeState()
	clock := newFakeClock(time.Unix(1_700_000_000, 0))
	cfg := config.GiveawayConfig{
		Emoji:          "\U0001F389",
		MaxWinners:     50,
		MinMessages:    100,
		MaxEntryWeight: 10,
		EmbedColor:     0x00FF00,
		EndedColor:     0xFF0000,
	}
	manager := NewManager(store, client, state, cfg, zap.NewNop()).
		WithClock(clock).
		WithRand(rand.New(rand.NewSource(42)))
	return &fixture{manager: manager, store: store, client: client, state: state, clock: clock}
}

// addMember registers a guild member with enough messages to pass the
// default gate.
func (f *fixture) addMember(userID string, roles ...string) {
	f.client.members[userID] = &platform.Member{ID: userID, Username: userID, Roles: roles}
	f.state.messages[userID] = 1000
}

func (f *fixture) react(messageID string, userIDs ...string) {
	for _, id := range userIDs {
		f.client.reactions[messageID] = append(f.client.reactions[messageID], platform.User{ID: id})
	}
}

func (f *fixture) create(t *testing.T, spec CreateSpec) string {
	t.Helper()
	if spec.ChannelID == "" {
		spec.ChannelID = "chan-1"
	}
	if spec.GuildID == "" {
		spec.GuildID = "guild-1"
	}
	if spec.Prize == "" {
		spec.Prize = "Nitro"
	}
	if spec.Duration == 0 {
		spec.Duration = time.Hour
	}
	if spec.WinnerCount == 0 {
		spec.WinnerCount = 1
	}
	id, err := f.manager.Create(context.Background(), spec)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		spec CreateSpec
	}{
		{"empty prize", CreateSpec{ChannelID: "c", GuildID: "g", Duration: time.Hour, WinnerCount: 1}},
		{"zero duration", CreateSpec{ChannelID: "c", GuildID: "g", Prize: "p", WinnerCount: 1}},
		{"zero winners", CreateSpec{ChannelID: "c", GuildID: "g", Prize: "p", Duration: time.Hour}},
		{"too many winners", CreateSpec{ChannelID: "c", GuildID: "g", Prize: "p", Duration: time.Hour, WinnerCount: 51}},
	}
	for _, tc := range cases {
		if _, err := f.manager.Create(ctx, tc.spec); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestCreatePersistsAndHidesRig(t *testing.T) {
	f := newFixture(t)

	id := f.create(t, CreateSpec{RiggedWinner: "secret-user"})

	rec, err := f.store.GetGiveaway(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.RiggedWinner != "secret-user" {
		t.Errorf("rigged winner not persisted: %q", rec.RiggedWinner)
	}
	if rec.Ended {
		t.Error("new giveaway should not be ended")
	}

	embed := f.client.embeds[id]
	if embed == nil {
		t.Fatal("giveaway embed not posted")
	}
	if strings.Contains(embed.Description, "secret-user") {
		t.Error("rigged winner leaked into embed")
	}

	summaries, err := f.manager.ListActive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 || summaries[0].ID != id {
		t.Fatalf("expected one active summary, got %+v", summaries)
	}
}

func TestTimerEndsGiveaway(t *testing.T) {
	f := newFixture(t)
	f.addMember("alice")

	id := f.create(t, CreateSpec{Duration: time.Hour})
	f.react(id, "alice")

	f.clock.Advance(30 * time.Minute)
	if got := f.client.sentCount(); got != 0 {
		t.Fatalf("ended early: %d announcements", got)
	}

	f.clock.Advance(31 * time.Minute)
	if !strings.Contains(f.client.lastSent(), "<@alice>") {
		t.Errorf("winner not announced: %q", f.client.lastSent())
	}

	rec, err := f.store.GetGiveaway(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Ended {
		t.Error("record not marked ended")
	}
}

func TestEndIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addMember("alice")

	id := f.create(t, CreateSpec{})
	f.react(id, "alice")

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.manager.End(context.Background(), id)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrAlreadyEnded):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("exactly one End call should process, got %d", succeeded)
	}
	if got := f.client.sentCount(); got != 1 {
		t.Errorf("expected one announcement, got %d", got)
	}
}

func TestEndAfterTimerFired(t *testing.T) {
	f := newFixture(t)
	f.addMember("alice")

	id := f.create(t, CreateSpec{Duration: time.Minute})
	f.react(id, "alice")
	f.clock.Advance(2 * time.Minute)

	if err := f.manager.End(context.Background(), id); !errors.Is(err, ErrAlreadyEnded) {
		t.Errorf("expected ErrAlreadyEnded, got %v", err)
	}
}

func TestEndUnknownGiveaway(t *testing.T) {
	f := newFixture(t)
	if err := f.manager.End(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEndNoReactions(t *testing.T) {
	f := newFixture(t)

	id := f.create(t, CreateSpec{})
	if err := f.manager.End(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.client.lastSent(), "No valid entries!") {
		t.Errorf("expected no-valid-entries announcement, got %q", f.client.lastSent())
	}
}

func TestEndNoEligibleEntrants(t *testing.T) {
	f := newFixture(t)
	f.client.members["lurker"] = &platform.Member{ID: "lurker", Username: "lurker"}
	f.state.messages["lurker"] = 5

	id := f.create(t, CreateSpec{MinMessages: 100})
	f.react(id, "lurker")

	if err := f.manager.End(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.client.lastSent(), "No eligible entries!") {
		t.Errorf("expected no-eligible-entries announcement, got %q", f.client.lastSent())
	}
}

func TestEligibilityGates(t *testing.T) {
	f := newFixture(t)
	f.addMember("member", "role-vip")
	f.addMember("no-role")
	f.addMember("banned", "role-vip", "role-bad")
	f.client.reactions["msg"] = []platform.User{
		{ID: "bot-user", Bot: true},
		{ID: "ghost"},
		{ID: "member"},
		{ID: "no-role"},
		{ID: "banned"},
	}

	rec := storage.GiveawayRecord{
		ID:              "msg",
		GuildID:         "guild-1",
		ChannelID:       "chan-1",
		RequiredRole:    "role-vip",
		BlacklistedRole: "role-bad",
		MinMessages:     100,
	}
	entrants := f.manager.eligibleEntrants(context.Background(), rec, f.client.reactions["msg"])
	if len(entrants) != 1 || entrants[0].UserID != "member" {
		t.Fatalf("expected only member to pass the gates, got %+v", entrants)
	}
}

func TestRiggedWinnerAlwaysWins(t *testing.T) {
	f := newFixture(t)
	f.addMember("alice")
	f.addMember("bob")
	f.addMember("rig")

	for i := 0; i < 10; i++ {
		id := f.create(t, CreateSpec{RiggedWinner: "rig"})
		f.react(id, "alice", "bob", "rig")
		if err := f.manager.End(context.Background(), id); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(f.client.lastSent(), "<@rig>") {
			t.Fatalf("rigged winner missing from announcement: %q", f.client.lastSent())
		}
	}
}

func TestRiggedWinnerBypassesMessageGateOnly(t *testing.T) {
	f := newFixture(t)
	f.addMember("alice")
	f.client.members["rig"] = &platform.Member{ID: "rig", Username: "rig"}
	f.state.messages["rig"] = 0

	id := f.create(t, CreateSpec{RiggedWinner: "rig", MinMessages: 100})
	f.react(id, "alice", "rig")
	if err := f.manager.End(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.client.lastSent(), "<@rig>") {
		t.Errorf("rigged winner should bypass the message gate: %q", f.client.lastSent())
	}
}

func TestRiggedWinnerSubjectToRoleGates(t *testing.T) {
	f := newFixture(t)
	f.addMember("alice", "role-vip")
	f.addMember("rig")

	for i := 0; i < 10; i++ {
		id := f.create(t, CreateSpec{RiggedWinner: "rig", RequiredRole: "role-vip"})
		f.react(id, "alice", "rig")
		if err := f.manager.End(context.Background(), id); err != nil {
			t.Fatal(err)
		}
		if strings.Contains(f.client.lastSent(), "<@rig>") {
			t.Fatal("rigged winner must not bypass the required-role gate")
		}
		if !strings.Contains(f.client.lastSent(), "<@alice>") {
			t.Fatalf("eligible entrant should win: %q", f.client.lastSent())
		}
	}
}

func TestWinnersAreDistinct(t *testing.T) {
	f := newFixture(t)
	f.addMember("a")
	f.addMember("b")
	f.addMember("c")

	for i := 0; i < 20; i++ {
		id := f.create(t, CreateSpec{WinnerCount: 2})
		f.react(id, "a", "b", "c")
		if err := f.manager.End(context.Background(), id); err != nil {
			t.Fatal(err)
		}
		announcement := f.client.lastSent()
		count := 0
		for _, user := range []string{"<@a>", "<@b>", "<@c>"} {
			if strings.Count(announcement, user) > 1 {
				t.Fatalf("duplicate winner in %q", announcement)
			}
			count += strings.Count(announcement, user)
		}
		if count != 2 {
			t.Fatalf("expected exactly 2 winners, got %d in %q", count, announcement)
		}
	}
}

func TestFewerEntrantsThanWinners(t *testing.T) {
	f := newFixture(t)
	f.addMember("only")

	id := f.create(t, CreateSpec{WinnerCount: 5})
	f.react(id, "only")
	if err := f.manager.End(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if strings.Count(f.client.lastSent(), "<@only>") != 1 {
		t.Errorf("expected the lone entrant to win once: %q", f.client.lastSent())
	}
}

func TestReroll(t *testing.T) {
	f := newFixture(t)
	f.addMember("alice")

	id := f.create(t, CreateSpec{})
	f.react(id, "alice")

	if err := f.manager.Reroll(context.Background(), id); !errors.Is(err, ErrNotEnded) {
		t.Errorf("reroll before end: expected ErrNotEnded, got %v", err)
	}

	if err := f.manager.End(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if err := f.manager.Reroll(context.Background(), id); err != nil {
		t.Fatalf("reroll: %v", err)
	}
	if !strings.Contains(f.client.lastSent(), "rerolled") {
		t.Errorf("expected reroll announcement, got %q", f.client.lastSent())
	}
	if !strings.Contains(f.client.lastSent(), "<@alice>") {
		t.Errorf("expected new winner in reroll announcement, got %q", f.client.lastSent())
	}
}

func TestRerollUnknown(t *testing.T) {
	f := newFixture(t)
	if err := f.manager.Reroll(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResumeExpiredFiresImmediately(t *testing.T) {
	f := newFixture(t)
	f.addMember("alice")

	rec := storage.GiveawayRecord{
		ID:          "msg-resume",
		ChannelID:   "chan-1",
		GuildID:     "guild-1",
		Prize:       "Nitro",
		WinnerCount: 1,
		EndsAt:      f.clock.Now().Add(-time.Minute),
	}
	if err := f.store.UpsertGiveaway(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	f.react("msg-resume", "alice")

	if err := f.manager.Resume(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(0)

	got, err := f.store.GetGiveaway(context.Background(), "msg-resume")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Ended {
		t.Error("expired giveaway should end immediately on resume")
	}
	if !strings.Contains(f.client.lastSent(), "<@alice>") {
		t.Errorf("winner not announced after resume: %q", f.client.lastSent())
	}
}

func TestWinnerDM(t *testing.T) {
	f := newFixture(t)
	f.addMember("alice")

	id := f.create(t, CreateSpec{})
	f.react(id, "alice")
	if err := f.manager.End(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if f.client.dms["alice"] != 1 {
		t.Errorf("winner should receive one DM, got %d", f.client.dms["alice"])
	}
}
