package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sigmesh/sigmesh-go/internal/core/domain"
	"github.com/sigmesh/sigmesh-go/internal/core/ledger"
	"github.com/sigmesh/sigmesh-go/internal/secrets"
	"github.com/sigmesh/sigmesh-go/internal/storage/memory"
	"github.com/sigmesh/sigmesh-go/internal/telemetry/metric"
)

// recordingCaster captures every frame handed to it, keyed by transport.
type recordingCaster struct {
	mu     sync.Mutex
	frames map[string][]Frame
}

func newRecordingCaster() *recordingCaster {
	return &recordingCaster{frames: make(map[string][]Frame)}
}

func (c *recordingCaster) Send(transportID string, frame Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames[transportID] = append(c.frames[transportID], frame)
	return true
}

func (c *recordingCaster) sent(transportID string) []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, len(c.frames[transportID]))
	copy(out, c.frames[transportID])
	return out
}

// droppingCaster records every frame like recordingCaster but reports
// the designated transports as dropped.
type droppingCaster struct {
	*recordingCaster
	drop map[string]bool
}

func (c *droppingCaster) Send(transportID string, frame Frame) bool {
	c.recordingCaster.Send(transportID, frame)
	return !c.drop[transportID]
}

type testEnv struct {
	store    *memory.MemoryStore
	registry *Registry
	caster   *recordingCaster
	metrics  *metric.Metrics
}

func newTestEnv(t *testing.T, cfg RegistryConfig) *testEnv {
	t.Helper()
	return newTestEnvWith(t, cfg, ledger.NewStaticEngine(), newRecordingCaster())
}

// newTestEnvWith builds the registry around a caller-supplied engine and
// broadcaster. The recording caster backing the env is extracted from
// wrappers so assertions keep working.
func newTestEnvWith(t *testing.T, cfg RegistryConfig, engine ledger.Engine, caster Broadcaster) *testEnv {
	t.Helper()

	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	vault, err := secrets.NewVault(context.Background(), store, secrets.Config{
		Key: []byte("0123456789abcdef0123456789abcdef"),
	}, logger)
	if err != nil {
		t.Fatalf("NewVault() error = %v", err)
	}

	metrics := metric.New()
	registry := NewRegistry(store, engine, vault, caster, metrics, logger, cfg)
	t.Cleanup(registry.Stop)

	env := &testEnv{store: store, registry: registry, metrics: metrics}
	switch rec := caster.(type) {
	case *recordingCaster:
		env.caster = rec
	case *droppingCaster:
		env.caster = rec.recordingCaster
	}
	return env
}

// createCommunity provisions a community with one joined creator.
func (e *testEnv) createCommunity(t *testing.T, teamID, creator, transport string) *Community {
	t.Helper()
	c, _, err := e.registry.Create(context.Background(), &CreateCommunityRequest{
		TeamID:      teamID,
		UserID:      creator,
		TransportID: transport,
		KeyMaterial: []byte("shared-team-key-material"),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	e.waitForStatus(t, teamID, creator, "joined")
	return c
}

// waitForStatus polls until the user's connection reaches the wanted
// state. The engine event pump runs asynchronously.
func (e *testEnv) waitForStatus(t *testing.T, teamID, userID, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, err := e.registry.Status(context.Background(), teamID)
		if err == nil {
			for _, u := range st.Users {
				if u.UserID == userID && u.Status == want {
					return
				}
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("user %s never reached status %q", userID, want)
}

// waitForRemoval polls until the user's connection leaves the community.
func (e *testEnv) waitForRemoval(t *testing.T, teamID, userID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, err := e.registry.Status(context.Background(), teamID)
		if err != nil {
			return
		}
		present := false
		for _, u := range st.Users {
			if u.UserID == userID {
				present = true
			}
		}
		if !present {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("user %s connection was never removed", userID)
}

func TestRegistryCreate(t *testing.T) {
	env := newTestEnv(t, RegistryConfig{})
	ctx := context.Background()

	c := env.createCommunity(t, "acme", "alice", "tr-alice")
	if c.TeamID != "acme" {
		t.Errorf("TeamID = %q, want acme", c.TeamID)
	}

	// The record must be durable.
	record, err := env.store.GetCommunity(ctx, "acme")
	if err != nil {
		t.Fatalf("GetCommunity() error = %v", err)
	}
	if len(record.Ledger) == 0 {
		t.Error("persisted record has empty ledger")
	}

	// The key material must be sealed and retrievable.
	sealed, err := env.store.GetSecret(ctx, "keymat/acme")
	if err != nil {
		t.Fatalf("GetSecret() error = %v", err)
	}
	if len(sealed) == 0 {
		t.Error("sealed key material is empty")
	}
}

func TestRegistryCreateConflict(t *testing.T) {
	env := newTestEnv(t, RegistryConfig{})
	env.createCommunity(t, "acme", "alice", "tr-alice")

	_, _, err := env.registry.Create(context.Background(), &CreateCommunityRequest{
		TeamID:      "acme",
		UserID:      "bob",
		TransportID: "tr-bob",
		KeyMaterial: []byte("other-key-material"),
	})
	if !domain.IsDomainError(err, "SM-COMM-4090") {
		t.Errorf("Create() error = %v, want SM-COMM-4090", err)
	}
}

func TestRegistryCreateValidation(t *testing.T) {
	env := newTestEnv(t, RegistryConfig{})

	tests := []struct {
		name string
		req  *CreateCommunityRequest
		code string
	}{
		{
			name: "missing team id",
			req:  &CreateCommunityRequest{UserID: "alice", TransportID: "tr", KeyMaterial: []byte("k")},
			code: "SM-ARG-1002",
		},
		{
			name: "missing user id",
			req:  &CreateCommunityRequest{TeamID: "acme", TransportID: "tr", KeyMaterial: []byte("k")},
			code: "SM-ARG-1002",
		},
		{
			name: "missing key material",
			req:  &CreateCommunityRequest{TeamID: "acme", UserID: "alice", TransportID: "tr"},
			code: "SM-KEYS-4001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.registry.Create(context.Background(), tt.req)
			if !domain.IsDomainError(err, tt.code) {
				t.Errorf("Create() error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	env := newTestEnv(t, RegistryConfig{})

	_, err := env.registry.Get(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrCommunityNotFound) {
		t.Errorf("Get() error = %v, want community not found", err)
	}
}

func TestRegistryLazyMaterialization(t *testing.T) {
	env := newTestEnv(t, RegistryConfig{})
	env.createCommunity(t, "acme", "alice", "tr-alice")

	// Drop the in-memory entry, then look the community up again: it
	// must come back from the durable record.
	env.registry.StopConnection("acme", "alice")
	env.waitForRemoval(t, "acme", "alice")
	env.registry.communities.Delete("acme")

	c, err := env.registry.Get(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Get() after drop error = %v", err)
	}
	if c.TeamID != "acme" {
		t.Errorf("TeamID = %q, want acme", c.TeamID)
	}
	if !c.handle.HasRole("alice") {
		t.Error("rehydrated ledger lost the creator's membership")
	}
}

func TestStartConnectionDuplicate(t *testing.T) {
	env := newTestEnv(t, RegistryConfig{})
	env.createCommunity(t, "acme", "alice", "tr-alice")

	_, err := env.registry.StartConnection(context.Background(), "acme", "alice", "tr-alice-2")
	if !domain.IsDomainError(err, "SM-AUTH-4090") {
		t.Errorf("StartConnection() error = %v, want SM-AUTH-4090", err)
	}
}

func TestStartConnectionReplacesClosed(t *testing.T) {
	env := newTestEnv(t, RegistryConfig{})
	env.createCommunity(t, "acme", "alice", "tr-alice")

	env.registry.StopConnection("acme", "alice")
	env.waitForRemoval(t, "acme", "alice")

	if _, err := env.registry.StartConnection(context.Background(), "acme", "alice", "tr-alice-2"); err != nil {
		t.Fatalf("StartConnection() after stop error = %v", err)
	}
	env.waitForStatus(t, "acme", "alice", "joined")
}

func TestNonMemberConnectionCloses(t *testing.T) {
	env := newTestEnv(t, RegistryConfig{})
	env.createCommunity(t, "acme", "alice", "tr-alice")

	// Mallory is not on the roster; the engine rejects the join and the
	// connection closes and disappears.
	if _, err := env.registry.StartConnection(context.Background(), "acme", "mallory", "tr-mallory"); err != nil {
		t.Fatalf("StartConnection() error = %v", err)
	}
	env.waitForRemoval(t, "acme", "mallory")
}

func TestStopConnectionIdempotent(t *testing.T) {
	env := newTestEnv(t, RegistryConfig{})
	env.createCommunity(t, "acme", "alice", "tr-alice")

	env.registry.StopConnection("acme", "alice")
	env.registry.StopConnection("acme", "alice")
	env.registry.StopConnection("acme", "nobody")
	env.registry.StopConnection("ghost", "alice")
	env.waitForRemoval(t, "acme", "alice")
}

func TestMembershipDeliveryAddsMember(t *testing.T) {
	env := newTestEnv(t, RegistryConfig{})
	env.createCommunity(t, "acme", "alice", "tr-alice")
	ctx := context.Background()

	// Alice admits bob through her membership session.
	err := env.registry.DeliverMembership(ctx, "acme", "alice", "tr-alice", []byte(`{"op":"add","user_id":"bob"}`))
	if err != nil {
		t.Fatalf("DeliverMembership() error = %v", err)
	}

	// Bob can now connect and join.
	if _, err := env.registry.StartConnection(ctx, "acme", "bob", "tr-bob"); err != nil {
		t.Fatalf("StartConnection() error = %v", err)
	}
	env.waitForStatus(t, "acme", "bob", "joined")
}

func TestMembershipDeliveryUnauthorized(t *testing.T) {
	env := newTestEnv(t, RegistryConfig{})
	env.createCommunity(t, "acme", "alice", "tr-alice")
	ctx := context.Background()
	msg := []byte(`{"op":"add","user_id":"bob"}`)

	// No connection at all.
	if err := env.registry.DeliverMembership(ctx, "acme", "carol", "tr-carol", msg); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Errorf("no connection: error = %v, want not authorized", err)
	}

	// Right user, wrong transport session.
	if err := env.registry.DeliverMembership(ctx, "acme", "alice", "tr-other", msg); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Errorf("wrong transport: error = %v, want not authorized", err)
	}
}

func TestMembershipRelayReachesPeers(t *testing.T) {
	env := newTestEnv(t, RegistryConfig{})
	env.createCommunity(t, "acme", "alice", "tr-alice")
	ctx := context.Background()

	if err := env.registry.DeliverMembership(ctx, "acme", "alice", "tr-alice", []byte(`{"op":"add","user_id":"bob"}`)); err != nil {
		t.Fatalf("DeliverMembership() error = %v", err)
	}
	if _, err := env.registry.StartConnection(ctx, "acme", "bob", "tr-bob"); err != nil {
		t.Fatalf("StartConnection() error = %v", err)
	}
	env.waitForStatus(t, "acme", "bob", "joined")

	// A second op from alice must be relayed to bob's transport but not
	// back to alice's own session.
	if err := env.registry.DeliverMembership(ctx, "acme", "alice", "tr-alice", []byte(`{"op":"add","user_id":"carol"}`)); err != nil {
		t.Fatalf("DeliverMembership() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(env.caster.sent("tr-bob")) > 0 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	got := env.caster.sent("tr-bob")
	if len(got) == 0 {
		t.Fatal("no membership frame reached bob's transport")
	}
	if got[len(got)-1].Kind != FrameMembership {
		t.Errorf("frame kind = %q, want membership", got[len(got)-1].Kind)
	}
	for _, f := range env.caster.sent("tr-alice") {
		if f.Kind == FrameMembership && f.UserID == "alice" {
			t.Error("membership frame echoed back to the source transport")
		}
	}
}

func TestIdleEviction(t *testing.T) {
	env := newTestEnv(t, RegistryConfig{IdleTTL: 30 * time.Millisecond})
	env.createCommunity(t, "acme", "alice", "tr-alice")

	env.registry.StopConnection("acme", "alice")
	env.waitForRemoval(t, "acme", "alice")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if env.registry.CommunityCount() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("idle community was never evicted")
}

func TestIdleEvictionCanceledByConnection(t *testing.T) {
	env := newTestEnv(t, RegistryConfig{IdleTTL: 50 * time.Millisecond})
	before := env.createCommunity(t, "acme", "alice", "tr-alice")
	ctx := context.Background()

	env.registry.StopConnection("acme", "alice")
	env.waitForRemoval(t, "acme", "alice")

	// Reconnect before the TTL fires; the entry must survive.
	if _, err := env.registry.StartConnection(ctx, "acme", "alice", "tr-alice-2"); err != nil {
		t.Fatalf("StartConnection() error = %v", err)
	}
	env.waitForStatus(t, "acme", "alice", "joined")

	time.Sleep(120 * time.Millisecond)

	after, err := env.registry.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if after != before {
		t.Error("community was evicted despite an active connection")
	}
}

func TestEvictionDoesNotLoseState(t *testing.T) {
	env := newTestEnv(t, RegistryConfig{IdleTTL: 20 * time.Millisecond})
	env.createCommunity(t, "acme", "alice", "tr-alice")
	ctx := context.Background()

	// Admit bob, then let the community fall out of memory.
	if err := env.registry.DeliverMembership(ctx, "acme", "alice", "tr-alice", []byte(`{"op":"add","user_id":"bob"}`)); err != nil {
		t.Fatalf("DeliverMembership() error = %v", err)
	}
	env.registry.StopConnection("acme", "alice")
	env.waitForRemoval(t, "acme", "alice")

	deadline := time.Now().Add(2 * time.Second)
	for env.registry.CommunityCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// Rehydration must still know bob.
	if _, err := env.registry.StartConnection(ctx, "acme", "bob", "tr-bob"); err != nil {
		t.Fatalf("StartConnection() after eviction error = %v", err)
	}
	env.waitForStatus(t, "acme", "bob", "joined")
}

func TestSignInDuringEvictionLandsOnLiveEntry(t *testing.T) {
	env := newTestEnv(t, RegistryConfig{})
	env.createCommunity(t, "acme", "alice", "tr-alice")
	ctx := context.Background()

	env.registry.StopConnection("acme", "alice")
	env.waitForRemoval(t, "acme", "alice")

	stale, err := env.registry.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	// Hold the entry's lock so the sign-in below passes its lookup but
	// blocks before mutating, then discard the entry the way the idle
	// timer does and release the lock.
	stale.mu.Lock()
	done := make(chan error, 1)
	go func() {
		_, err := env.registry.StartConnection(ctx, "acme", "alice", "tr-alice-2")
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	stale.evicted = true
	if stale.evict != nil {
		stale.evict.Stop()
		stale.evict = nil
	}
	env.registry.communities.Delete("acme")
	stale.mu.Unlock()

	if err := <-done; err != nil {
		t.Fatalf("StartConnection() error = %v", err)
	}
	env.waitForStatus(t, "acme", "alice", "joined")

	// The connection must be visible on the registry's current entry,
	// not stranded on the discarded one.
	cur, err := env.registry.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get() after eviction error = %v", err)
	}
	if _, ok := cur.runner("alice"); !ok {
		t.Error("sign-in succeeded but the registry's entry has no connection for alice")
	}
	if _, ok := stale.runner("alice"); ok {
		t.Error("connection landed on the discarded entry")
	}
}

func TestRepeatedSignInSurvivesIdleEviction(t *testing.T) {
	env := newTestEnv(t, RegistryConfig{IdleTTL: time.Millisecond})
	env.createCommunity(t, "acme", "alice", "tr-alice")
	ctx := context.Background()

	// Each round leaves the community idle just long enough for the
	// eviction timer to race the next sign-in.
	for i := 0; i < 25; i++ {
		env.registry.StopConnection("acme", "alice")
		env.waitForRemoval(t, "acme", "alice")
		time.Sleep(time.Millisecond)

		if _, err := env.registry.StartConnection(ctx, "acme", "alice", "tr-alice"); err != nil {
			t.Fatalf("round %d: StartConnection() error = %v", i, err)
		}
		c, err := env.registry.Get(ctx, "acme")
		if err != nil {
			t.Fatalf("round %d: Get() error = %v", i, err)
		}
		if _, ok := c.runner("alice"); !ok {
			t.Fatalf("round %d: connection missing from the registry's entry", i)
		}
	}
}

func TestRegistryStatus(t *testing.T) {
	env := newTestEnv(t, RegistryConfig{})
	env.createCommunity(t, "acme", "alice", "tr-alice")

	st, err := env.registry.Status(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.TeamID != "acme" || st.ConnectionCount != 1 {
		t.Errorf("Status() = %+v, want acme with one connection", st)
	}
	if len(st.Users) != 1 || st.Users[0].UserID != "alice" || st.Users[0].Status != "joined" {
		t.Errorf("Users = %+v, want alice joined", st.Users)
	}
}
