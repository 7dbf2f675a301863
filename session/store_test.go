package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type storeTest struct {
	store *Store
	mr    *miniredis.Miniredis
	now   time.Time
}

func newStoreTest(t *testing.T) *storeTest {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	st := &storeTest{mr: mr, now: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)}
	st.store = NewStore(client, "ps", func() time.Time { return st.now })
	return st
}

func (st *storeTest) advance(d time.Duration) {
	st.now = st.now.Add(d)
	st.mr.FastForward(d)
}

func (st *storeTest) newSession(id string) *Session {
	pol := PolicyFor(TypeStandard)
	return &Session{
		SessionID:      id,
		AccountID:      "acct-1",
		RestaurantID:   "rest-9",
		Role:           "crew",
		Type:           TypeStandard,
		SecurityLevel:  LevelBasic,
		Policy:         pol,
		Compliance:     ComplianceFor(TypeStandard),
		DeviceID: "dev-1",
		Context: Context{
			NetworkClass: "private",
			Performance: Performance{
				ConnectionQuality: "good",
				LatencyMS:         40,
				BandwidthKbps:     8000,
				BatteryPercent:    85,
			},
		},
		Tokens: map[string]string{},
		RiskScore:      100,
		CreatedAt:      st.now.Unix(),
		ExpiresAt:      st.now.Add(pol.AbsoluteLifetime).Unix(),
		LastActivityAt: st.now.Unix(),
	}
}

func TestStoreSaveGetRoundTrip(t *testing.T) {
	st := newStoreTest(t)
	ctx := context.Background()

	sess := st.newSession("s1")
	if err := st.store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := st.store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SchemaVersion != SchemaVersion {
		t.Fatalf("schema version %d, want %d", got.SchemaVersion, SchemaVersion)
	}
	if got.AccountID != sess.AccountID || got.Type != sess.Type || got.Policy != sess.Policy {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Context.Performance != sess.Context.Performance {
		t.Fatalf("performance snapshot mismatch: %+v", got.Context.Performance)
	}

	ids, err := st.store.ActiveSessionIDs(ctx, "acct-1")
	if err != nil {
		t.Fatalf("active ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != "s1" {
		t.Fatalf("unexpected index contents: %v", ids)
	}
}

func TestStoreGetUnknown(t *testing.T) {
	st := newStoreTest(t)

	_, err := st.store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreIdleTimeoutIndependentOfAbsolute(t *testing.T) {
	st := newStoreTest(t)
	ctx := context.Background()

	sess := st.newSession("s1")
	if err := st.store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Stay well inside the 12h absolute lifetime but past the 30m idle
	// window.
	st.advance(31 * time.Minute)

	_, err := st.store.Get(ctx, "s1")
	if !errors.Is(err, ErrIdleTimeout) {
		t.Fatalf("expected ErrIdleTimeout, got %v", err)
	}

	// The idle-expired session is gone for good.
	_, err = st.store.Get(ctx, "s1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after idle removal, got %v", err)
	}
}

func TestStoreTouchActivityExtendsIdleWindow(t *testing.T) {
	st := newStoreTest(t)
	ctx := context.Background()

	sess := st.newSession("s1")
	if err := st.store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	for i := 0; i < 3; i++ {
		st.advance(20 * time.Minute)
		got, err := st.store.Get(ctx, "s1")
		if err != nil {
			t.Fatalf("get after touch %d: %v", i, err)
		}
		if err := st.store.TouchActivity(ctx, got); err != nil {
			t.Fatalf("touch %d: %v", i, err)
		}
	}
}

func TestStoreAbsoluteExpiry(t *testing.T) {
	st := newStoreTest(t)
	ctx := context.Background()

	sess := st.newSession("s1")
	// Keep touching so idle never fires; the absolute bound must still
	// end the session.
	sess.ExpiresAt = st.now.Add(time.Hour).Unix()
	if err := st.store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	st.advance(25 * time.Minute)
	got, err := st.store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := st.store.TouchActivity(ctx, got); err != nil {
		t.Fatalf("touch: %v", err)
	}

	st.advance(40 * time.Minute)
	_, err = st.store.Get(ctx, "s1")
	if !errors.Is(err, ErrExpired) && !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry after absolute lifetime, got %v", err)
	}
}

func TestStoreSaveAlreadyExpired(t *testing.T) {
	st := newStoreTest(t)

	sess := st.newSession("s1")
	sess.ExpiresAt = st.now.Add(-time.Minute).Unix()
	if err := st.store.Save(context.Background(), sess); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestStoreDeleteIdempotent(t *testing.T) {
	st := newStoreTest(t)
	ctx := context.Background()

	sess := st.newSession("s1")
	if err := st.store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	existed, err := st.store.Delete(ctx, sess)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !existed {
		t.Fatal("first delete should report the session existed")
	}

	existed, err = st.store.Delete(ctx, sess)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if existed {
		t.Fatal("second delete should report the session was already gone")
	}

	ids, err := st.store.ActiveSessionIDs(ctx, "acct-1")
	if err != nil {
		t.Fatalf("active ids: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("index should be empty after delete, got %v", ids)
	}
}

func TestStoreDeleteAllForAccount(t *testing.T) {
	st := newStoreTest(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		if err := st.store.Save(ctx, st.newSession(id)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	removed, err := st.store.DeleteAllForAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed %d sessions, want 3", removed)
	}

	for _, id := range []string{"s1", "s2", "s3"} {
		if _, err := st.store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("session %s should be gone, got %v", id, err)
		}
	}
}

func TestStoreIndexKeyedByAccountAlone(t *testing.T) {
	st := newStoreTest(t)
	ctx := context.Background()

	// Sessions saved under different restaurant IDs (or none) land in one
	// account index, so termination needs no tenant hint.
	a := st.newSession("s1")
	a.RestaurantID = "rest-9"
	b := st.newSession("s2")
	b.RestaurantID = ""
	for _, sess := range []*Session{a, b} {
		if err := st.store.Save(ctx, sess); err != nil {
			t.Fatalf("save %s: %v", sess.SessionID, err)
		}
	}

	ids, err := st.store.ActiveSessionIDs(ctx, "acct-1")
	if err != nil {
		t.Fatalf("active ids: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected both sessions indexed, got %v", ids)
	}

	removed, err := st.store.DeleteAllForAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed %d sessions, want 2", removed)
	}
}

func TestStoreBreakWindowsPauseIdleClock(t *testing.T) {
	st := newStoreTest(t)
	ctx := context.Background()

	pol := PolicyFor(TypeBreakExtended)
	sess := st.newSession("s1")
	sess.Type = TypeBreakExtended
	sess.Policy = pol
	sess.ExpiresAt = st.now.Add(pol.AbsoluteLifetime).Unix()
	// A 30-minute break starting 10 minutes in. The 45-minute idle
	// window only counts time outside it.
	sess.Breaks = []BreakWindow{{
		Start: st.now.Add(10 * time.Minute).Unix(),
		End:   st.now.Add(40 * time.Minute).Unix(),
	}}
	if err := st.store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	// 60 minutes of wall time is only 30 active minutes.
	st.advance(60 * time.Minute)
	if _, err := st.store.Get(ctx, "s1"); err != nil {
		t.Fatalf("session should survive through the break: %v", err)
	}

	// 90 minutes of wall time is 60 active minutes, past the window.
	st.advance(30 * time.Minute)
	if _, err := st.store.Get(ctx, "s1"); !errors.Is(err, ErrIdleTimeout) {
		t.Fatalf("expected ErrIdleTimeout past the paused window, got %v", err)
	}
}

func TestStoreRefreshRotationCAS(t *testing.T) {
	st := newStoreTest(t)
	ctx := context.Background()

	sess := st.newSession("s1")
	if err := st.store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.store.SetRefreshID(ctx, sess, "r1"); err != nil {
		t.Fatalf("set refresh: %v", err)
	}

	if err := st.store.RotateRefreshID(ctx, "s1", "r1", "r2"); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	current, err := st.store.CurrentRefreshID(ctx, "s1")
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if current != "r2" {
		t.Fatalf("current refresh ID %q, want r2", current)
	}

	// The superseded ID can never rotate again.
	if err := st.store.RotateRefreshID(ctx, "s1", "r1", "r3"); !errors.Is(err, ErrRefreshMismatch) {
		t.Fatalf("expected ErrRefreshMismatch, got %v", err)
	}
	current, _ = st.store.CurrentRefreshID(ctx, "s1")
	if current != "r2" {
		t.Fatalf("failed rotation must not move the current ID, got %q", current)
	}
}

func TestStoreRefreshRotationUnknownSession(t *testing.T) {
	st := newStoreTest(t)

	err := st.store.RotateRefreshID(context.Background(), "missing", "r1", "r2")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreDeviceSlotCap(t *testing.T) {
	st := newStoreTest(t)
	ctx := context.Background()

	first := st.newSession("s1")
	if err := st.store.AcquireDeviceSlot(ctx, first, 2); err != nil {
		t.Fatalf("acquire s1: %v", err)
	}
	second := st.newSession("s2")
	if err := st.store.AcquireDeviceSlot(ctx, second, 2); err != nil {
		t.Fatalf("acquire s2: %v", err)
	}

	third := st.newSession("s3")
	if err := st.store.AcquireDeviceSlot(ctx, third, 2); !errors.Is(err, ErrDeviceSlotExhausted) {
		t.Fatalf("expected ErrDeviceSlotExhausted, got %v", err)
	}

	count, err := st.store.DeviceSlotCount(ctx, "acct-1", "dev-1")
	if err != nil {
		t.Fatalf("slot count: %v", err)
	}
	if count != 2 {
		t.Fatalf("slot count %d, want 2", count)
	}

	// Terminating a session frees its slot.
	if err := st.store.Save(ctx, first); err != nil {
		t.Fatalf("save s1: %v", err)
	}
	if _, err := st.store.Delete(ctx, first); err != nil {
		t.Fatalf("delete s1: %v", err)
	}
	if err := st.store.AcquireDeviceSlot(ctx, third, 2); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestStoreReleaseDeviceSlotFreesCapacity(t *testing.T) {
	st := newStoreTest(t)
	ctx := context.Background()

	first := st.newSession("s1")
	if err := st.store.AcquireDeviceSlot(ctx, first, 1); err != nil {
		t.Fatalf("acquire s1: %v", err)
	}

	// Creation failed after the acquire; the release must unblock the
	// device without waiting for the set key to expire.
	if err := st.store.ReleaseDeviceSlot(ctx, first); err != nil {
		t.Fatalf("release s1: %v", err)
	}

	second := st.newSession("s2")
	if err := st.store.AcquireDeviceSlot(ctx, second, 1); err != nil {
		t.Fatalf("acquire s2 after release: %v", err)
	}

	// Releasing a slot that was never held is a no-op.
	if err := st.store.ReleaseDeviceSlot(ctx, first); err != nil {
		t.Fatalf("double release: %v", err)
	}
	count, err := st.store.DeviceSlotCount(ctx, "acct-1", "dev-1")
	if err != nil {
		t.Fatalf("slot count: %v", err)
	}
	if count != 1 {
		t.Fatalf("slot count %d, want 1", count)
	}
}

func TestStoreAcquireDeviceSlotIdempotentForSameSession(t *testing.T) {
	st := newStoreTest(t)
	ctx := context.Background()

	sess := st.newSession("s1")
	if err := st.store.AcquireDeviceSlot(ctx, sess, 1); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	// A re-acquire from the only occupant still hits the cap; the set
	// already holds the ID so the caller must not retry blindly.
	if err := st.store.AcquireDeviceSlot(ctx, sess, 1); !errors.Is(err, ErrDeviceSlotExhausted) {
		t.Fatalf("expected ErrDeviceSlotExhausted, got %v", err)
	}
}
