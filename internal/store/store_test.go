package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateAppliesOnFreshDB(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so run it again to check idempotency.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (local_state + handoffs)", result.Version)
	}
	if result.Dirty {
		t.Error("migration left the schema dirty")
	}
	if result.From != 2 {
		t.Errorf("from = %d, want 2", result.From)
	}
}

func TestMigrateRefusesDirtySchema(t *testing.T) {
	db := testDB(t)
	if _, err := db.Exec(`UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); !errors.Is(err, ErrDirtySchema) {
		t.Fatalf("Migrate on dirty schema = %v, want ErrDirtySchema", err)
	}
}

func TestOpenMigratedFirstRunReportsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")
	db, res, err := OpenMigrated(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if !res.Changed || res.From != 0 || res.Version != 2 {
		t.Errorf("result = %+v, want Changed at version 2", res)
	}
}

func TestLoginStateRoundTrip(t *testing.T) {
	db := testDB(t)

	st, err := db.LoadState()
	if err != nil {
		t.Fatal(err)
	}
	if st != (LocalState{}) {
		t.Fatalf("fresh state = %+v, want empty", st)
	}

	if err := db.SaveLogin("tok", `{"id":"u1","name":"Asha"}`, false); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveLastChat("u1_u2"); err != nil {
		t.Fatal(err)
	}

	st, err = db.LoadState()
	if err != nil {
		t.Fatal(err)
	}
	if st.Token != "tok" || st.User != `{"id":"u1","name":"Asha"}` || st.LastChat != "u1_u2" {
		t.Errorf("state = %+v", st)
	}

	// Second login overwrites in place.
	if err := db.SaveLogin("tok2", `{"id":"u1"}`, true); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := db.GetState(KeyToken); !ok || v != "tok2" {
		t.Errorf("token = %q (%v), want tok2", v, ok)
	}
	if _, ok, _ := db.GetState(KeyLastChat); !ok {
		t.Error("lastChat dropped by a login that kept it")
	}

	// A login for another user drops lastChat with it.
	if err := db.SaveLogin("tok3", `{"id":"u3"}`, false); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := db.GetState(KeyLastChat); ok {
		t.Error("lastChat survived a login that dropped it")
	}
}

func TestClearStateRemovesEverything(t *testing.T) {
	db := testDB(t)
	if err := db.SaveLogin("tok", `{}`, false); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveLastChat("u1_u2"); err != nil {
		t.Fatal(err)
	}
	if err := db.ClearState(); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{KeyToken, KeyUser, KeyLastChat} {
		if _, ok, err := db.GetState(key); err != nil || ok {
			t.Errorf("%s still set after ClearState (err=%v)", key, err)
		}
	}
	// Clearing an empty store is fine.
	if err := db.ClearState(); err != nil {
		t.Errorf("second ClearState: %v", err)
	}
}

func TestSaveUserKeepsToken(t *testing.T) {
	db := testDB(t)
	if err := db.SaveLogin("tok", `{"name":"old"}`, false); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveUser(`{"name":"new"}`); err != nil {
		t.Fatal(err)
	}
	st, _ := db.LoadState()
	if st.Token != "tok" || st.User != `{"name":"new"}` {
		t.Errorf("state = %+v", st)
	}
}

func TestRecordHandoffIdempotent(t *testing.T) {
	db := testDB(t)

	h := &Handoff{SelfID: "u1", RoomID: "u1_u2", PeerID: "u2", Role: RoleRequester}
	fresh, err := db.RecordHandoff(h)
	if err != nil {
		t.Fatal(err)
	}
	if !fresh {
		t.Error("first record should be fresh")
	}

	again := &Handoff{SelfID: "u1", RoomID: "u1_u2", PeerID: "u2", PeerName: "Ravi", Role: RoleRequester}
	fresh, err = db.RecordHandoff(again)
	if err != nil {
		t.Fatal(err)
	}
	if fresh {
		t.Error("re-delivered record should not be fresh")
	}

	got, err := db.GetHandoff("u1", "u1_u2")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.PeerName != "Ravi" || got.Role != RoleRequester {
		t.Errorf("handoff = %+v", got)
	}

	list, err := db.ListHandoffs("u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("got %d handoffs, want 1", len(list))
	}
}

func TestListHandoffsNewestFirst(t *testing.T) {
	db := testDB(t)

	for _, room := range []string{"u1_u2", "u1_u3", "u1_u4"} {
		if _, err := db.RecordHandoff(&Handoff{SelfID: "u1", RoomID: room, PeerID: room[3:], Role: RoleAccepter}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	// Another user's handoffs are not listed.
	if _, err := db.RecordHandoff(&Handoff{SelfID: "u9", RoomID: "u2_u9", PeerID: "u2", Role: RoleAccepter}); err != nil {
		t.Fatal(err)
	}

	list, err := db.ListHandoffs("u1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].RoomID != "u1_u4" || list[1].RoomID != "u1_u3" {
		t.Errorf("list = %+v, want u1_u4 then u1_u3", list)
	}
}

func TestGetHandoffMissing(t *testing.T) {
	db := testDB(t)
	h, err := db.GetHandoff("u1", "u1_u2")
	if err != nil {
		t.Fatal(err)
	}
	if h != nil {
		t.Errorf("expected nil, got %+v", h)
	}
}

func TestHandoffRoleConstraint(t *testing.T) {
	db := testDB(t)
	if _, err := db.RecordHandoff(&Handoff{SelfID: "u1", RoomID: "u1_u2", PeerID: "u2", Role: "spectator"}); err == nil {
		t.Error("expected CHECK constraint failure for unknown role")
	}
}
