package handoff

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/helpline/internal/api"
	"github.com/matheus3301/helpline/internal/identity"
	"github.com/matheus3301/helpline/internal/room"
	"github.com/matheus3301/helpline/internal/store"
)

// fakeServer accepts each request once, like the real arbiter.
type fakeServer struct {
	taken   map[string]bool
	calls   int
	names   map[string]string
	failErr error
	block   chan struct{} // when set, User waits for it to close
}

func (f *fakeServer) Accept(_ context.Context, _ string, requestID string) error {
	f.calls++
	if f.failErr != nil {
		return f.failErr
	}
	if f.taken[requestID] {
		return api.ErrAcceptRejected
	}
	if f.taken == nil {
		f.taken = make(map[string]bool)
	}
	f.taken[requestID] = true
	return nil
}

func (f *fakeServer) User(ctx context.Context, id, _ string) (*api.User, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if name, ok := f.names[id]; ok {
		return &api.User{ID: id, Name: name}, nil
	}
	return nil, api.ErrNotFound
}

func setup(t *testing.T, self string) (*Handoff, *identity.Context, *store.DB, *fakeServer) {
	t.Helper()
	db, _, err := store.OpenMigrated(filepath.Join(t.TempDir(), "helpline.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	id := identity.New(db)
	if err := id.Init(); err != nil {
		t.Fatal(err)
	}
	if self != "" {
		if err := id.Login("tok-"+self, api.User{ID: self, Name: self}); err != nil {
			t.Fatal(err)
		}
	}
	srv := &fakeServer{names: map[string]string{"u1": "Asha", "u2": "Ravi"}}
	return New(id, srv, db, nil), id, db, srv
}

func TestAcceptComputesSharedRoom(t *testing.T) {
	// u1 posts a request at (12.9, 77.6); u2 nearby accepts it.
	h, id, db, _ := setup(t, "u2")

	got, err := h.Accept(context.Background(), "req-1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got != room.Canonical("u1", "u2") || got != "u1_u2" {
		t.Errorf("room = %q, want u1_u2", got)
	}
	if last, ok := id.LastChat(); !ok || last != got {
		t.Errorf("lastChat = %q, %v", last, ok)
	}

	rec, err := db.GetHandoff("u2", "u1_u2")
	if err != nil || rec == nil {
		t.Fatalf("handoff record = %v, %v", rec, err)
	}
	if rec.Role != store.RoleAccepter || rec.PeerID != "u1" || rec.PeerName != "Asha" || rec.RequestID != "req-1" {
		t.Errorf("record = %+v", rec)
	}

	// The requester derives the same id from its own side.
	requester, _, _, _ := setup(t, "u1")
	res, err := requester.Accepted(context.Background(), string(got))
	if err != nil {
		t.Fatal(err)
	}
	if res.Room != got || res.Peer != "u2" || !res.Fresh {
		t.Errorf("requester result = %+v", res)
	}
	waitForPeerName(t, requester, "Ravi")
}

func TestAcceptRejections(t *testing.T) {
	tests := []struct {
		name      string
		self      string
		requester string
		want      error
		wantCalls int
	}{
		{"logged out", "", "u1", identity.ErrNotLoggedIn, 0},
		{"own request", "u1", "u1", ErrOwnRequest, 0},
		{"bad requester", "u2", "", room.ErrInvalidParticipant, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, id, _, srv := setup(t, tt.self)
			if _, err := h.Accept(context.Background(), "req-1", tt.requester); !errors.Is(err, tt.want) {
				t.Errorf("Accept = %v, want %v", err, tt.want)
			}
			if srv.calls != tt.wantCalls {
				t.Errorf("server calls = %d, want %d", srv.calls, tt.wantCalls)
			}
			if _, ok := id.LastChat(); ok {
				t.Error("lastChat recorded on failure")
			}
		})
	}
}

func TestSecondAccepterIsRejected(t *testing.T) {
	h, id, _, srv := setup(t, "u2")
	srv.taken = map[string]bool{"req-1": true}

	_, err := h.Accept(context.Background(), "req-1", "u1")
	if !errors.Is(err, api.ErrAcceptRejected) {
		t.Fatalf("Accept = %v, want ErrAcceptRejected", err)
	}
	if _, ok := id.LastChat(); ok {
		t.Error("lastChat recorded for a lost race")
	}
}

func TestAcceptedIsIdempotent(t *testing.T) {
	h, id, _, _ := setup(t, "u1")
	ctx := context.Background()

	first, err := h.Accepted(ctx, "u2_u1")
	if err != nil {
		t.Fatal(err)
	}
	if !first.Fresh || first.Room != "u1_u2" {
		t.Errorf("first = %+v, want fresh u1_u2", first)
	}
	again, err := h.Accepted(ctx, "u1_u2")
	if err != nil {
		t.Fatal(err)
	}
	if again.Fresh {
		t.Error("redelivery reported as fresh")
	}

	recent := waitForPeerName(t, h, "Ravi")
	if len(recent) != 1 || recent[0].Role != store.RoleRequester {
		t.Errorf("recent = %+v", recent)
	}
	if last, _ := id.LastChat(); last != "u1_u2" {
		t.Errorf("lastChat = %q", last)
	}
}

func TestAcceptedDoesNotWaitForPeerLookup(t *testing.T) {
	h, id, _, srv := setup(t, "u1")
	srv.block = make(chan struct{})

	done := make(chan Result, 1)
	go func() {
		res, err := h.Accepted(context.Background(), "u1_u2")
		if err != nil {
			t.Error(err)
		}
		done <- res
	}()
	select {
	case res := <-done:
		if !res.Fresh {
			t.Errorf("res = %+v, want fresh", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Accepted blocked on the peer lookup")
	}

	recent, err := h.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].PeerName != "" {
		t.Fatalf("recent before lookup = %+v", recent)
	}
	if last, _ := id.LastChat(); last != "u1_u2" {
		t.Errorf("lastChat = %q", last)
	}

	close(srv.block)
	waitForPeerName(t, h, "Ravi")
}

func waitForPeerName(t *testing.T, h *Handoff, want string) []store.Handoff {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		recent, err := h.Recent(10)
		if err != nil {
			t.Fatal(err)
		}
		if len(recent) > 0 && recent[0].PeerName == want {
			return recent
		}
		if time.Now().After(deadline) {
			t.Fatalf("peer name never became %q: %+v", want, recent)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAcceptedRejectsForeignRooms(t *testing.T) {
	h, _, _, _ := setup(t, "u3")
	if _, err := h.Accepted(context.Background(), "u1_u2"); !errors.Is(err, room.ErrNotAParticipant) {
		t.Errorf("Accepted = %v, want ErrNotAParticipant", err)
	}
	if _, err := h.Accepted(context.Background(), "nonsense"); !errors.Is(err, room.ErrMalformedRoom) {
		t.Errorf("Accepted = %v, want ErrMalformedRoom", err)
	}
}
