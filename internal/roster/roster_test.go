package roster

import (
	"errors"
	"testing"

	"callsign/internal/script"
)

func newTestRegistry() *Registry {
	return New(script.Roles{
		Exclusive: []string{"alpha", "beta"},
		Observer:  "crowd",
	}, nil)
}

func TestClaimExclusiveRole(t *testing.T) {
	r := newTestRegistry()
	if err := r.Claim("alpha", "c1"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := r.Claim("alpha", "c2"); !errors.Is(err, ErrRoleTaken) {
		t.Fatalf("second Claim err = %v, want ErrRoleTaken", err)
	}
	if err := r.Claim("ghost", "c3"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("unknown role err = %v, want ErrUnknownRole", err)
	}
}

func TestClaimByCurrentHolderIsNoOp(t *testing.T) {
	r := newTestRegistry()
	if err := r.Claim("alpha", "c1"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := r.Claim("alpha", "c1"); err != nil {
		t.Fatalf("re-Claim by holder err = %v, want nil", err)
	}
	status := r.Availability()["alpha"]
	if !status.Taken || status.Conn != "c1" {
		t.Fatalf("after re-claim: %+v", status)
	}
	if got := len(r.Participants()); got != 1 {
		t.Fatalf("Participants = %d, want 1", got)
	}
}

func TestObserverRoleIsShared(t *testing.T) {
	r := newTestRegistry()
	for _, conn := range []string{"c1", "c2", "c3"} {
		if err := r.Claim("crowd", conn); err != nil {
			t.Fatalf("Claim(crowd, %s): %v", conn, err)
		}
	}
	if got := len(r.Participants()); got != 3 {
		t.Fatalf("Participants = %d, want 3", got)
	}
}

func TestRoleStaysTakenAfterDisconnect(t *testing.T) {
	r := newTestRegistry()
	if err := r.Claim("alpha", "c1"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	r.Release("c1")

	status := r.Availability()["alpha"]
	if !status.Taken || status.Live {
		t.Fatalf("after release: %+v, want taken and not live", status)
	}
	// A stranger still cannot claim the seat.
	if err := r.Claim("alpha", "c2"); !errors.Is(err, ErrRoleTaken) {
		t.Fatalf("Claim after release err = %v, want ErrRoleTaken", err)
	}
}

func TestReclaimRestoresLiveConnection(t *testing.T) {
	r := newTestRegistry()
	if err := r.Claim("alpha", "c1"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	r.Release("c1")
	if err := r.Reclaim("alpha", "c2"); err != nil {
		t.Fatalf("Reclaim: %v", err)
	}

	status := r.Availability()["alpha"]
	if !status.Taken || !status.Live || status.Conn != "c2" {
		t.Fatalf("after reclaim: %+v", status)
	}
	if role, ok := r.RoleOf("c2"); !ok || role != "alpha" {
		t.Fatalf("RoleOf(c2) = %q, %v", role, ok)
	}
}

func TestReclaimIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	for i := 0; i < 3; i++ {
		if err := r.Reclaim("beta", "c1"); err != nil {
			t.Fatalf("Reclaim #%d: %v", i, err)
		}
	}
	if got := len(r.Participants()); got != 1 {
		t.Fatalf("Participants = %d, want 1", got)
	}
}

func TestReclaimSupersedesStaleConnection(t *testing.T) {
	r := newTestRegistry()
	if err := r.Claim("alpha", "c1"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	// Page transition: new socket reclaims before the old one closes.
	if err := r.Reclaim("alpha", "c2"); err != nil {
		t.Fatalf("Reclaim: %v", err)
	}
	if _, ok := r.RoleOf("c1"); ok {
		t.Fatal("stale connection still mapped to role")
	}
	if conn, ok := r.LiveConn("alpha"); !ok || conn != "c2" {
		t.Fatalf("LiveConn = %q, %v", conn, ok)
	}
}

func TestResetClearsTakenSet(t *testing.T) {
	r := newTestRegistry()
	if err := r.Claim("alpha", "c1"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := r.Claim("crowd", "c2"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	r.Reset()

	if status := r.Availability()["alpha"]; status.Taken {
		t.Fatalf("after reset: %+v, want not taken", status)
	}
	if got := len(r.Participants()); got != 0 {
		t.Fatalf("Participants = %d, want 0", got)
	}
	if err := r.Claim("alpha", "c3"); err != nil {
		t.Fatalf("Claim after reset: %v", err)
	}
}
