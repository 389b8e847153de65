package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/mrzor/procwatch/internal/integrity"
)

func activeRecord(pid, ppid int32, name string, startedAt time.Time) Record {
	return Record{
		PID:       pid,
		ParentPID: ppid,
		Name:      name,
		StartedAt: startedAt,
		Status:    StatusActive,
	}
}

func TestRegistry_UpsertInsertsOnce(t *testing.T) {
	r := New()
	base := time.Now()

	if !r.Upsert(activeRecord(100, 0, "root", base)) {
		t.Fatal("first Upsert() = false, want true")
	}

	// Second write for the same PID must not touch the stored identity.
	dup := activeRecord(100, 0, "impostor", base.Add(time.Second))
	if r.Upsert(dup) {
		t.Error("duplicate Upsert() = true, want false")
	}

	got, ok := r.Get(100)
	if !ok {
		t.Fatal("Get(100) missing record")
	}
	if got.Name != "root" {
		t.Errorf("Name = %q, want first-write value", got.Name)
	}
}

func TestRegistry_UpsertNormalizes(t *testing.T) {
	r := New()

	r.Upsert(Record{PID: 200, ParentPID: 100, StartedAt: time.Now()})

	got, _ := r.Get(200)
	if got.Status != StatusPending {
		t.Errorf("Status = %q, want pending default", got.Status)
	}
	if got.SHA256 != integrity.Unavailable {
		t.Errorf("SHA256 = %q, want sentinel, never blank", got.SHA256)
	}
	if got.HasExited {
		t.Error("HasExited = true for non-terminal record")
	}
}

func TestRegistry_StatusForwardOnly(t *testing.T) {
	r := New()
	r.Upsert(Record{PID: 200, ParentPID: 100, Status: StatusPending, StartedAt: time.Now()})
	r.Watch(200)

	if !r.UpdateStatus(200, StatusActive) {
		t.Fatal("pending->active should apply")
	}
	if !r.UpdateStatus(200, StatusTerminated) {
		t.Fatal("active->terminated should apply")
	}

	// Terminated is absorbing: re-activation and repeats are no-ops.
	if r.UpdateStatus(200, StatusActive) {
		t.Error("terminated->active applied, monotonicity violated")
	}
	if r.UpdateStatus(200, StatusTerminated) {
		t.Error("repeated termination reported a change")
	}

	got, _ := r.Get(200)
	if got.Status != StatusTerminated || !got.HasExited {
		t.Errorf("record = %+v, want terminated with HasExited", got)
	}
	if got.ExitedAt.IsZero() {
		t.Error("ExitedAt not stamped on termination")
	}
}

func TestRegistry_TerminationUnwatches(t *testing.T) {
	r := New()
	r.Upsert(Record{PID: 200, ParentPID: 100, Status: StatusActive, StartedAt: time.Now()})
	r.Watch(200)

	if !r.Watched(200) {
		t.Fatal("Watched(200) = false after Watch")
	}

	r.UpdateStatus(200, StatusTerminated)
	if r.Watched(200) {
		t.Error("terminated PID still in the monitored-ID set")
	}
}

func TestRegistry_UpdateStatusUnknownPID(t *testing.T) {
	r := New()
	if r.UpdateStatus(9999, StatusTerminated) {
		t.Error("UpdateStatus on unknown PID reported a change")
	}
}

func TestRegistry_Backfill(t *testing.T) {
	r := New()
	r.Upsert(Record{PID: 300, ParentPID: 100, StartedAt: time.Now()})

	r.Backfill(300, "worker", "worker --serve", "/usr/bin/worker", "abc123")

	got, _ := r.Get(300)
	if got.Name != "worker" || got.Cmdline != "worker --serve" || got.ExePath != "/usr/bin/worker" {
		t.Errorf("Backfill did not fill empty fields: %+v", got)
	}
	if got.SHA256 != "abc123" {
		t.Errorf("SHA256 = %q, want backfilled digest", got.SHA256)
	}

	// Populated fields are never overwritten.
	r.Backfill(300, "other", "other", "/bin/other", "def456")
	got, _ = r.Get(300)
	if got.Name != "worker" || got.SHA256 != "abc123" {
		t.Errorf("Backfill overwrote populated fields: %+v", got)
	}
}

func TestRegistry_RefreshOnlyWhilePending(t *testing.T) {
	r := New()
	r.Upsert(Record{
		PID: 400, ParentPID: 100, Name: "sh", Cmdline: "sh -c gcc",
		ExePath: "/bin/sh", SHA256: "aaaa", StartedAt: time.Now(),
	})

	if !r.Refresh(400, "gcc", "gcc -c main.c", "/usr/bin/gcc", "bbbb") {
		t.Fatal("Refresh on a pending record did not apply")
	}
	got, _ := r.Get(400)
	if got.Name != "gcc" || got.ExePath != "/usr/bin/gcc" || got.SHA256 != "bbbb" {
		t.Errorf("Refresh did not replace identity: %+v", got)
	}

	r.UpdateStatus(400, StatusActive)
	if r.Refresh(400, "vim", "vim", "/usr/bin/vim", "cccc") {
		t.Error("Refresh applied to a confirmed record")
	}
	got, _ = r.Get(400)
	if got.Name != "gcc" {
		t.Errorf("identity changed after confirmation: %+v", got)
	}
}

func TestRegistry_RefreshKeepsFieldsWithoutReplacement(t *testing.T) {
	r := New()
	r.Upsert(Record{PID: 401, Name: "sh", ExePath: "/bin/sh", StartedAt: time.Now()})

	r.Refresh(401, "", "", "", "")

	got, _ := r.Get(401)
	if got.Name != "sh" || got.ExePath != "/bin/sh" {
		t.Errorf("empty refresh blanked fields: %+v", got)
	}
}

func TestRegistry_RefreshUnknownPID(t *testing.T) {
	r := New()
	if r.Refresh(9999, "x", "x", "/x", "dddd") {
		t.Error("Refresh on unknown PID reported success")
	}
}

func TestRegistry_SnapshotOrdering(t *testing.T) {
	r := New()
	base := time.Now()

	r.Upsert(activeRecord(300, 100, "late", base.Add(2*time.Second)))
	r.Upsert(activeRecord(100, 0, "root", base))
	r.Upsert(activeRecord(200, 100, "mid", base.Add(time.Second)))
	// Same timestamp as PID 200: PID breaks the tie.
	r.Upsert(activeRecord(150, 100, "tie", base.Add(time.Second)))

	snap := r.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("Snapshot() length = %d, want 4", len(snap))
	}

	wantOrder := []int32{100, 150, 200, 300}
	for i, want := range wantOrder {
		if snap[i].PID != want {
			t.Errorf("snapshot[%d].PID = %d, want %d", i, snap[i].PID, want)
		}
	}
}

func TestRegistry_SnapshotIsolation(t *testing.T) {
	r := New()
	r.Upsert(activeRecord(100, 0, "root", time.Now()))

	snap := r.Snapshot()
	r.UpdateStatus(100, StatusTerminated)

	if snap[0].Status != StatusActive {
		t.Error("snapshot mutated by a later registry write")
	}
}

func TestRegistry_Counts(t *testing.T) {
	r := New()
	base := time.Now()
	r.Upsert(activeRecord(100, 0, "root", base))
	r.Upsert(Record{PID: 200, ParentPID: 100, Status: StatusPending, StartedAt: base})
	r.Upsert(activeRecord(300, 100, "gone", base))
	r.UpdateStatus(300, StatusTerminated)

	pending, active, terminated := r.Counts()
	if pending != 1 || active != 1 || terminated != 1 {
		t.Errorf("Counts() = (%d, %d, %d), want (1, 1, 1)", pending, active, terminated)
	}
}

func TestRegistry_ConcurrentSnapshotAndMutation(t *testing.T) {
	r := New()
	base := time.Now()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for pid := int32(1); pid <= 500; pid++ {
			r.Upsert(activeRecord(pid, 0, "p", base.Add(time.Duration(pid))))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			for _, rec := range r.Snapshot() {
				if rec.PID == 0 {
					t.Error("snapshot exposed a zero record")
					return
				}
			}
		}
	}()

	wg.Wait()

	if r.Len() != 500 {
		t.Errorf("Len() = %d after concurrent inserts, want 500", r.Len())
	}
}
