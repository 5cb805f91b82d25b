package deployment

import (
	"testing"

	v1 "github.com/kandev/conductor/pkg/api/v1"
)

func TestTrackerRegisterAndLookup(t *testing.T) {
	tr := NewTracker()
	d := &Deployment{ID: "dep1", Path: "/my/pipeline", Design: &v1.Design{ID: "design1"}}
	tr.Register(d)

	byPath, err := tr.ByPath("/my/pipeline")
	if err != nil || byPath.ID != "dep1" {
		t.Fatalf("ByPath failed: %v", err)
	}

	byID, err := tr.ByID("dep1")
	if err != nil || byID.Path != "/my/pipeline" {
		t.Fatalf("ByID failed: %v", err)
	}
}

func TestTrackerLookupNotFound(t *testing.T) {
	tr := NewTracker()
	if _, err := tr.ByPath("/missing"); err != ErrDeploymentNotFound {
		t.Errorf("expected ErrDeploymentNotFound, got %v", err)
	}
	if _, err := tr.ByID("missing"); err != ErrDeploymentNotFound {
		t.Errorf("expected ErrDeploymentNotFound, got %v", err)
	}
}

func TestTrackerRecordAndRecentLogIDs(t *testing.T) {
	tr := NewTracker()
	tr.Register(&Deployment{ID: "dep1", Path: "/p"})

	tr.RecordTrigger("dep1", "exec-1")
	tr.RecordTrigger("dep1", "exec-2")
	tr.RecordTrigger("dep1", "exec-3")

	recent := tr.RecentLogIDs("dep1", 2)
	if len(recent) != 2 || recent[0] != "exec-3" || recent[1] != "exec-2" {
		t.Errorf("unexpected recent log ids: %v", recent)
	}
}

func TestTrackerActiveMarker(t *testing.T) {
	tr := NewTracker()
	tr.Register(&Deployment{ID: "dep1", Path: "/p"})

	if tr.IsActive("dep1") {
		t.Fatal("expected not active before any trigger")
	}

	tr.RecordTrigger("dep1", "exec-1")
	if !tr.IsActive("dep1") {
		t.Fatal("expected active after trigger")
	}

	tr.MarkIdle("dep1", "exec-1")
	if tr.IsActive("dep1") {
		t.Fatal("expected not active after MarkIdle")
	}
}

func TestTrackerMarkIdleIgnoresStaleExecution(t *testing.T) {
	tr := NewTracker()
	tr.Register(&Deployment{ID: "dep1", Path: "/p"})

	tr.RecordTrigger("dep1", "exec-1")
	tr.RecordTrigger("dep1", "exec-2") // supersedes exec-1 as the active marker

	tr.MarkIdle("dep1", "exec-1") // stale: should not clear exec-2's marker
	if !tr.IsActive("dep1") {
		t.Fatal("MarkIdle for a stale execution id should not clear the current marker")
	}
}

func TestTrackerLogExecutionID(t *testing.T) {
	tr := NewTracker()
	tr.Register(&Deployment{ID: "dep1", Path: "/p"})
	tr.RecordTrigger("dep1", "exec-1")

	execID, err := tr.LogExecutionID("dep1", "exec-1")
	if err != nil || execID != "exec-1" {
		t.Fatalf("LogExecutionID failed: %v", err)
	}

	if _, err := tr.LogExecutionID("dep1", "missing"); err == nil {
		t.Error("expected error for unknown log id")
	}
}
