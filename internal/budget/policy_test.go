package budget

import (
	"encoding/json"
	"testing"
	"time"
)

func latestAt(t *testing.T, state string, createdAt time.Time, pinned bool) Version {
	t.Helper()
	return Version{
		VersionNumber: 3,
		State:         json.RawMessage(state),
		Pinned:        pinned,
		CreatedAt:     createdAt,
	}
}

func TestDecideSaveIdenticalStateIsNoop(t *testing.T) {
	now := time.Now()
	latest := latestAt(t, `{"a":1,"b":2}`, now.Add(-time.Hour), true)

	d, err := DecideSave(latest, json.RawMessage(`{"b":2,"a":1}`), "", false, now, 0)
	if err != nil {
		t.Fatalf("DecideSave: %v", err)
	}
	if d.Action != ActionNone {
		t.Fatalf("action = %d, want ActionNone", d.Action)
	}
}

func TestDecideSaveIgnoresVolatileFields(t *testing.T) {
	now := time.Now()
	latest := latestAt(t, `{"a":1,"updatedAt":"2026-01-01T00:00:00Z"}`, now.Add(-time.Hour), false)

	d, err := DecideSave(latest, json.RawMessage(`{"a":1,"updatedAt":"2026-02-02T00:00:00Z","savedAt":"x","timestamp":9}`), "", false, now, 0)
	if err != nil {
		t.Fatalf("DecideSave: %v", err)
	}
	if d.Action != ActionNone {
		t.Fatalf("action = %d, want ActionNone", d.Action)
	}
}

func TestDecideSaveIdenticalStateWithPinFlipsPin(t *testing.T) {
	now := time.Now()
	latest := latestAt(t, `{"a":1}`, now.Add(-time.Minute), false)

	d, err := DecideSave(latest, json.RawMessage(`{"a":1}`), "Before email", true, now, 0)
	if err != nil {
		t.Fatalf("DecideSave: %v", err)
	}
	if d.Action != ActionPinOnly {
		t.Fatalf("action = %d, want ActionPinOnly", d.Action)
	}
	if !d.Pinned || d.Note != "Before email" {
		t.Fatalf("decision = %+v, want pinned with note", d)
	}
}

func TestDecideSaveFreshUnpinnedOverwrites(t *testing.T) {
	now := time.Now()
	latest := latestAt(t, `{"a":1}`, now.Add(-5*time.Minute), false)

	d, err := DecideSave(latest, json.RawMessage(`{"a":2}`), "", false, now, 0)
	if err != nil {
		t.Fatalf("DecideSave: %v", err)
	}
	if d.Action != ActionOverwrite {
		t.Fatalf("action = %d, want ActionOverwrite", d.Action)
	}
}

func TestDecideSaveStaleAppends(t *testing.T) {
	now := time.Now()
	latest := latestAt(t, `{"a":1}`, now.Add(-16*time.Minute), false)

	d, err := DecideSave(latest, json.RawMessage(`{"a":2}`), "", false, now, 0)
	if err != nil {
		t.Fatalf("DecideSave: %v", err)
	}
	if d.Action != ActionAppend {
		t.Fatalf("action = %d, want ActionAppend", d.Action)
	}
	if d.Note != NoteAutoSave {
		t.Fatalf("note = %q, want %q", d.Note, NoteAutoSave)
	}
	if d.Pinned {
		t.Fatalf("append from auto-save should be unpinned")
	}
}

func TestDecideSaveWindowBoundaryAppends(t *testing.T) {
	now := time.Now()
	latest := latestAt(t, `{"a":1}`, now.Add(-ConsolidationWindow), false)

	d, err := DecideSave(latest, json.RawMessage(`{"a":2}`), "", false, now, 0)
	if err != nil {
		t.Fatalf("DecideSave: %v", err)
	}
	if d.Action != ActionAppend {
		t.Fatalf("save at exactly the window edge should append, got action %d", d.Action)
	}
}

func TestDecideSavePinnedLatestAppends(t *testing.T) {
	now := time.Now()
	latest := latestAt(t, `{"a":1}`, now.Add(-time.Minute), true)

	d, err := DecideSave(latest, json.RawMessage(`{"a":2}`), "", false, now, 0)
	if err != nil {
		t.Fatalf("DecideSave: %v", err)
	}
	if d.Action != ActionAppend {
		t.Fatalf("pinned latest must never be overwritten, got action %d", d.Action)
	}
}

func TestDecideSavePinRequestAppends(t *testing.T) {
	now := time.Now()
	latest := latestAt(t, `{"a":1}`, now.Add(-time.Minute), false)

	d, err := DecideSave(latest, json.RawMessage(`{"a":2}`), "", true, now, 0)
	if err != nil {
		t.Fatalf("DecideSave: %v", err)
	}
	if d.Action != ActionAppend {
		t.Fatalf("pin request must append even inside the window, got action %d", d.Action)
	}
	if !d.Pinned || d.Note != NoteShared {
		t.Fatalf("decision = %+v, want pinned with shared note", d)
	}
}

func TestDecideSaveMalformedState(t *testing.T) {
	now := time.Now()
	latest := latestAt(t, `{"a":1}`, now, false)

	if _, err := DecideSave(latest, json.RawMessage(`{bad`), "", false, now, 0); err == nil {
		t.Fatalf("expected error on malformed state")
	}
}

func TestNormalizeStateEmpty(t *testing.T) {
	out, err := NormalizeState(nil)
	if err != nil {
		t.Fatalf("NormalizeState: %v", err)
	}
	if string(out) != "{}" {
		t.Fatalf("normalized empty state = %q, want {}", out)
	}
}

func TestRestoreNote(t *testing.T) {
	if got := RestoreNote(7); got != "Restored to version 7" {
		t.Fatalf("RestoreNote(7) = %q", got)
	}
}
