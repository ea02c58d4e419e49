package budget

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ConsolidationWindow is how long an unpinned latest version keeps absorbing
// subsequent saves in place before the next save appends a new version.
const ConsolidationWindow = 15 * time.Minute

// SaveAction is the version-history effect chosen for a save.
type SaveAction int

const (
	// ActionNone leaves the history untouched; the incoming state matched
	// the latest version.
	ActionNone SaveAction = iota
	// ActionPinOnly flips the pinned flag (and optionally the note) on the
	// latest version without writing state.
	ActionPinOnly
	// ActionOverwrite rewrites the latest version's state and timestamp,
	// keeping its number. Rapid auto-saves consolidate through this path.
	ActionOverwrite
	// ActionAppend creates the next version number.
	ActionAppend
)

// Decision is the outcome of applying the consolidation policy to one save.
type Decision struct {
	Action SaveAction
	Note   string
	Pinned bool
}

// volatileFields are top-level state keys ignored when comparing states.
var volatileFields = []string{"updatedAt", "savedAt", "timestamp"}

// DecideSave applies the consolidation policy for a save against the current
// latest version. The decision is pure; callers own persistence and
// concurrency control. window <= 0 falls back to ConsolidationWindow.
func DecideSave(latest Version, newState json.RawMessage, note string, pin bool, now time.Time, window time.Duration) (Decision, error) {
	if window <= 0 {
		window = ConsolidationWindow
	}
	same, err := statesEqual(latest.State, newState)
	if err != nil {
		return Decision{}, err
	}
	note = strings.TrimSpace(note)
	if same {
		if pin && !latest.Pinned {
			return Decision{Action: ActionPinOnly, Note: note, Pinned: true}, nil
		}
		return Decision{Action: ActionNone}, nil
	}
	if !latest.Pinned && !pin && now.Sub(latest.CreatedAt) < window {
		return Decision{Action: ActionOverwrite}, nil
	}
	return Decision{Action: ActionAppend, Note: resolveNote(note, pin), Pinned: pin}, nil
}

// RestoreNote is the note recorded when a historical version is restored.
func RestoreNote(versionNumber int32) string {
	return fmt.Sprintf("Restored to version %d", versionNumber)
}

func resolveNote(note string, pin bool) string {
	if note != "" {
		return note
	}
	if pin {
		return NoteShared
	}
	return NoteAutoSave
}

// statesEqual compares two state documents after normalization.
func statesEqual(a, b json.RawMessage) (bool, error) {
	na, err := NormalizeState(a)
	if err != nil {
		return false, err
	}
	nb, err := NormalizeState(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(na, nb), nil
}

// NormalizeState canonicalizes a state document for comparison: volatile
// top-level fields are dropped and the remainder is re-serialized with map
// keys sorted, so two saves of the same logical state are byte-equal no
// matter how the JSON arrived.
func NormalizeState(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return []byte("{}"), nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("normalize state: %w", err)
	}
	if obj, ok := doc.(map[string]any); ok {
		for _, field := range volatileFields {
			delete(obj, field)
		}
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalize state: %w", err)
	}
	return out, nil
}
