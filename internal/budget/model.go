package budget

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/grantayeye/gamma-budget-planner/internal/pricing"
)

// Budget is a persisted quote with its full version history. CurrentState
// always mirrors the latest saved state; CustomCatalog, when present,
// replaces the shared catalog for this budget (set by the destructive
// customize operation).
type Budget struct {
	ID            uuid.UUID       `json:"id"`
	ClientName    string          `json:"clientName,omitempty"`
	BuilderName   string          `json:"builderName,omitempty"`
	PropertyType  string          `json:"propertyType"`
	CurrentState  json.RawMessage `json:"currentState"`
	CustomCatalog json.RawMessage `json:"customCatalog,omitempty"`
	ViewCount     int64           `json:"viewCount"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Version is one snapshot in a budget's append-only history. Only the highest
// numbered version may be rewritten, and only while unpinned inside the
// consolidation window; CreatedAt doubles as the version timestamp and moves
// forward on each in-place overwrite.
type Version struct {
	BudgetID      uuid.UUID       `json:"budgetId"`
	VersionNumber int32           `json:"versionNumber"`
	State         json.RawMessage `json:"state"`
	Note          string          `json:"note"`
	Pinned        bool            `json:"pinned"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// State is the snapshot stored per version: the selection plus the totals
// computed from it at save time.
type State struct {
	Selection pricing.Selection `json:"selection"`
	Totals    pricing.Totals    `json:"totals"`
}

// SaveResult reports what a save did to the version history.
type SaveResult struct {
	Created       bool  `json:"created"`
	VersionNumber int32 `json:"versionNumber"`
	Consolidated  bool  `json:"consolidated"`
}

// Well-known version notes.
const (
	NoteCreated    = "Created"
	NoteAutoSave   = "Auto-save"
	NoteShared     = "Shared/Emailed"
	NoteCustomized = "Catalog customized"
)
