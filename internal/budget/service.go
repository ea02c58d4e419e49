package budget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/grantayeye/gamma-budget-planner/internal/events"
	"github.com/grantayeye/gamma-budget-planner/internal/obs"
)

// Locker serializes saves for the same budget across API instances. The
// unique constraint on (budget_id, version_number) remains the backstop when
// the lock is unavailable.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Publisher records budget activity events. Emit failures are logged by the
// bus itself and never fail the save.
type Publisher interface {
	Emit(ctx context.Context, topic string, budgetID uuid.UUID, payload any) error
}

// Service applies the consolidation policy on top of the Store, retrying
// append conflicts with exponential backoff.
type Service struct {
	Store       Store
	Locks       Locker
	Events      Publisher
	Window      time.Duration
	MaxAttempts int
	RetryBase   time.Duration
	Now         func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return 3
}

// Create persists a new budget with its initial pinned version 1.
func (s *Service) Create(ctx context.Context, b *Budget, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	if err := s.Store.Create(ctx, b, raw); err != nil {
		return err
	}
	s.emit(ctx, events.TopicBudgetCreated, b.ID, map[string]any{"propertyType": b.PropertyType})
	return nil
}

// Save applies one update to the budget. The outcome reports whether a new
// version was created, which version number now holds the state, and whether
// the save consolidated into the existing latest version.
func (s *Service) Save(ctx context.Context, id uuid.UUID, state State, note string, pin bool) (SaveResult, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return SaveResult{}, fmt.Errorf("encoding state: %w", err)
	}

	var result SaveResult
	save := func(ctx context.Context) error {
		var saveErr error
		result, saveErr = s.saveWithRetry(ctx, id, raw, note, pin)
		return saveErr
	}
	if s.Locks != nil {
		err = s.Locks.WithLock(ctx, "budget:save:"+id.String(), 10*time.Second, save)
	} else {
		err = save(ctx)
	}
	if err != nil {
		return SaveResult{}, err
	}
	s.emit(ctx, events.TopicBudgetSaved, id, result)
	recordSaveOutcome(result)
	return result, nil
}

func (s *Service) saveWithRetry(ctx context.Context, id uuid.UUID, raw json.RawMessage, note string, pin bool) (SaveResult, error) {
	attempts := s.maxAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		latest, err := s.Store.LatestVersion(ctx, id)
		if err != nil {
			return SaveResult{}, err
		}
		decision, err := DecideSave(*latest, raw, note, pin, s.now(), s.Window)
		if err != nil {
			return SaveResult{}, err
		}

		switch decision.Action {
		case ActionNone:
			return SaveResult{VersionNumber: latest.VersionNumber}, nil
		case ActionPinOnly:
			if err := s.Store.PinLatest(ctx, id, latest.VersionNumber, decision.Note); err != nil {
				return SaveResult{}, err
			}
			return SaveResult{VersionNumber: latest.VersionNumber}, nil
		case ActionOverwrite:
			err := s.Store.OverwriteLatest(ctx, id, latest.VersionNumber, raw, s.now())
			if errors.Is(err, ErrVersionConflict) {
				lastErr = err
				s.backoff(ctx, attempt)
				continue
			}
			if err != nil {
				return SaveResult{}, err
			}
			return SaveResult{VersionNumber: latest.VersionNumber, Consolidated: true}, nil
		case ActionAppend:
			number, err := s.Store.Append(ctx, id, raw, decision.Note, decision.Pinned)
			if errors.Is(err, ErrVersionConflict) {
				lastErr = err
				s.backoff(ctx, attempt)
				continue
			}
			if err != nil {
				return SaveResult{}, err
			}
			return SaveResult{Created: true, VersionNumber: number}, nil
		}
	}
	return SaveResult{}, fmt.Errorf("save exhausted %d attempts: %w", attempts, lastErr)
}

// Restore appends a pinned copy of the historical version. Restores are never
// consolidated away, regardless of window or pin state of the latest version.
func (s *Service) Restore(ctx context.Context, id uuid.UUID, number int32) (SaveResult, error) {
	v, err := s.Store.GetVersion(ctx, id, number)
	if err != nil {
		return SaveResult{}, err
	}
	attempts := s.maxAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		created, err := s.Store.Append(ctx, id, v.State, RestoreNote(number), true)
		if errors.Is(err, ErrVersionConflict) {
			lastErr = err
			s.backoff(ctx, attempt)
			continue
		}
		if err != nil {
			return SaveResult{}, err
		}
		s.emit(ctx, events.TopicBudgetRestored, id, map[string]any{"from": number, "to": created})
		return SaveResult{Created: true, VersionNumber: created}, nil
	}
	return SaveResult{}, fmt.Errorf("restore exhausted %d attempts: %w", attempts, lastErr)
}

// Pin marks the latest version pinned without changing state. Used when a
// budget is shared; an unpinned latest version gets the shared note.
func (s *Service) Pin(ctx context.Context, id uuid.UUID, note string) (*Version, error) {
	latest, err := s.Store.LatestVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	if latest.Pinned {
		return latest, nil
	}
	if note == "" {
		note = NoteShared
	}
	if err := s.Store.PinLatest(ctx, id, latest.VersionNumber, note); err != nil {
		return nil, err
	}
	latest.Pinned = true
	latest.Note = note
	s.emit(ctx, events.TopicBudgetShared, id, map[string]any{"versionNumber": latest.VersionNumber})
	return latest, nil
}

// Customize stores a per-budget catalog override and resets the version
// history to a single pinned version. The caller recomputes state against the
// new catalog first.
func (s *Service) Customize(ctx context.Context, id uuid.UUID, customCatalog json.RawMessage, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	if err := s.Store.SetCustomCatalog(ctx, id, customCatalog, raw); err != nil {
		return err
	}
	s.emit(ctx, events.TopicBudgetCustomized, id, nil)
	return nil
}

// Delete removes the budget entirely. Admin only.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.Store.Delete(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, events.TopicBudgetDeleted, id, nil)
	return nil
}

func (s *Service) backoff(ctx context.Context, attempt int) {
	if obs.VersionConflictRetries != nil {
		obs.VersionConflictRetries.Inc()
	}
	base := s.RetryBase
	if base <= 0 {
		base = 25 * time.Millisecond
	}
	delay := base * time.Duration(1<<uint(attempt-1))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s *Service) emit(ctx context.Context, topic string, id uuid.UUID, payload any) {
	if s.Events == nil {
		return
	}
	_ = s.Events.Emit(ctx, topic, id, payload)
}

func recordSaveOutcome(result SaveResult) {
	if obs.BudgetSavesTotal == nil {
		return
	}
	outcome := "noop"
	switch {
	case result.Created:
		outcome = "created"
	case result.Consolidated:
		outcome = "consolidated"
	}
	obs.BudgetSavesTotal.WithLabelValues(outcome).Inc()
}
