package budget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrBudgetNotFound is returned when no budget exists for the given id.
	ErrBudgetNotFound = errors.New("budget not found")
	// ErrVersionNotFound is returned when a budget exists but the requested
	// version number does not.
	ErrVersionNotFound = errors.New("budget version not found")
	// ErrVersionConflict signals a racing append claimed the same version
	// number. Callers should re-read the latest version and retry.
	ErrVersionConflict = errors.New("budget version conflict")
)

const uniqueViolation = "23505"

// Store is the persistence surface the budget service operates against.
type Store interface {
	Create(ctx context.Context, b *Budget, initialState json.RawMessage) error
	Get(ctx context.Context, id uuid.UUID) (*Budget, error)
	List(ctx context.Context, limit, offset int) ([]Budget, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error

	LatestVersion(ctx context.Context, budgetID uuid.UUID) (*Version, error)
	GetVersion(ctx context.Context, budgetID uuid.UUID, number int32) (*Version, error)
	ListVersions(ctx context.Context, budgetID uuid.UUID) ([]Version, error)

	OverwriteLatest(ctx context.Context, budgetID uuid.UUID, number int32, state json.RawMessage, now time.Time) error
	PinLatest(ctx context.Context, budgetID uuid.UUID, number int32, note string) error
	Append(ctx context.Context, budgetID uuid.UUID, state json.RawMessage, note string, pinned bool) (int32, error)

	SetCustomCatalog(ctx context.Context, budgetID uuid.UUID, customCatalog, state json.RawMessage) error
	UpdateCurrentState(ctx context.Context, budgetID uuid.UUID, state json.RawMessage) error
	AddViews(ctx context.Context, budgetID uuid.UUID, delta int64) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const budgetColumns = `id, client_name, builder_name, property_type, current_state, custom_catalog, view_count, created_at, updated_at`

func scanBudget(row pgx.Row) (*Budget, error) {
	var b Budget
	err := row.Scan(
		&b.ID, &b.ClientName, &b.BuilderName, &b.PropertyType,
		&b.CurrentState, &b.CustomCatalog, &b.ViewCount,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBudgetNotFound
		}
		return nil, fmt.Errorf("scanning budget row: %w", err)
	}
	return &b, nil
}

// Create inserts the budget together with its initial pinned version 1.
func (s *PostgresStore) Create(ctx context.Context, b *Budget, initialState json.RawMessage) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = tx.QueryRow(ctx, `
		INSERT INTO budgets (client_name, builder_name, property_type, current_state)
		VALUES ($1, $2, $3, $4)
		RETURNING id, view_count, created_at, updated_at`,
		b.ClientName, b.BuilderName, b.PropertyType, initialState,
	).Scan(&b.ID, &b.ViewCount, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting budget: %w", err)
	}
	b.CurrentState = initialState

	_, err = tx.Exec(ctx, `
		INSERT INTO budget_versions (budget_id, version_number, state, note, pinned)
		VALUES ($1, 1, $2, $3, TRUE)`,
		b.ID, initialState, NoteCreated,
	)
	if err != nil {
		return fmt.Errorf("inserting initial version: %w", err)
	}
	return tx.Commit(ctx)
}

// Get retrieves a budget by id.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Budget, error) {
	query := fmt.Sprintf(`SELECT %s FROM budgets WHERE id = $1`, budgetColumns)
	return scanBudget(s.pool.QueryRow(ctx, query, id))
}

// List returns budgets ordered by last update, newest first.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]Budget, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM budgets ORDER BY updated_at DESC LIMIT $1 OFFSET $2`, budgetColumns)
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing budgets: %w", err)
	}
	defer rows.Close()

	budgets := []Budget{}
	for rows.Next() {
		var b Budget
		err := rows.Scan(
			&b.ID, &b.ClientName, &b.BuilderName, &b.PropertyType,
			&b.CurrentState, &b.CustomCatalog, &b.ViewCount,
			&b.CreatedAt, &b.UpdatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning budget row: %w", err)
		}
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating budget rows: %w", err)
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM budgets`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting budgets: %w", err)
	}
	return budgets, total, nil
}

// Delete removes a budget and, through the cascade, its versions.
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM budgets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting budget: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrBudgetNotFound
	}
	return nil
}

const versionColumns = `budget_id, version_number, state, note, pinned, created_at`

func scanVersion(row pgx.Row, missing error) (*Version, error) {
	var v Version
	err := row.Scan(&v.BudgetID, &v.VersionNumber, &v.State, &v.Note, &v.Pinned, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, missing
		}
		return nil, fmt.Errorf("scanning version row: %w", err)
	}
	return &v, nil
}

// LatestVersion returns the highest numbered version for a budget. A budget
// always has at least version 1, so no rows means the budget does not exist.
func (s *PostgresStore) LatestVersion(ctx context.Context, budgetID uuid.UUID) (*Version, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM budget_versions
		WHERE budget_id = $1
		ORDER BY version_number DESC
		LIMIT 1`, versionColumns)
	return scanVersion(s.pool.QueryRow(ctx, query, budgetID), ErrBudgetNotFound)
}

// GetVersion returns one specific version. The missing-version error is
// distinct from the missing-budget error so callers can 404 precisely.
func (s *PostgresStore) GetVersion(ctx context.Context, budgetID uuid.UUID, number int32) (*Version, error) {
	query := fmt.Sprintf(`SELECT %s FROM budget_versions WHERE budget_id = $1 AND version_number = $2`, versionColumns)
	v, err := scanVersion(s.pool.QueryRow(ctx, query, budgetID, number), ErrVersionNotFound)
	if errors.Is(err, ErrVersionNotFound) {
		if _, budgetErr := s.Get(ctx, budgetID); budgetErr != nil {
			return nil, budgetErr
		}
	}
	return v, err
}

// ListVersions returns the full history, oldest first.
func (s *PostgresStore) ListVersions(ctx context.Context, budgetID uuid.UUID) ([]Version, error) {
	query := fmt.Sprintf(`SELECT %s FROM budget_versions WHERE budget_id = $1 ORDER BY version_number ASC`, versionColumns)
	rows, err := s.pool.Query(ctx, query, budgetID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.BudgetID, &v.VersionNumber, &v.State, &v.Note, &v.Pinned, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning version row: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating version rows: %w", err)
	}
	if len(versions) == 0 {
		return nil, ErrBudgetNotFound
	}
	return versions, nil
}

// OverwriteLatest rewrites the state and timestamp of the given version and
// moves the budget's current state along with it. The guard on pinned keeps
// a racing pin from being silently overwritten.
func (s *PostgresStore) OverwriteLatest(ctx context.Context, budgetID uuid.UUID, number int32, state json.RawMessage, now time.Time) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	result, err := tx.Exec(ctx, `
		UPDATE budget_versions
		SET state = $3, created_at = $4
		WHERE budget_id = $1 AND version_number = $2 AND pinned = FALSE`,
		budgetID, number, state, now,
	)
	if err != nil {
		return fmt.Errorf("overwriting version: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	if err := touchCurrentState(ctx, tx, budgetID, state); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// PinLatest marks the given version pinned, optionally replacing its note.
func (s *PostgresStore) PinLatest(ctx context.Context, budgetID uuid.UUID, number int32, note string) error {
	var result pgconn.CommandTag
	var err error
	if note != "" {
		result, err = s.pool.Exec(ctx, `
			UPDATE budget_versions SET pinned = TRUE, note = $3
			WHERE budget_id = $1 AND version_number = $2`,
			budgetID, number, note)
	} else {
		result, err = s.pool.Exec(ctx, `
			UPDATE budget_versions SET pinned = TRUE
			WHERE budget_id = $1 AND version_number = $2`,
			budgetID, number)
	}
	if err != nil {
		return fmt.Errorf("pinning version: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrVersionNotFound
	}
	return nil
}

// Append inserts the next version for the budget. Version numbers are
// assigned as MAX+1 inside the insert; the primary key on
// (budget_id, version_number) turns a racing append into ErrVersionConflict
// so the caller can retry with a fresh read.
func (s *PostgresStore) Append(ctx context.Context, budgetID uuid.UUID, state json.RawMessage, note string, pinned bool) (int32, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var number int32
	err = tx.QueryRow(ctx, `
		INSERT INTO budget_versions (budget_id, version_number, state, note, pinned)
		SELECT $1, COALESCE(MAX(version_number), 0) + 1, $2, $3, $4
		FROM budget_versions WHERE budget_id = $1
		RETURNING version_number`,
		budgetID, state, note, pinned,
	).Scan(&number)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, ErrVersionConflict
		}
		return 0, fmt.Errorf("appending version: %w", err)
	}
	if err := touchCurrentState(ctx, tx, budgetID, state); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return number, nil
}

// SetCustomCatalog stores a per-budget catalog override and resets the
// version history to a single pinned version 1. Destructive and irreversible.
func (s *PostgresStore) SetCustomCatalog(ctx context.Context, budgetID uuid.UUID, customCatalog, state json.RawMessage) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	result, err := tx.Exec(ctx, `
		UPDATE budgets SET custom_catalog = $2, current_state = $3, updated_at = NOW()
		WHERE id = $1`,
		budgetID, customCatalog, state,
	)
	if err != nil {
		return fmt.Errorf("storing custom catalog: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrBudgetNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM budget_versions WHERE budget_id = $1`, budgetID); err != nil {
		return fmt.Errorf("clearing version history: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO budget_versions (budget_id, version_number, state, note, pinned)
		VALUES ($1, 1, $2, $3, TRUE)`,
		budgetID, state, NoteCustomized,
	)
	if err != nil {
		return fmt.Errorf("reseeding version history: %w", err)
	}
	return tx.Commit(ctx)
}

// UpdateCurrentState replaces only the derived current state, leaving the
// version history alone. Used by the reprice worker after catalog edits.
func (s *PostgresStore) UpdateCurrentState(ctx context.Context, budgetID uuid.UUID, state json.RawMessage) error {
	result, err := s.pool.Exec(ctx,
		`UPDATE budgets SET current_state = $2, updated_at = NOW() WHERE id = $1`,
		budgetID, state,
	)
	if err != nil {
		return fmt.Errorf("updating current state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrBudgetNotFound
	}
	return nil
}

// AddViews folds drained view counter deltas into the budget row.
func (s *PostgresStore) AddViews(ctx context.Context, budgetID uuid.UUID, delta int64) error {
	if delta == 0 {
		return nil
	}
	result, err := s.pool.Exec(ctx,
		`UPDATE budgets SET view_count = view_count + $2 WHERE id = $1`,
		budgetID, delta,
	)
	if err != nil {
		return fmt.Errorf("adding views: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrBudgetNotFound
	}
	return nil
}

func touchCurrentState(ctx context.Context, tx pgx.Tx, budgetID uuid.UUID, state json.RawMessage) error {
	result, err := tx.Exec(ctx,
		`UPDATE budgets SET current_state = $2, updated_at = NOW() WHERE id = $1`,
		budgetID, state,
	)
	if err != nil {
		return fmt.Errorf("updating current state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrBudgetNotFound
	}
	return nil
}
