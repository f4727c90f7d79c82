// Package sqlite implements store.Store on an embedded SQLite database via
// grove. Unlike the document store it is safe for several processes sharing
// one state: every multi-row change runs in a transaction and the database
// serializes writers.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate" // registers the "sqlite" migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/credits"
	"github.com/xraph/credits/identity"
	"github.com/xraph/credits/pending"
	credstore "github.com/xraph/credits/store"
	"github.com/xraph/credits/types"
)

// compile-time interface check
var _ credstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Open opens (creating if needed) the database file at path with a busy
// timeout, so concurrent processes wait for the write lock instead of
// failing immediately.
func Open(ctx context.Context, path string) (*Store, error) {
	sdb := sqlitedriver.New()
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_txlock=immediate"
	if err := sdb.Open(ctx, dsn); err != nil {
		return nil, fmt.Errorf("credits/sqlite: open %s: %w", path, err)
	}
	db, err := grove.Open(sdb)
	if err != nil {
		sdb.Close() //nolint:errcheck // best-effort close after failed wrap
		return nil, fmt.Errorf("credits/sqlite: wrap driver: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("credits/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", credits.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil && !errors.Is(err, grove.ErrDriverClosed) {
		return err
	}
	return nil
}

// ==================== Identity ====================

func (s *Store) LoadIdentity(ctx context.Context) (*identity.Identity, error) {
	m, err := s.loadState(ctx)
	if err != nil {
		return nil, err
	}
	return fromStateModel(m), nil
}

func (s *Store) EnsureDeviceID(ctx context.Context, candidate string) (string, error) {
	_, err := s.sdb.NewUpdate((*stateModel)(nil)).
		Set("device_id = ?", candidate).
		Set("updated_at = ?", now()).
		Where("id = ?", stateRowID).
		Where("device_id = ''").
		Exec(ctx)
	if err != nil {
		return "", err
	}
	m, err := s.loadState(ctx)
	if err != nil {
		return "", err
	}
	return m.DeviceID, nil
}

func (s *Store) SaveCredentials(ctx context.Context, subjectID, accessToken string) error {
	_, err := s.sdb.NewUpdate((*stateModel)(nil)).
		Set("subject_id = ?", subjectID).
		Set("access_token = ?", accessToken).
		Set("updated_at = ?", now()).
		Where("id = ?", stateRowID).
		Exec(ctx)
	return err
}

func (s *Store) ClearCredentials(ctx context.Context) error {
	return s.SaveCredentials(ctx, "", "")
}

// ==================== Settings ====================

func (s *Store) APIBase(ctx context.Context) (string, error) {
	m, err := s.loadState(ctx)
	if err != nil {
		return "", err
	}
	return m.APIBase, nil
}

func (s *Store) SetAPIBase(ctx context.Context, base string) error {
	_, err := s.sdb.NewUpdate((*stateModel)(nil)).
		Set("api_base = ?", strings.TrimSpace(base)).
		Set("updated_at = ?", now()).
		Where("id = ?", stateRowID).
		Exec(ctx)
	return err
}

func (s *Store) loadState(ctx context.Context) (*stateModel, error) {
	m := new(stateModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", stateRowID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("credits/sqlite: state row missing, run Migrate: %w", err)
		}
		return nil, err
	}
	return m, nil
}

// ==================== Balance ====================

func (s *Store) SaveBalance(ctx context.Context, b types.Balance) error {
	_, err := upsertBalance(s.sdb.NewInsert(toBalanceModel(b))).Exec(ctx)
	return err
}

func (s *Store) LoadBalance(ctx context.Context) (types.Balance, error) {
	m := new(balanceModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", stateRowID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return types.Zero, credits.ErrBalanceNotCached
		}
		return types.Zero, err
	}
	return types.NewBalance(m.FreeRemaining, m.PaidCredits), nil
}

func upsertBalance(q *sqlitedriver.InsertQuery) *sqlitedriver.InsertQuery {
	return q.OnConflict("(id) DO UPDATE").
		Set("free_remaining = excluded.free_remaining").
		Set("paid_credits = excluded.paid_credits").
		Set("updated_at = excluded.updated_at")
}

// ==================== Pending ====================

func (s *Store) AppendPending(ctx context.Context, c *pending.Consumption) error {
	_, err := s.sdb.NewInsert(toPendingModel(c)).Exec(ctx)
	return err
}

func (s *Store) LoadPending(ctx context.Context) ([]*pending.Consumption, error) {
	var models []pendingModel
	if err := s.sdb.NewSelect(&models).OrderExpr("seq ASC").Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*pending.Consumption, 0, len(models))
	for i := range models {
		result = append(result, fromPendingModel(&models[i]))
	}
	return result, nil
}

// SavePending replaces the queue in one transaction. Items keep the order of
// the slice.
func (s *Store) SavePending(ctx context.Context, items []*pending.Consumption) error {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if _, err := tx.NewDelete((*pendingModel)(nil)).Exec(ctx); err != nil {
		return err
	}
	for _, c := range items {
		if _, err := tx.NewInsert(toPendingModel(c)).Exec(ctx); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) PendingTotal(ctx context.Context) (int64, error) {
	var total int64
	err := s.sdb.NewRaw(`SELECT COALESCE(SUM(cost), 0) FROM credits_pending`).Scan(ctx, &total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) RemovePending(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	var removed int64
	for _, cid := range ids {
		res, err := tx.NewDelete((*pendingModel)(nil)).
			Where("id = ?", cid).
			Exec(ctx)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		removed += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(removed), nil
}

// CommitOfflineDebit reads, checks and debits the cached balance inside one
// transaction. The balance update is conditional on the values read, so a
// writer that slipped in between fails the commit instead of being
// overwritten.
func (s *Store) CommitOfflineDebit(ctx context.Context, c *pending.Consumption) (types.Balance, error) {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return types.Zero, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	cur := new(balanceModel)
	if err := tx.NewSelect(cur).Where("id = ?", stateRowID).Scan(ctx); err != nil {
		if isNoRows(err) {
			return types.Zero, credits.ErrBalanceNotCached
		}
		return types.Zero, err
	}
	next, ok := types.NewBalance(cur.FreeRemaining, cur.PaidCredits).Debit(c.Cost)
	if !ok {
		return types.Zero, credits.ErrInsufficientCredits
	}

	res, err := tx.NewUpdate((*balanceModel)(nil)).
		Set("free_remaining = ?", next.FreeRemaining).
		Set("paid_credits = ?", next.PaidCredits).
		Set("updated_at = ?", now()).
		Where("id = ?", stateRowID).
		Where("free_remaining = ?", cur.FreeRemaining).
		Where("paid_credits = ?", cur.PaidCredits).
		Exec(ctx)
	if err != nil {
		return types.Zero, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return types.Zero, err
	}
	if n != 1 {
		return types.Zero, errBalanceChanged
	}

	if _, err := tx.NewInsert(toPendingModel(c)).Exec(ctx); err != nil {
		return types.Zero, err
	}
	if err := tx.Commit(); err != nil {
		return types.Zero, err
	}
	return next, nil
}

var errBalanceChanged = errors.New("credits/sqlite: cached balance changed during offline debit")

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
