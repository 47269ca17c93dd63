package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// MySQLStore implements Store on top of a MySQL database.  Every repository
// it hands out shares the same connection pool; transactional repositories
// are bound to the *sqlx.Tx of the running unit of work.
type MySQLStore struct {
	db *sqlx.DB
}

// NewMySQLStore returns a Store bound to the provided database.
func NewMySQLStore(db *sqlx.DB) *MySQLStore {
	if db == nil {
		panic("nil db passed to NewMySQLStore")
	}
	return &MySQLStore{db: db}
}

// DB exposes the underlying handle (used by health checks).
func (s *MySQLStore) DB() *sqlx.DB { return s.db }

func (s *MySQLStore) Seats() SeatRepository                 { return &seatRepo{ext: s.db} }
func (s *MySQLStore) Bookings() BookingRepository           { return &bookingRepo{ext: s.db} }
func (s *MySQLStore) PaymentEvents() PaymentEventRepository { return &paymentEventRepo{ext: s.db} }
func (s *MySQLStore) Catalog() CatalogRepository            { return &catalogRepo{ext: s.db} }
func (s *MySQLStore) Users() UserRepository                 { return &userRepo{ext: s.db} }

// WithTx begins a transaction, runs fn and commits when fn returns nil.  The
// post-commit hooks registered on the Tx run only after Commit succeeded;
// on any error the transaction is rolled back and the hooks are discarded.
func (s *MySQLStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	unit := &mysqlTx{tx: tx}
	if err := fn(ctx, unit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", translate(err))
	}
	committed = true
	for _, hook := range unit.hooks {
		hook()
	}
	return nil
}

type mysqlTx struct {
	tx    *sqlx.Tx
	hooks []func()
}

func (t *mysqlTx) Seats() SeatTxRepository       { return &seatRepo{ext: t.tx} }
func (t *mysqlTx) Bookings() BookingTxRepository { return &bookingRepo{ext: t.tx} }
func (t *mysqlTx) Catalog() CatalogTxRepository  { return &catalogRepo{ext: t.tx} }
func (t *mysqlTx) OnCommit(fn func())            { t.hooks = append(t.hooks, fn) }

// inClause expands the slice arguments of query with sqlx.In and rebinds the
// result for the driver behind ext.
func inClause(ext sqlx.ExtContext, query string, args ...interface{}) (string, []interface{}, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return ext.Rebind(q), a, nil
}
