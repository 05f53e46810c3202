package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"profilephoto/internal/models"
)

var (
	ErrNoTransaction     = errors.New("unit of work: no active transaction")
	ErrTransactionActive = errors.New("unit of work: transaction already active")
)

type TxStarter interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// UnitOfWork scopes one transaction. It is not safe for concurrent use and
// does not nest: Begin must be followed by exactly one Commit or Rollback
// before it can be called again.
type UnitOfWork struct {
	db       TxStarter
	tx       pgx.Tx
	profiles *ProfileRepository
}

func NewUnitOfWork(db TxStarter) *UnitOfWork {
	return &UnitOfWork{db: db}
}

func (u *UnitOfWork) Begin(ctx context.Context, level pgx.TxIsoLevel) error {
	if u.tx != nil {
		return ErrTransactionActive
	}
	tx, err := u.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: level})
	if err != nil {
		return classify("tx.begin", err)
	}
	u.tx = tx
	u.profiles = NewProfileRepository(tx)
	return nil
}

func (u *UnitOfWork) GetProfile(ctx context.Context, id uuid.UUID) (models.Profile, error) {
	if u.tx == nil {
		return models.Profile{}, ErrNoTransaction
	}
	return u.profiles.GetByID(ctx, id)
}

func (u *UnitOfWork) UpdateProfile(ctx context.Context, profile models.Profile) error {
	if u.tx == nil {
		return ErrNoTransaction
	}
	return u.profiles.Update(ctx, profile)
}

func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return ErrNoTransaction
	}
	tx := u.release()
	if err := tx.Commit(ctx); err != nil {
		return classify("tx.commit", err)
	}
	return nil
}

// Rollback ends the scope without applying anything. Calling it after the
// scope already ended is a no-op, so it is safe to defer.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	tx := u.release()
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("tx rollback: %w", err)
	}
	return nil
}

func (u *UnitOfWork) release() pgx.Tx {
	tx := u.tx
	u.tx = nil
	u.profiles = nil
	return tx
}
