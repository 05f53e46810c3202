package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"profilephoto/internal/apperr"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// classify maps driver errors onto apperr kinds. This is the only place a
// TransientConflict is produced.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.E(apperr.KindNotFound, op, ErrProfileNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected:
			return apperr.E(apperr.KindTransientConflict, op, err)
		}
	}
	return apperr.E(apperr.KindUnclassified, op, err)
}
