package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when an insert collides with an existing key
	ErrConflict = errors.New("record already exists")
	// ErrSchemaMissing is returned when the backing table does not exist yet
	ErrSchemaMissing = errors.New("schema missing")
)

const (
	pgUniqueViolation = "23505"
	pgUndefinedTable  = "42P01"
)

// mapError translates pgx errors into repository sentinels. Errors that
// have no sentinel are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrConflict
		case pgUndefinedTable:
			return ErrSchemaMissing
		}
	}
	return err
}
