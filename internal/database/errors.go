package database

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/uptrace/bun/driver/pgdriver"
)

// ErrStorageUnavailable marks failures of the backing database itself, as
// opposed to caller mistakes.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Unavailable wraps err so that errors.Is(err, ErrStorageUnavailable) holds.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

// SQLState extracts the Postgres error code, or "" for non-server errors.
func SQLState(err error) string {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C')
	}
	return ""
}

// IsDuplicateObject reports the errors Postgres raises when two sessions race
// on CREATE ... IF NOT EXISTS.
func IsDuplicateObject(err error) bool {
	switch SQLState(err) {
	case pgerrcode.UniqueViolation, pgerrcode.DuplicateTable, pgerrcode.DuplicateObject:
		return true
	default:
		return false
	}
}

// IsUniqueViolation reports a unique constraint failure.
func IsUniqueViolation(err error) bool {
	return SQLState(err) == pgerrcode.UniqueViolation
}
