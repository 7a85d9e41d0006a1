package sqlite

import (
	"database/sql"
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/garyjia/jd-approval/pkg/apperrors"
)

// MapError converts a driver error into the application taxonomy.
// Busy or locked databases and unique violations mean another writer won
// and surface as ConflictError; everything else is a StorageError.
// Errors that already carry a kind are returned unchanged.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var appErr apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch {
		case sqliteErr.Code == sqlite3.ErrBusy, sqliteErr.Code == sqlite3.ErrLocked:
			return apperrors.NewConflictError("database", "", "concurrent write in progress, retry")
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return apperrors.NewConflictError("record", "", sqliteErr.Error())
		}
	}

	if errors.Is(err, sql.ErrTxDone) {
		return apperrors.NewConflictError("transaction", "", "transaction already finished")
	}

	return apperrors.NewStorageError(op, err)
}
