package repository

import (
	"errors"
	"fmt"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/mattn/go-sqlite3"
)

func notFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, entity.ErrNotFound)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
