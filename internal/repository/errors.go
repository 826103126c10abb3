package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsForeignKeyViolation reports whether err is an insert rejected because
// the referenced row is missing. The SQLSTATE match covers drivers whose
// errors reach us untranslated.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "23503") || strings.Contains(msg, "FOREIGN KEY constraint failed")
}
