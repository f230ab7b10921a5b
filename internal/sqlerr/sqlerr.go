// Package sqlerr classifies database driver errors.
//
// Driver-specific errors from modernc.org/sqlite and go-sql-driver/mysql are
// mapped onto a small set of constraint categories so callers can react to a
// foreign key or unique violation without knowing which backend is in use.
package sqlerr

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Code is a backend-independent constraint category.
type Code int

const (
	// Other covers every error that is not a recognized constraint violation.
	Other Code = iota
	ForeignKeyViolation
	UniqueViolation
	NotNullViolation
	CheckViolation
)

func (c Code) String() string {
	switch c {
	case ForeignKeyViolation:
		return "foreign_key_violation"
	case UniqueViolation:
		return "unique_violation"
	case NotNullViolation:
		return "not_null_violation"
	case CheckViolation:
		return "check_violation"
	default:
		return "other"
	}
}

// MySQL server error numbers.
const (
	mysqlDupEntry           = 1062
	mysqlBadNull            = 1048
	mysqlRowIsReferenced    = 1217
	mysqlNoReferencedRow    = 1216
	mysqlRowIsReferenced2   = 1451
	mysqlNoReferencedRow2   = 1452
	mysqlCheckConstraintErr = 3819
)

// Error is a classified driver error. It unwraps to the driver error.
type Error struct {
	Code    Code
	Driver  string
	Number  int
	Message string

	driverErr error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%s %d)", e.Code, e.Message, e.Driver, e.Number)
}

func (e *Error) Unwrap() error {
	return e.driverErr
}

// Convert classifies err. It returns nil when err carries no recognized
// driver error.
func Convert(err error) *Error {
	if err == nil {
		return nil
	}

	var already *Error
	if errors.As(err, &already) {
		return already
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return &Error{
			Code:      mapSQLiteCode(sqliteErr.Code()),
			Driver:    "sqlite",
			Number:    sqliteErr.Code(),
			Message:   sqliteErr.Error(),
			driverErr: sqliteErr,
		}
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return &Error{
			Code:      mapMySQLNumber(mysqlErr.Number),
			Driver:    "mysql",
			Number:    int(mysqlErr.Number),
			Message:   mysqlErr.Message,
			driverErr: mysqlErr,
		}
	}

	return nil
}

// ErrCode reports the constraint category of err, or Other.
func ErrCode(err error) Code {
	if e := Convert(err); e != nil {
		return e.Code
	}
	return Other
}

// IsForeignKeyViolation reports whether err is a foreign key violation.
func IsForeignKeyViolation(err error) bool {
	return ErrCode(err) == ForeignKeyViolation
}

// IsUniqueViolation reports whether err is a unique or primary key violation.
func IsUniqueViolation(err error) bool {
	return ErrCode(err) == UniqueViolation
}

func mapSQLiteCode(code int) Code {
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return ForeignKeyViolation
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return UniqueViolation
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return NotNullViolation
	case sqlite3.SQLITE_CONSTRAINT_CHECK:
		return CheckViolation
	default:
		return Other
	}
}

func mapMySQLNumber(n uint16) Code {
	switch n {
	case mysqlRowIsReferenced, mysqlNoReferencedRow, mysqlRowIsReferenced2, mysqlNoReferencedRow2:
		return ForeignKeyViolation
	case mysqlDupEntry:
		return UniqueViolation
	case mysqlBadNull:
		return NotNullViolation
	case mysqlCheckConstraintErr:
		return CheckViolation
	default:
		return Other
	}
}
