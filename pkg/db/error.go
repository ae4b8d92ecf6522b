package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if code := sqlState(err); code == "23505" {
		return true
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsSystemicError reports failures that make the whole store unusable for the
// current run: lost connections, broken transactions, cancellation.
func IsSystemicError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, sql.ErrTxDone) ||
		errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) {
		return true
	}

	if class := sqlStateClass(err); class != "" {
		switch class {
		// connection exception, insufficient resources, operator intervention, system error
		case "08", "53", "57", "58", "XX":
			return true
		}
		return false
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1040, 1053, 1205, 1213, 2002, 2006, 2013:
			return true
		}
		return false
	}
	if errors.Is(err, mysqldriver.ErrInvalidConn) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "disk i/o error") ||
		strings.Contains(msg, "database disk image is malformed") ||
		strings.Contains(msg, "sql: database is closed")
}

// IsRecordError reports failures caused by one row's content. The caller can
// skip the row and keep going.
func IsRecordError(err error) bool {
	if err == nil || IsSystemicError(err) {
		return false
	}
	if IsDuplicateKeyErr(err) ||
		errors.Is(err, gorm.ErrCheckConstraintViolated) ||
		errors.Is(err, gorm.ErrForeignKeyViolated) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrInvalidValue) ||
		errors.Is(err, gorm.ErrInvalidField) {
		return true
	}

	if class := sqlStateClass(err); class != "" {
		switch class {
		// data exception, integrity constraint violation
		case "22", "23":
			return true
		}
		return false
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1048, 1062, 1264, 1292, 1366, 1406, 1452, 3819:
			return true
		}
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "datatype mismatch")
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func sqlStateClass(err error) string {
	code := sqlState(err)
	if len(code) < 2 {
		return ""
	}
	return code[:2]
}
