package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsDuplicateKeyErr(&mysqldriver.MySQLError{Number: 1062}))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: products.supplier_id, products.product_key")))
	assert.False(t, IsDuplicateKeyErr(errors.New("boom")))
	assert.False(t, IsDuplicateKeyErr(nil))
}

func TestClassifyDriverErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		record   bool
		systemic bool
	}{
		{"pg check violation", &pgconn.PgError{Code: "23514"}, true, false},
		{"pg numeric overflow", fmt.Errorf("upsert: %w", &pgconn.PgError{Code: "22003"}), true, false},
		{"pq not null", &pq.Error{Code: "23502"}, true, false},
		{"pg connection failure", &pgconn.PgError{Code: "08006"}, false, true},
		{"pg admin shutdown", &pgconn.PgError{Code: "57P01"}, false, true},
		{"mysql data too long", &mysqldriver.MySQLError{Number: 1406}, true, false},
		{"mysql gone away", &mysqldriver.MySQLError{Number: 2006}, false, true},
		{"sqlite constraint", errors.New("CHECK constraint failed: stock_non_negative"), true, false},
		{"sqlite locked", errors.New("database is locked"), false, true},
		{"canceled", fmt.Errorf("write batch: %w", context.Canceled), false, true},
		{"invalid transaction", gorm.ErrInvalidTransaction, false, true},
		{"unknown", errors.New("boom"), false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.record, IsRecordError(tc.err), "record")
			assert.Equal(t, tc.systemic, IsSystemicError(tc.err), "systemic")
		})
	}
}
