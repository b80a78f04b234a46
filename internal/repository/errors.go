// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow higher layers such as the
// booking services to distinguish between different failure scenarios
// without depending on the MySQL driver.
package repository

import (
    "errors"

    "github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist or is
// not visible to the caller (for example a booking owned by another user).
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a unique key.
var ErrDuplicate = errors.New("duplicate key")

// ErrConflict is returned when an update cannot be performed because of
// conflicting state, such as cancelling a booking whose show already started.
var ErrConflict = errors.New("conflict")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isDuplicate reports whether err is a MySQL unique key violation.
func isDuplicate(err error) bool {
    var me *mysql.MySQLError
    return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
