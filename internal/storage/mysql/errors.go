package mysql

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"landdev/internal/domain"
)

const (
	errDupEntry        = 1062
	errRowIsReferenced = 1451 // delete/update of a parent row
	errNoReferencedRow = 1452 // insert/update of a child row
)

// classify maps driver errors onto domain sentinels, keeping the cause wrapped.
func classify(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	switch me.Number {
	case errDupEntry:
		return fmt.Errorf("%w: %v", domain.ErrDuplicate, err)
	case errNoReferencedRow:
		return fmt.Errorf("%w: %v", domain.ErrForeignKey, err)
	case errRowIsReferenced:
		return domain.Invalid("record is still referenced by other records")
	}
	return err
}
