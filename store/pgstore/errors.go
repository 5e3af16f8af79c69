package pgstore

import (
	"database/sql"
	"errors"

	"github.com/MrEthical07/lmsauth/model"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// mapError translates driver errors into the store sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return model.ErrDuplicate
	}
	return err
}
