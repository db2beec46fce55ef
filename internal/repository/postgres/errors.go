package postgres

import (
	"database/sql"
	stderrors "errors"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/libreria-tm/backend/internal/repository"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// translate maps driver errors onto repository sentinels. A foreign key
// violation means a missing parent on insert and a live child on delete.
func translate(err error, op string, deleting bool) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, sql.ErrNoRows):
		return repository.ErrNotFound
	}
	switch pqCode(err) {
	case uniqueViolation:
		return errors.Wrap(repository.ErrDuplicateKey, op)
	case foreignKeyViolation:
		if deleting {
			return errors.Wrap(repository.ErrInUse, op)
		}
		return errors.Wrap(repository.ErrNotFound, op)
	}
	return errors.Wrap(err, op)
}

// affected turns a zero row count into ErrNotFound.
func affected(res sql.Result, err error, op string, deleting bool) error {
	if err != nil {
		return translate(err, op, deleting)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, op)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
